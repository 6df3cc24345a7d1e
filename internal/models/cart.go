package models

import (
	"encoding/json"
	"time"
)

// UnresolvedReason is attached to template lines with no catalog match
const UnresolvedReason = "no menu match found"

// MatchedLine is a template line resolved to a catalog entry
type MatchedLine struct {
	MenuItemID    string  `json:"menuItemId"`
	Name          string  `json:"name"`
	UnitPrice     float64 `json:"unitPrice"`
	Quantity      int     `json:"quantity"`
	LineSubtotal  float64 `json:"lineSubtotal"`
	Notes         string  `json:"notes"`
	RequestedName string  `json:"requestedName"`
	Options       []any   `json:"options"`
}

// UnresolvedLine is a template line that matched nothing
type UnresolvedLine struct {
	RequestedName string `json:"requestedName"`
	Quantity      int    `json:"quantity"`
	Notes         string `json:"notes"`
	Reason        string `json:"reason"`
}

// CartTotals holds the priced totals of a plan
type CartTotals struct {
	Subtotal      float64  `json:"subtotal"`
	EstimatedFees *float64 `json:"estimatedFees"`
	GrandTotal    float64  `json:"grandTotal"`
}

// SafeMode is carried by every cart plan. It always encodes and decodes as fully
// locked, so no plan can claim that real purchases are enabled.
type SafeMode struct{}

type safeModeWire struct {
	RealPurchaseDisabled                  bool `json:"realPurchaseDisabled"`
	RequiresConfirmPayFlag                bool `json:"requiresConfirmPayFlag"`
	RequiresSecondInteractiveConfirmation bool `json:"requiresSecondInteractiveConfirmation"`
}

func (SafeMode) RealPurchaseDisabled() bool                  { return true }
func (SafeMode) RequiresConfirmPayFlag() bool                { return true }
func (SafeMode) RequiresSecondInteractiveConfirmation() bool { return true }

// MarshalJSON implements json.Marshaler
func (s SafeMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(safeModeWire{
		RealPurchaseDisabled:                  s.RealPurchaseDisabled(),
		RequiresConfirmPayFlag:                s.RequiresConfirmPayFlag(),
		RequiresSecondInteractiveConfirmation: s.RequiresSecondInteractiveConfirmation(),
	})
}

// UnmarshalJSON accepts any stored value; the decoded plan is locked regardless.
func (s *SafeMode) UnmarshalJSON(data []byte) error {
	var wire safeModeWire
	return json.Unmarshal(data, &wire)
}

// CartPlan is a priced plan derived from a template and a catalog
type CartPlan struct {
	Version              int              `json:"version"`
	GeneratedAt          time.Time        `json:"generatedAt"`
	SourceRestaurantURL  string           `json:"sourceRestaurantUrl,omitempty"`
	SourceRestaurantName string           `json:"sourceRestaurantName,omitempty"`
	Currency             string           `json:"currency"`
	MatchedItems         []MatchedLine    `json:"matchedItems"`
	UnresolvedItems      []UnresolvedLine `json:"unresolvedItems"`
	Totals               CartTotals       `json:"totals"`
	SafeMode             SafeMode         `json:"safeMode"`
}

// DryRunLine is one line of the checkout dry-run summary
type DryRunLine struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Subtotal  float64 `json:"subtotal"`
}

// DryRunSummary is the read-only checkout preview of a cart plan
type DryRunSummary struct {
	Items           []DryRunLine     `json:"items"`
	UnresolvedItems []UnresolvedLine `json:"unresolvedItems"`
	Currency        string           `json:"currency"`
	Totals          CartTotals       `json:"totals"`
	SafeMode        SafeMode         `json:"safeMode"`
}

// PaymentGate is the outcome of the interactive payment guard
type PaymentGate struct {
	Attempted bool   `json:"attempted"`
	Permitted bool   `json:"permitted"`
	Message   string `json:"message"`
}
