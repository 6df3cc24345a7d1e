package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

const (
	cartPlanVersion = 1
	defaultCurrency = "ARS"
)

// ValidationError reports an order template that does not have the required shape
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid order template: " + e.Msg
	}
	return fmt.Sprintf("invalid order template: %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return apperr.ErrMalformedInput
}

// Validate checks that a template has a non-empty item list of named lines with
// positive (or unspecified) quantities.
func Validate(template *models.OrderTemplate) error {
	if template == nil {
		return &ValidationError{Msg: "order template must be an object"}
	}
	if len(template.Items) == 0 {
		return &ValidationError{Field: "items", Msg: "order template must include a non-empty items list"}
	}
	for index, line := range template.Items {
		if strings.TrimSpace(line.Name) == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].name", index), Msg: "item is missing a valid name"}
		}
		if line.Quantity < 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", index), Msg: fmt.Sprintf("item %q has invalid quantity", line.Name)}
		}
	}
	return nil
}

// CartMatcher resolves template lines against a menu catalog
type CartMatcher struct {
	now func() time.Time
}

// NewCartMatcher creates a new cart matcher
func NewCartMatcher() *CartMatcher {
	return &CartMatcher{now: time.Now}
}

// indexedItem is a catalog entry with its comparison forms precomputed
type indexedItem struct {
	item       models.MenuItem
	normalized string
	slug       string
}

func indexCatalog(catalog *models.MenuCatalog) []indexedItem {
	if catalog == nil {
		return nil
	}
	index := make([]indexedItem, 0, len(catalog.Items))
	for _, item := range catalog.Items {
		normalized := NormalizeName(item.Name)
		if normalized == "" {
			continue
		}
		index = append(index, indexedItem{item: item, normalized: normalized, slug: Slugify(normalized)})
	}
	return index
}

// findMenuMatch tries normalized equality, then containment either way, then slug equality
func findMenuMatch(requestedName string, index []indexedItem) (models.MenuItem, bool) {
	target := NormalizeName(requestedName)

	for _, entry := range index {
		if entry.normalized == target {
			return entry.item, true
		}
	}

	for _, entry := range index {
		if strings.Contains(entry.normalized, target) || strings.Contains(target, entry.normalized) {
			return entry.item, true
		}
	}

	targetSlug := Slugify(target)
	if targetSlug == "" {
		return models.MenuItem{}, false
	}
	for _, entry := range index {
		if entry.slug == targetSlug {
			return entry.item, true
		}
	}
	return models.MenuItem{}, false
}

// BuildCartPlan prices a validated template against a catalog. Lines without a match
// are reported as unresolved, never as an error.
func (m *CartMatcher) BuildCartPlan(template *models.OrderTemplate, catalog *models.MenuCatalog) *models.CartPlan {
	index := indexCatalog(catalog)

	plan := &models.CartPlan{
		Version:         cartPlanVersion,
		GeneratedAt:     m.now().UTC(),
		Currency:        defaultCurrency,
		MatchedItems:    []models.MatchedLine{},
		UnresolvedItems: []models.UnresolvedLine{},
	}
	if template.Currency != "" {
		plan.Currency = template.Currency
	}

	plan.SourceRestaurantURL = template.RestaurantURL
	if plan.SourceRestaurantURL == "" && catalog != nil {
		plan.SourceRestaurantURL = catalog.RestaurantURL
	}
	if catalog != nil {
		plan.SourceRestaurantName = catalog.RestaurantName
	}
	if plan.SourceRestaurantName == "" {
		plan.SourceRestaurantName = template.RestaurantName
	}

	subtotal := 0.0
	for _, line := range template.Items {
		quantity := line.EffectiveQuantity()

		match, ok := findMenuMatch(line.Name, index)
		if !ok {
			plan.UnresolvedItems = append(plan.UnresolvedItems, models.UnresolvedLine{
				RequestedName: line.Name,
				Quantity:      quantity,
				Notes:         line.Notes,
				Reason:        models.UnresolvedReason,
			})
			continue
		}

		lineSubtotal := match.Price * float64(quantity)
		subtotal += lineSubtotal

		options := line.Options
		if options == nil {
			options = []any{}
		}
		plan.MatchedItems = append(plan.MatchedItems, models.MatchedLine{
			MenuItemID:    match.ID,
			Name:          match.Name,
			UnitPrice:     match.Price,
			Quantity:      quantity,
			LineSubtotal:  lineSubtotal,
			Notes:         line.Notes,
			RequestedName: line.Name,
			Options:       options,
		})
	}

	plan.Totals = models.CartTotals{
		Subtotal:   subtotal,
		GrandTotal: subtotal,
	}
	return plan
}
