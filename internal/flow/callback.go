package flow

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
)

// Namespace prefixes every callback token
const Namespace = "rappi:"

// Action is the verb of a callback token
type Action string

const (
	ActionMenuStart       Action = "menu:start"
	ActionMenuMore        Action = "menu:more"
	ActionAdd             Action = "add"
	ActionCheckoutSummary Action = "checkout:summary"
	ActionConfirmCheckout Action = "confirm:checkout"
	ActionConfirmPay      Action = "confirm:pay"
	ActionAbort           Action = "abort"
)

// Callback is a parsed callback token
type Callback struct {
	Action Action
	Page   int
	ItemID string
	Raw    string
}

// CallbackError reports a token outside the callback grammar
type CallbackError struct {
	Token string
	Msg   string
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s: %q", e.Msg, e.Token)
}

func (e *CallbackError) Unwrap() error {
	return apperr.ErrMalformedInput
}

// ParseCallback parses "rappi:<verb>[:<argument>]"
func ParseCallback(raw string) (Callback, error) {
	token := strings.TrimSpace(raw)
	if !strings.HasPrefix(token, Namespace) {
		return Callback{}, &CallbackError{Token: token, Msg: "invalid callback namespace"}
	}
	body := strings.TrimPrefix(token, Namespace)

	switch Action(body) {
	case ActionMenuStart, ActionCheckoutSummary, ActionConfirmCheckout, ActionConfirmPay, ActionAbort:
		return Callback{Action: Action(body), Raw: token}, nil
	}

	if arg, ok := strings.CutPrefix(body, string(ActionMenuMore)+":"); ok {
		page, ok := parseMenuPage(arg)
		if !ok {
			return Callback{}, &CallbackError{Token: token, Msg: "invalid menu page"}
		}
		return Callback{Action: ActionMenuMore, Page: page, Raw: token}, nil
	}

	if arg, ok := strings.CutPrefix(body, string(ActionAdd)+":"); ok {
		itemID := strings.TrimSpace(arg)
		if itemID == "" {
			return Callback{}, &CallbackError{Token: token, Msg: "missing menu item id"}
		}
		return Callback{Action: ActionAdd, ItemID: itemID, Raw: token}, nil
	}

	return Callback{}, &CallbackError{Token: token, Msg: "unsupported callback"}
}

// parseMenuPage accepts an empty argument as page 0 and any run of digits. Pages too
// large for an int saturate; the controller clamps them to the last page.
func parseMenuPage(arg string) (int, bool) {
	if arg == "" {
		return 0, true
	}
	for _, r := range arg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	page, err := strconv.Atoi(arg)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt, true
	}
	return page, err == nil
}

// Token renders the callback back into its wire form
func (c Callback) Token() string {
	switch c.Action {
	case ActionMenuMore:
		return MenuPageToken(c.Page)
	case ActionAdd:
		return AddToken(c.ItemID)
	default:
		return Namespace + string(c.Action)
	}
}

func MenuPageToken(page int) string {
	return Namespace + string(ActionMenuMore) + ":" + strconv.Itoa(page)
}

func AddToken(itemID string) string {
	return Namespace + string(ActionAdd) + ":" + itemID
}

func token(action Action) string {
	return Namespace + string(action)
}
