package models

// Stage is the position of a conversation in the ordering flow
type Stage string

const (
	StageIdle              Stage = "idle"
	StageMenu              Stage = "menu"
	StageCart              Stage = "cart"
	StageCheckoutSummary   Stage = "checkout-summary"
	StageCheckoutBlocked   Stage = "checkout-blocked"
	StageCheckoutConfirmed Stage = "checkout-confirmed"
	StagePaymentBlocked    Stage = "payment-blocked"
	StagePaymentAttempted  Stage = "payment-attempted"
	StagePaymentSubmitted  Stage = "payment-submitted"
	StageAborted           Stage = "aborted"
)

// Stages lists every stage in declaration order
var Stages = []Stage{
	StageIdle,
	StageMenu,
	StageCart,
	StageCheckoutSummary,
	StageCheckoutBlocked,
	StageCheckoutConfirmed,
	StagePaymentBlocked,
	StagePaymentAttempted,
	StagePaymentSubmitted,
	StageAborted,
}

// IsValid reports whether s is a declared stage
func (s Stage) IsValid() bool {
	for _, stage := range Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// MenuCache is the catalog snapshot kept inside the flow state
type MenuCache struct {
	RestaurantURL string     `json:"restaurantUrl"`
	FetchedAt     string     `json:"fetchedAt"`
	Items         []MenuItem `json:"items"`
}

// FlowState is the persisted state of one ordering conversation
type FlowState struct {
	SelectedRestaurantURL string         `json:"selectedRestaurantUrl"`
	MenuCache             MenuCache      `json:"menuCache"`
	CartItems             map[string]int `json:"cartItems"`
	Stage                 Stage          `json:"stage"`
	CheckoutConfirmed     bool           `json:"checkoutConfirmed"`
}

// Clone returns a deep copy of the state
func (s *FlowState) Clone() *FlowState {
	out := *s
	if s.MenuCache.Items != nil {
		out.MenuCache.Items = append(make([]MenuItem, 0, len(s.MenuCache.Items)), s.MenuCache.Items...)
	}
	if s.CartItems != nil {
		out.CartItems = make(map[string]int, len(s.CartItems))
		for id, qty := range s.CartItems {
			out.CartItems[id] = qty
		}
	}
	return &out
}

// ButtonStyle hints how a chat front end should render a button
type ButtonStyle string

const (
	ButtonStyleDefault ButtonStyle = ""
	ButtonStylePrimary ButtonStyle = "primary"
	ButtonStyleDanger  ButtonStyle = "danger"
)

// Button is a selectable action carrying a callback token
type Button struct {
	Text         string      `json:"text"`
	CallbackData string      `json:"callback_data"`
	Style        ButtonStyle `json:"style,omitempty"`
}

// FlowResponse is the payload returned to the chat front end after a callback
type FlowResponse struct {
	Message string     `json:"message"`
	Buttons [][]Button `json:"buttons"`
	Stage   Stage      `json:"stage"`
}

// PaymentContext is handed to the live payment collaborator
type PaymentContext struct {
	RestaurantURL string `json:"restaurantUrl"`
	SessionFile   string `json:"sessionFile,omitempty"`
}

// PaymentAttempt is the collaborator's report of a live payment click
type PaymentAttempt struct {
	Attempted bool   `json:"attempted"`
	Submitted bool   `json:"submitted"`
	Message   string `json:"message"`
}
