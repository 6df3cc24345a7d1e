package models

// OrderTemplate is a user-authored reorder template
type OrderTemplate struct {
	RestaurantURL  string      `json:"restaurantUrl,omitempty"`
	RestaurantName string      `json:"restaurantName,omitempty"`
	Currency       string      `json:"currency,omitempty"`
	Items          []OrderLine `json:"items"`
}

// OrderLine is a single requested dish. Quantity 0 means unspecified.
type OrderLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Options  []any  `json:"options,omitempty"`
}

// EffectiveQuantity returns the requested quantity, defaulting to 1
func (l OrderLine) EffectiveQuantity() int {
	if l.Quantity <= 0 {
		return 1
	}
	return l.Quantity
}
