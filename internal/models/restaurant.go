package models

// RestaurantCard is a raw search-result card collected by the browser collaborator
type RestaurantCard struct {
	Href           string   `json:"href"`
	AnchorText     string   `json:"anchorText"`
	TextBlob       string   `json:"textBlob"`
	NameCandidates []string `json:"nameCandidates,omitempty"`
	ShortText      []string `json:"shortText,omitempty"`
}

// Restaurant is a validated search result
type Restaurant struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Rating      *float64 `json:"rating"`
	DeliveryFee *float64 `json:"deliveryFee"`
	Snippet     string   `json:"snippet"`
}

// RestaurantSearchParams contains parameters for ranking search results
type RestaurantSearchParams struct {
	BaseURL        string
	Query          string
	City           string
	Max            int
	MinRating      *float64
	DeliveryFeeMax *float64
}
