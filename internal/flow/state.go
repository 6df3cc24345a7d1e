package flow

import (
	"strings"

	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

// DefaultRestaurantURL is selected when neither the caller nor the stored state names one
const DefaultRestaurantURL = "https://www.rappi.com.ar/restaurantes/215137-guber"

// NewInitialState returns the state of a fresh conversation
func NewInitialState(defaultRestaurantURL string) (*models.FlowState, error) {
	if defaultRestaurantURL == "" {
		defaultRestaurantURL = DefaultRestaurantURL
	}
	selected, err := services.AssertRestaurantURL(defaultRestaurantURL)
	if err != nil {
		return nil, err
	}

	return &models.FlowState{
		SelectedRestaurantURL: selected,
		MenuCache:             models.MenuCache{Items: []models.MenuItem{}},
		CartItems:             map[string]int{},
		Stage:                 models.StageIdle,
	}, nil
}

// NormalizeState sanitizes a persisted state. Nil means nothing was stored yet.
// Menu entries without id or name and non-positive quantities are dropped; an unknown
// stage resets to idle. Both restaurant URLs must still pass the storefront policy.
func NormalizeState(raw *models.FlowState, defaultRestaurantURL string) (*models.FlowState, error) {
	state, err := NewInitialState(defaultRestaurantURL)
	if err != nil || raw == nil {
		return state, err
	}

	if selected := strings.TrimSpace(raw.SelectedRestaurantURL); selected != "" {
		if state.SelectedRestaurantURL, err = services.AssertRestaurantURL(selected); err != nil {
			return nil, err
		}
	}

	if cacheURL := strings.TrimSpace(raw.MenuCache.RestaurantURL); cacheURL != "" {
		if state.MenuCache.RestaurantURL, err = services.AssertRestaurantURL(cacheURL); err != nil {
			return nil, err
		}
	}
	state.MenuCache.FetchedAt = raw.MenuCache.FetchedAt
	state.MenuCache.Items = sanitizeMenuItems(raw.MenuCache.Items)

	for id, qty := range raw.CartItems {
		if id != "" && qty > 0 {
			state.CartItems[id] = qty
		}
	}

	if raw.Stage.IsValid() {
		state.Stage = raw.Stage
	}
	state.CheckoutConfirmed = raw.CheckoutConfirmed
	return state, nil
}

func sanitizeMenuItems(items []models.MenuItem) []models.MenuItem {
	out := make([]models.MenuItem, 0, len(items))
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		item.Name = strings.TrimSpace(item.Name)
		if item.ID == "" || item.Name == "" {
			continue
		}
		if item.Category == "" {
			item.Category = models.DefaultCategory
		}
		out = append(out, item)
	}
	return out
}
