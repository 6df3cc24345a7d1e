package flow

import (
	"errors"
	"testing"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

func TestNewInitialState(t *testing.T) {
	t.Parallel()

	state, err := NewInitialState("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.SelectedRestaurantURL != DefaultRestaurantURL || state.Stage != models.StageIdle || state.CheckoutConfirmed {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if state.CartItems == nil || len(state.CartItems) != 0 {
		t.Fatalf("expected an empty cart, got %v", state.CartItems)
	}

	if _, err := NewInitialState("https://www.rappi.com.ar/tiendas/900-supermercado"); !errors.Is(err, apperr.ErrPolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
}

func TestNormalizeState(t *testing.T) {
	t.Parallel()

	raw := &models.FlowState{
		SelectedRestaurantURL: otherRestaurantURL,
		MenuCache: models.MenuCache{
			RestaurantURL: otherRestaurantURL,
			FetchedAt:     "2026-03-01T12:00:00Z",
			Items: []models.MenuItem{
				{ID: " faina-1200 ", Name: " Faina ", Price: 1200},
				{ID: "", Name: "No id"},
				{ID: "no-name"},
			},
		},
		CartItems:         map[string]int{"faina-1200": 2, "zero": 0, "negative": -1, "": 3},
		Stage:             models.Stage("shipping"),
		CheckoutConfirmed: true,
	}

	state, err := NormalizeState(raw, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.SelectedRestaurantURL != otherRestaurantURL || state.MenuCache.RestaurantURL != otherRestaurantURL {
		t.Fatalf("unexpected urls %+v", state)
	}
	if len(state.MenuCache.Items) != 1 || state.MenuCache.Items[0].ID != "faina-1200" || state.MenuCache.Items[0].Category != models.DefaultCategory {
		t.Fatalf("unexpected menu items %+v", state.MenuCache.Items)
	}
	if len(state.CartItems) != 1 || state.CartItems["faina-1200"] != 2 {
		t.Fatalf("unexpected cart %v", state.CartItems)
	}
	if state.Stage != models.StageIdle || !state.CheckoutConfirmed {
		t.Fatalf("unexpected stage or confirmation %+v", state)
	}
}

func TestNormalizeStateNilAndPolicy(t *testing.T) {
	t.Parallel()

	state, err := NormalizeState(nil, otherRestaurantURL)
	if err != nil || state.SelectedRestaurantURL != otherRestaurantURL {
		t.Fatalf("expected a fresh state for %s, got %+v, %v", otherRestaurantURL, state, err)
	}

	_, err = NormalizeState(&models.FlowState{SelectedRestaurantURL: "https://www.example.com/restaurantes/1-x"}, "")
	if !errors.Is(err, apperr.ErrPolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}

	_, err = NormalizeState(&models.FlowState{MenuCache: models.MenuCache{RestaurantURL: "https://www.rappi.com.ar/tiendas/1-x"}}, "")
	if !errors.Is(err, apperr.ErrPolicyViolation) {
		t.Fatalf("expected policy violation for the cache url, got %v", err)
	}
}
