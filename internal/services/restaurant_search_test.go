package services

import (
	"strings"
	"testing"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

const storefront = "https://www.rappi.com.ar"

func rankNames(results []models.Restaurant) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	return names
}

func TestRankPrefersIntentMatches(t *testing.T) {
	t.Parallel()

	cards := []models.RestaurantCard{
		{Href: storefront + "/restaurantes/burger-king-palermo", AnchorText: "Burger King Palermo", TextBlob: "Burger King Palermo Calificacion 4.9 Envio $1200"},
		{Href: storefront + "/restaurantes/sushi-club", AnchorText: "Sushi Club", TextBlob: "Sushi Club Calificacion 4.5 Envio $1400"},
		{Href: storefront + "/restaurantes/sushipop-centro", AnchorText: "Sushipop Centro", TextBlob: "Sushipop Centro Calificacion 4.2 Envio $900"},
	}

	results := NewRestaurantRanker(DefaultRankWeights()).Rank(cards, models.RestaurantSearchParams{BaseURL: storefront, Query: "sushi"})

	names := rankNames(results)
	if len(names) != 2 || names[0] != "Sushi Club" || names[1] != "Sushipop Centro" {
		t.Fatalf("unexpected ranking %v", names)
	}
	if results[0].Rating == nil || *results[0].Rating != 4.5 {
		t.Fatalf("expected rating 4.5, got %v", results[0].Rating)
	}
	if results[1].DeliveryFee == nil || *results[1].DeliveryFee != 900 {
		t.Fatalf("expected fee 900, got %v", results[1].DeliveryFee)
	}
}

func TestRankFallsBackToBroadRanking(t *testing.T) {
	t.Parallel()

	cards := []models.RestaurantCard{
		{Href: storefront + "/restaurantes/pizzeria-uno", AnchorText: "Pizzeria Uno", TextBlob: "Pizzeria Uno Calificacion 4.1 Envio $1000"},
		{Href: storefront + "/restaurantes/parrilla-dos", AnchorText: "Parrilla Dos", TextBlob: "Parrilla Dos Calificacion 4.8 Envio $1800"},
	}

	results := NewRestaurantRanker(DefaultRankWeights()).Rank(cards, models.RestaurantSearchParams{BaseURL: storefront, Query: "zzzz-no-match"})

	names := rankNames(results)
	if len(names) != 2 || names[0] != "Parrilla Dos" || names[1] != "Pizzeria Uno" {
		t.Fatalf("unexpected ranking %v", names)
	}
}

func TestRankFiltersCards(t *testing.T) {
	t.Parallel()

	minRating := 4.0
	feeMax := 1500.0
	cards := []models.RestaurantCard{
		{Href: storefront + "/restaurantes/pizza-palace", AnchorText: "Pizza Palace", TextBlob: "Pizza Palace Calificacion 4.4 Envio $1100"},
		{Href: storefront + "/restaurantes/pizza-palace#menu", AnchorText: "Pizza Palace duplicate"},
		{Href: storefront + "/restaurantes/supermercado-combo", AnchorText: "Supermercado Combo", TextBlob: "Supermercado Combo Turbo Calificacion 5.0 Envio $500"},
		{Href: storefront + "/restaurantes/pizza-lenta", AnchorText: "Pizza Lenta", TextBlob: "Pizza Lenta Calificacion 3.1 Envio gratis"},
		{Href: storefront + "/restaurantes/pizza-cara", AnchorText: "Pizza Cara", TextBlob: "Pizza Cara Calificacion 4.9 Envio $2500"},
		{Href: storefront + "/restaurantes/pizza-nueva", AnchorText: "Pizza Nueva", TextBlob: "Pizza Nueva"},
		{Href: storefront + "/restaurantes", AnchorText: "Todos los restaurantes"},
		{Href: storefront + "/restaurantes/categoria", AnchorText: "Categoria"},
		{Href: "https://www.example.com/restaurantes/pizza-falsa", AnchorText: "Pizza Falsa"},
		{Href: "", AnchorText: "Sin link"},
	}

	results := NewRestaurantRanker(DefaultRankWeights()).Rank(cards, models.RestaurantSearchParams{
		BaseURL:        storefront,
		Query:          "pizza",
		MinRating:      &minRating,
		DeliveryFeeMax: &feeMax,
	})

	names := rankNames(results)
	if len(names) != 2 || names[0] != "Pizza Palace" || names[1] != "Pizza Nueva" {
		t.Fatalf("unexpected results %v", names)
	}
	if results[0].URL != storefront+"/restaurantes/pizza-palace" {
		t.Fatalf("unexpected url %q", results[0].URL)
	}
}

func TestRankLimit(t *testing.T) {
	t.Parallel()

	var cards []models.RestaurantCard
	for _, slug := range []string{"uno", "dos", "tres"} {
		cards = append(cards, models.RestaurantCard{Href: "/restaurantes/1-" + slug, AnchorText: "Resto " + slug})
	}

	results := NewRestaurantRanker(DefaultRankWeights()).Rank(cards, models.RestaurantSearchParams{BaseURL: storefront, Max: 2})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !strings.HasPrefix(results[0].URL, storefront+"/restaurantes/1-") {
		t.Fatalf("relative href was not resolved: %q", results[0].URL)
	}
}

func TestPickRestaurantName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		card models.RestaurantCard
		want string
	}{
		{
			name: "name candidate fragment",
			card: models.RestaurantCard{NameCandidates: []string{"Envio gratis | La Farola"}, AnchorText: "ignored"},
			want: "La Farola",
		},
		{
			name: "skips hint-only candidates",
			card: models.RestaurantCard{NameCandidates: []string{"Calificacion 4.5"}, ShortText: []string{"$ 900", "El Club de la Milanesa"}},
			want: "El Club de la Milanesa",
		},
		{
			name: "text blob segment",
			card: models.RestaurantCard{TextBlob: "Guber  ·  Envio $900"},
			want: "Guber",
		},
		{
			name: "url slug",
			card: models.RestaurantCard{Href: storefront + "/restaurantes/215137-guber-burgers"},
			want: "Guber Burgers",
		},
		{
			name: "unknown",
			card: models.RestaurantCard{Href: storefront + "/restaurantes/delivery"},
			want: "Unknown restaurant",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := PickRestaurantName(tt.card); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsRestaurantDetailPath(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"/restaurantes/215137-guber":  true,
		"/restaurant/guber/":          true,
		"/restaurantes":               false,
		"/restaurantes/":              false,
		"/restaurantes/delivery":      false,
		"/restaurantes/x/categorias":  false,
		"/tiendas/900-supermercado":   false,
		"":                            false,
		"/RESTAURANTES/215137-Guber/": true,
	}
	for path, want := range tests {
		if got := IsRestaurantDetailPath(path); got != want {
			t.Fatalf("%q: expected %v, got %v", path, want, got)
		}
	}
}

func TestBuildRestaurantsSearchURL(t *testing.T) {
	t.Parallel()

	got, err := BuildRestaurantsSearchURL(storefront, "sushi", "Buenos Aires")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != storefront+"/restaurantes?city=Buenos+Aires&query=sushi" {
		t.Fatalf("unexpected url %q", got)
	}

	if _, err := BuildRestaurantsSearchURL("rappi", "", ""); err == nil {
		t.Fatalf("expected error for a relative base url")
	}
}
