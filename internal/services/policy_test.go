package services

import (
	"errors"
	"testing"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
)

func TestAssertRestaurantURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rawURL  string
		want    string
		wantErr error
	}{
		{name: "www storefront", rawURL: " https://www.rappi.com.ar/restaurantes/215137-guber ", want: "https://www.rappi.com.ar/restaurantes/215137-guber"},
		{name: "bare storefront host", rawURL: "https://rappi.com.ar/restaurantes/1", want: "https://rappi.com.ar/restaurantes/1"},
		{name: "uppercase host", rawURL: "HTTPS://WWW.RAPPI.COM.AR/restaurantes/1", want: "https://WWW.RAPPI.COM.AR/restaurantes/1"},
		{name: "look-alike host", rawURL: "https://www.evilrappi.com.ar/restaurantes/1", wantErr: apperr.ErrPolicyViolation},
		{name: "suffix host", rawURL: "https://rappi.com.ar.example.com/restaurantes/1", wantErr: apperr.ErrPolicyViolation},
		{name: "plain http", rawURL: "http://www.rappi.com.ar/restaurantes/1", wantErr: apperr.ErrPolicyViolation},
		{name: "ftp", rawURL: "ftp://www.rappi.com.ar/restaurantes/1", wantErr: apperr.ErrPolicyViolation},
		{name: "other vertical", rawURL: "https://www.rappi.com.ar/tiendas/900-supermercado", wantErr: apperr.ErrPolicyViolation},
		{name: "relative", rawURL: "/restaurantes/1", wantErr: apperr.ErrMalformedInput},
		{name: "empty", rawURL: "", wantErr: apperr.ErrMalformedInput},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := AssertRestaurantURL(tt.rawURL)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %q, %v", tt.wantErr, got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAssertRestaurantVertical(t *testing.T) {
	t.Parallel()

	if err := AssertRestaurantVertical("Guber Burgers"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := AssertRestaurantVertical("Farmacia Central"); !errors.Is(err, apperr.ErrPolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
}
