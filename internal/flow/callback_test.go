package flow

import (
	"errors"
	"math"
	"testing"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
)

func TestParseCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Callback
	}{
		{raw: "rappi:menu:start", want: Callback{Action: ActionMenuStart}},
		{raw: "  rappi:menu:more:3 ", want: Callback{Action: ActionMenuMore, Page: 3}},
		{raw: "rappi:menu:more:0", want: Callback{Action: ActionMenuMore}},
		{raw: "rappi:menu:more:", want: Callback{Action: ActionMenuMore}},
		{raw: "rappi:menu:more:99999999999999999999", want: Callback{Action: ActionMenuMore, Page: math.MaxInt}},
		{raw: "rappi:add:pizza-muzzarella-8500", want: Callback{Action: ActionAdd, ItemID: "pizza-muzzarella-8500"}},
		{raw: "rappi:checkout:summary", want: Callback{Action: ActionCheckoutSummary}},
		{raw: "rappi:confirm:checkout", want: Callback{Action: ActionConfirmCheckout}},
		{raw: "rappi:confirm:pay", want: Callback{Action: ActionConfirmPay}},
		{raw: "rappi:abort", want: Callback{Action: ActionAbort}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCallback(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Action != tt.want.Action || got.Page != tt.want.Page || got.ItemID != tt.want.ItemID {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
			if reparsed, err := ParseCallback(got.Token()); err != nil || reparsed.Action != got.Action || reparsed.Page != got.Page || reparsed.ItemID != got.ItemID {
				t.Fatalf("token %q did not round trip: %+v, %v", got.Token(), reparsed, err)
			}
		})
	}
}

func TestParseCallbackRejects(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"menu:start",
		"other:menu:start",
		"rappi:",
		"rappi:menu",
		"rappi:menu:more",
		"rappi:menu:more:abc",
		"rappi:menu:more:+2",
		"rappi:menu:more:1.5",
		"rappi:menu:more:-1",
		"rappi:add:",
		"rappi:add:   ",
		"rappi:checkout",
		"rappi:confirm:refund",
		"rappi:abort:now",
	} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()

			_, err := ParseCallback(raw)
			var cbErr *CallbackError
			if !errors.As(err, &cbErr) {
				t.Fatalf("expected CallbackError, got %v", err)
			}
			if !errors.Is(err, apperr.ErrMalformedInput) {
				t.Fatalf("expected malformed input, got %v", err)
			}
		})
	}
}
