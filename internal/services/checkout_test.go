package services

import (
	"context"
	"errors"
	"testing"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

type scriptedPrompter struct {
	confirm    bool
	confirmErr error
	answer     string
	asked      int
}

func (p *scriptedPrompter) Confirm(context.Context, string) (bool, error) {
	return p.confirm, p.confirmErr
}

func (p *scriptedPrompter) Ask(context.Context, string) (string, error) {
	p.asked++
	return p.answer, nil
}

func TestBuildDryRunSummary(t *testing.T) {
	t.Parallel()

	cart := newTestMatcher().BuildCartPlan(&models.OrderTemplate{
		Items: []models.OrderLine{{Name: "Pizza Muzzarella", Quantity: 2}, {Name: "Faina"}},
	}, &models.MenuCatalog{Items: []models.MenuItem{{ID: "p", Name: "Pizza Muzzarella", Price: 8500}}})

	summary := BuildDryRunSummary(cart)
	if len(summary.Items) != 1 || summary.Items[0].Subtotal != 17000 || summary.Items[0].UnitPrice != 8500 {
		t.Fatalf("unexpected summary lines %+v", summary.Items)
	}
	if len(summary.UnresolvedItems) != 1 || summary.Totals.Subtotal != 17000 || summary.Totals.GrandTotal != 17000 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Currency != "ARS" || !summary.SafeMode.RealPurchaseDisabled() {
		t.Fatalf("unexpected summary header %+v", summary)
	}

	empty := BuildDryRunSummary(nil)
	if len(empty.Items) != 0 || empty.Currency != "ARS" {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
}

func TestPaymentGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confirmPay bool
		prompter   *scriptedPrompter
		want       models.PaymentGate
		wantAsked  int
	}{
		{
			name:       "no flag",
			confirmPay: false,
			prompter:   &scriptedPrompter{confirm: true, answer: ConfirmPayPhrase},
			want:       models.PaymentGate{},
		},
		{
			name:       "first confirmation declined",
			confirmPay: true,
			prompter:   &scriptedPrompter{confirm: false},
			want:       models.PaymentGate{},
		},
		{
			name:       "phrase mismatch",
			confirmPay: true,
			prompter:   &scriptedPrompter{confirm: true, answer: "confirm pay"},
			want:       models.PaymentGate{},
			wantAsked:  1,
		},
		{
			name:       "fully confirmed is still blocked by policy",
			confirmPay: true,
			prompter:   &scriptedPrompter{confirm: true, answer: ConfirmPayPhrase},
			want:       models.PaymentGate{Attempted: true},
			wantAsked:  1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate, err := NewPaymentGuard(tt.prompter).Run(context.Background(), tt.confirmPay)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gate.Attempted != tt.want.Attempted || gate.Permitted != tt.want.Permitted {
				t.Fatalf("expected %+v, got %+v", tt.want, gate)
			}
			if gate.Message == "" {
				t.Fatalf("expected a message")
			}
			if tt.prompter.asked != tt.wantAsked {
				t.Fatalf("expected %d phrase prompts, got %d", tt.wantAsked, tt.prompter.asked)
			}
		})
	}
}

func TestPaymentGuardPromptError(t *testing.T) {
	t.Parallel()

	boom := errors.New("stdin closed")
	_, err := NewPaymentGuard(&scriptedPrompter{confirmErr: boom}).Run(context.Background(), true)
	if !errors.Is(err, boom) {
		t.Fatalf("expected prompt error, got %v", err)
	}
}
