package services

import (
	"context"
	"fmt"

	"github.com/foxxcyber/rappi-flow/internal/models"
)

// ConfirmPayPhrase must be typed verbatim as the second payment confirmation
const ConfirmPayPhrase = "CONFIRM PAY"

// Prompter asks the operator for interactive confirmations
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
	Ask(ctx context.Context, question string) (string, error)
}

// BuildDryRunSummary renders the read-only checkout preview of a cart plan
func BuildDryRunSummary(cart *models.CartPlan) *models.DryRunSummary {
	summary := &models.DryRunSummary{
		Items:           []models.DryRunLine{},
		UnresolvedItems: []models.UnresolvedLine{},
		Currency:        defaultCurrency,
	}
	if cart == nil {
		return summary
	}

	subtotal := 0.0
	for _, line := range cart.MatchedItems {
		subtotal += line.LineSubtotal
		summary.Items = append(summary.Items, models.DryRunLine{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.LineSubtotal,
		})
	}
	if cart.UnresolvedItems != nil {
		summary.UnresolvedItems = cart.UnresolvedItems
	}
	if cart.Currency != "" {
		summary.Currency = cart.Currency
	}

	summary.Totals = models.CartTotals{
		Subtotal:      subtotal,
		EstimatedFees: cart.Totals.EstimatedFees,
		GrandTotal:    cart.Totals.GrandTotal,
	}
	return summary
}

// PaymentGuard walks the operator through the two payment confirmations. While real
// purchases are disabled it never permits a purchase, whatever the operator answers.
type PaymentGuard struct {
	prompter          Prompter
	purchasesDisabled bool
}

// NewPaymentGuard creates a payment guard bound to the purchase policy
func NewPaymentGuard(prompter Prompter) *PaymentGuard {
	return &PaymentGuard{
		prompter:          prompter,
		purchasesDisabled: RealPurchasesDisabled,
	}
}

// Run evaluates the payment gate. confirmPay is the explicit --confirm-pay opt-in.
func (g *PaymentGuard) Run(ctx context.Context, confirmPay bool) (models.PaymentGate, error) {
	if !confirmPay {
		return models.PaymentGate{
			Message: "Payment flow not attempted. Add --confirm-pay and pass the second confirmation to continue to pre-payment review only.",
		}, nil
	}

	proceed, err := g.prompter.Confirm(ctx, "You passed --confirm-pay. Continue to payment pre-check simulation?")
	if err != nil {
		return models.PaymentGate{}, fmt.Errorf("failed to read confirmation: %w", err)
	}
	if !proceed {
		return models.PaymentGate{Message: "User cancelled before second confirmation."}, nil
	}

	typed, err := g.prompter.Ask(ctx, fmt.Sprintf("Type %q to continue: ", ConfirmPayPhrase))
	if err != nil {
		return models.PaymentGate{}, fmt.Errorf("failed to read confirmation phrase: %w", err)
	}
	if typed != ConfirmPayPhrase {
		return models.PaymentGate{Message: "Second confirmation phrase mismatch; payment flow remains blocked."}, nil
	}

	if g.purchasesDisabled {
		return models.PaymentGate{
			Attempted: true,
			Message:   "Real purchase submission is permanently disabled by policy. Simulation stopped before any buy action.",
		}, nil
	}

	return models.PaymentGate{Attempted: true, Permitted: true, Message: "Payment execution permitted."}, nil
}
