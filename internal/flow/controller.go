package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

// DefaultPageSize is the number of menu items offered per page
const DefaultPageSize = 6

// MenuFetcher loads the catalog of a restaurant
type MenuFetcher interface {
	FetchMenu(ctx context.Context, restaurantURL string) (*models.MenuCatalog, error)
}

// PaymentAttempter clicks the place-order button of a live checkout. Failures are
// reported in the attempt, not as errors.
type PaymentAttempter interface {
	AttemptLivePayment(ctx context.Context, payment models.PaymentContext) models.PaymentAttempt
}

// Options carries the per-call settings of the flow
type Options struct {
	// RestaurantURL overrides the restaurant stored in the state
	RestaurantURL string
	// DefaultRestaurantURL is used for fresh conversations
	DefaultRestaurantURL string
	LiveOrdersEnabled    bool
	PageSize             int
	SessionFile          string
}

// Controller runs callback tokens against a conversation's flow state
type Controller struct {
	menus    MenuFetcher
	payments PaymentAttempter
	now      func() time.Time
}

// NewController creates a flow controller
func NewController(menus MenuFetcher, payments PaymentAttempter) *Controller {
	return &Controller{
		menus:    menus,
		payments: payments,
		now:      time.Now,
	}
}

// Handle parses raw, loads the state from store, applies the transition and saves the
// whole state back. Malformed tokens fail before anything is loaded. When the
// transition fails nothing is saved.
func (c *Controller) Handle(ctx context.Context, store StateStore, raw string, opts Options) (*models.FlowResponse, error) {
	cb, err := ParseCallback(raw)
	if err != nil {
		return nil, err
	}

	stored, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	state, err := NormalizeState(stored, opts.DefaultRestaurantURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.Apply(ctx, state, cb, opts)
	if err != nil {
		return nil, err
	}

	if err := store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save flow state: %w", err)
	}
	return resp, nil
}

// Apply runs one callback against state in place
func (c *Controller) Apply(ctx context.Context, state *models.FlowState, cb Callback, opts Options) (*models.FlowResponse, error) {
	selected := opts.RestaurantURL
	if selected == "" {
		selected = state.SelectedRestaurantURL
	}
	if selected == "" {
		selected = DefaultRestaurantURL
	}
	safeURL, err := services.AssertRestaurantURL(selected)
	if err != nil {
		return nil, err
	}
	state.SelectedRestaurantURL = safeURL

	var resp *models.FlowResponse
	switch cb.Action {
	case ActionMenuStart:
		resp, err = c.showMenu(ctx, state, 0, opts)
	case ActionMenuMore:
		resp, err = c.showMenu(ctx, state, cb.Page, opts)
	case ActionAdd:
		resp = addToCart(state, cb.ItemID)
	case ActionCheckoutSummary:
		resp = checkoutSummary(state)
	case ActionConfirmCheckout:
		resp = confirmCheckout(state)
	case ActionConfirmPay:
		resp = c.confirmPay(ctx, state, opts)
	case ActionAbort:
		resp = abort(state)
	default:
		return nil, &CallbackError{Token: cb.Raw, Msg: "unhandled callback"}
	}
	if err != nil {
		return nil, err
	}

	resp.Buttons = append(resp.Buttons, []models.Button{{
		Text:         "Cancel",
		CallbackData: token(ActionAbort),
		Style:        models.ButtonStyleDanger,
	}})
	resp.Stage = state.Stage
	return resp, nil
}

func (c *Controller) showMenu(ctx context.Context, state *models.FlowState, page int, opts Options) (*models.FlowResponse, error) {
	if !hasCachedMenu(state) {
		if c.menus == nil {
			return nil, fmt.Errorf("no menu source configured: %w", apperr.ErrCollaborator)
		}
		catalog, err := c.menus.FetchMenu(ctx, state.SelectedRestaurantURL)
		if err != nil {
			if errors.Is(err, apperr.ErrPolicyViolation) {
				return nil, err
			}
			log.Printf("Warning: menu fetch failed for %s: %v", state.SelectedRestaurantURL, err)
			state.Stage = models.StageMenu
			return &models.FlowResponse{
				Message: fmt.Sprintf("Could not load the menu: %v. Try again.", err),
				Buttons: [][]models.Button{{{Text: "Retry menu", CallbackData: token(ActionMenuStart)}}},
			}, nil
		}
		state.MenuCache = c.cacheFromCatalog(state.SelectedRestaurantURL, catalog)
	}

	state.Stage = models.StageMenu
	return menuPage(state, page, opts.PageSize), nil
}

func hasCachedMenu(state *models.FlowState) bool {
	return state.MenuCache.RestaurantURL == state.SelectedRestaurantURL && len(state.MenuCache.Items) > 0
}

func (c *Controller) cacheFromCatalog(restaurantURL string, catalog *models.MenuCatalog) models.MenuCache {
	fetchedAt := c.now().UTC()
	if catalog != nil && !catalog.ScrapedAt.IsZero() {
		fetchedAt = catalog.ScrapedAt.UTC()
	}

	var items []models.MenuItem
	if catalog != nil {
		items = catalog.Items
	}
	return models.MenuCache{
		RestaurantURL: restaurantURL,
		FetchedAt:     fetchedAt.Format(time.RFC3339),
		Items:         sanitizeMenuItems(items),
	}
}

// clampPage keeps page inside [0, totalPages-1]
func clampPage(page, totalPages int) int {
	if page < 0 {
		return 0
	}
	if page > totalPages-1 {
		return max(0, totalPages-1)
	}
	return page
}

func menuPage(state *models.FlowState, page, pageSize int) *models.FlowResponse {
	items := state.MenuCache.Items
	if len(items) == 0 {
		return &models.FlowResponse{
			Message: "Could not extract a menu for this restaurant. Try again.",
			Buttons: [][]models.Button{{{Text: "Retry menu", CallbackData: token(ActionMenuStart)}}},
		}
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	totalPages := (len(items) + pageSize - 1) / pageSize
	page = clampPage(page, totalPages)
	start := page * pageSize
	end := min(start+pageSize, len(items))

	buttons := make([][]models.Button, 0, end-start+2)
	for _, item := range items[start:end] {
		buttons = append(buttons, []models.Button{{
			Text:         fmt.Sprintf("+ %s (ARS %s)", item.Name, services.FormatPrice(item.Price)),
			CallbackData: AddToken(item.ID),
		}})
	}

	var nav []models.Button
	if page > 0 {
		nav = append(nav, models.Button{Text: "Previous page", CallbackData: MenuPageToken(page - 1)})
	}
	if page < totalPages-1 {
		nav = append(nav, models.Button{Text: "More", CallbackData: MenuPageToken(page + 1)})
	}
	if len(nav) > 0 {
		buttons = append(buttons, nav)
	}
	buttons = append(buttons, []models.Button{{Text: "Checkout summary", CallbackData: token(ActionCheckoutSummary), Style: models.ButtonStylePrimary}})

	return &models.FlowResponse{
		Message: fmt.Sprintf("Menu %d/%d - %s", page+1, totalPages, state.SelectedRestaurantURL),
		Buttons: buttons,
	}
}

func findCachedItem(state *models.FlowState, itemID string) (models.MenuItem, bool) {
	for _, item := range state.MenuCache.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return models.MenuItem{}, false
}

func addToCart(state *models.FlowState, itemID string) *models.FlowResponse {
	// Any cart change invalidates a confirmed total
	state.CheckoutConfirmed = false
	if state.CartItems == nil {
		state.CartItems = map[string]int{}
	}
	state.CartItems[itemID]++
	state.Stage = models.StageCart

	label := itemID
	if item, ok := findCachedItem(state, itemID); ok {
		label = item.Name
	}

	count := 0
	for _, qty := range state.CartItems {
		count += qty
	}

	return &models.FlowResponse{
		Message: fmt.Sprintf("Added: %s (x%d). Cart: %d item(s).", label, state.CartItems[itemID], count),
		Buttons: [][]models.Button{
			{{Text: "View menu", CallbackData: token(ActionMenuStart)}},
			{{Text: "Checkout summary", CallbackData: token(ActionCheckoutSummary), Style: models.ButtonStylePrimary}},
		},
	}
}

type summaryLine struct {
	name      string
	quantity  int
	unitPrice float64
	lineTotal float64
}

type cartSummary struct {
	lines []summaryLine
	total float64
}

// summarizeCart joins the cart against the cached menu. Lines follow menu order;
// ids that no longer resolve come last, by id, priced at zero.
func summarizeCart(state *models.FlowState) cartSummary {
	position := make(map[string]int, len(state.MenuCache.Items))
	for i, item := range state.MenuCache.Items {
		if _, seen := position[item.ID]; !seen {
			position[item.ID] = i
		}
	}

	ids := make([]string, 0, len(state.CartItems))
	for id, qty := range state.CartItems {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, iok := position[ids[i]]
		pj, jok := position[ids[j]]
		if iok != jok {
			return iok
		}
		if iok && pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})

	var summary cartSummary
	for _, id := range ids {
		line := summaryLine{name: id, quantity: state.CartItems[id]}
		if item, ok := findCachedItem(state, id); ok {
			line.name = item.Name
			line.unitPrice = item.Price
		}
		line.lineTotal = line.unitPrice * float64(line.quantity)
		summary.total += line.lineTotal
		summary.lines = append(summary.lines, line)
	}
	return summary
}

func (s cartSummary) message() string {
	if len(s.lines) == 0 {
		return "Cart is empty. Pick items from the menu."
	}

	var b strings.Builder
	b.WriteString("Checkout summary:")
	for _, line := range s.lines {
		fmt.Fprintf(&b, "\n%dx %s - ARS %s", line.quantity, line.name, services.FormatPrice(line.lineTotal))
	}
	fmt.Fprintf(&b, "\nTotal: ARS %s", services.FormatPrice(s.total))
	return b.String()
}

func checkoutSummary(state *models.FlowState) *models.FlowResponse {
	state.Stage = models.StageCheckoutSummary
	summary := summarizeCart(state)

	var buttons [][]models.Button
	if len(summary.lines) > 0 {
		buttons = append(buttons, []models.Button{{Text: "Confirm checkout", CallbackData: token(ActionConfirmCheckout), Style: models.ButtonStylePrimary}})
	}
	buttons = append(buttons, []models.Button{{Text: "Back to menu", CallbackData: token(ActionMenuStart)}})

	return &models.FlowResponse{
		Message: summary.message(),
		Buttons: buttons,
	}
}

func confirmCheckout(state *models.FlowState) *models.FlowResponse {
	summary := summarizeCart(state)
	if len(summary.lines) == 0 {
		state.CheckoutConfirmed = false
		state.Stage = models.StageCheckoutBlocked
		return &models.FlowResponse{
			Message: "Checkout blocked: the cart is empty. Add items before confirming.",
			Buttons: [][]models.Button{{{Text: "View menu", CallbackData: token(ActionMenuStart)}}},
		}
	}

	state.CheckoutConfirmed = true
	state.Stage = models.StageCheckoutConfirmed
	return &models.FlowResponse{
		Message: fmt.Sprintf("Checkout confirmed. Estimated total: ARS %s. Press pay for a live attempt.", services.FormatPrice(summary.total)),
		Buttons: [][]models.Button{
			{{Text: "Confirm payment", CallbackData: token(ActionConfirmPay), Style: models.ButtonStylePrimary}},
			{{Text: "Checkout summary", CallbackData: token(ActionCheckoutSummary)}},
		},
	}
}

func (c *Controller) confirmPay(ctx context.Context, state *models.FlowState, opts Options) *models.FlowResponse {
	if !state.CheckoutConfirmed || !opts.LiveOrdersEnabled || c.payments == nil {
		state.Stage = models.StagePaymentBlocked
		var reasons []string
		if !state.CheckoutConfirmed {
			reasons = append(reasons, "checkout not confirmed")
		}
		if !opts.LiveOrdersEnabled {
			reasons = append(reasons, "RAPPI_LIVE_ORDER_ENABLED=true not configured")
		} else if c.payments == nil {
			reasons = append(reasons, "no live payment driver configured")
		}
		return &models.FlowResponse{
			Message: fmt.Sprintf("Payment blocked: %s.", strings.Join(reasons, " and ")),
			Buttons: [][]models.Button{{{Text: "Confirm checkout", CallbackData: token(ActionConfirmCheckout), Style: models.ButtonStylePrimary}}},
		}
	}

	attempt := c.payments.AttemptLivePayment(ctx, models.PaymentContext{
		RestaurantURL: state.SelectedRestaurantURL,
		SessionFile:   opts.SessionFile,
	})
	log.Printf("Live payment attempt for %s: submitted=%v", state.SelectedRestaurantURL, attempt.Submitted)

	if attempt.Submitted {
		state.Stage = models.StagePaymentSubmitted
	} else {
		state.Stage = models.StagePaymentAttempted
	}
	return &models.FlowResponse{
		Message: attempt.Message,
		Buttons: [][]models.Button{{{Text: "Checkout summary", CallbackData: token(ActionCheckoutSummary)}}},
	}
}

func abort(state *models.FlowState) *models.FlowResponse {
	state.CartItems = map[string]int{}
	state.CheckoutConfirmed = false
	state.Stage = models.StageAborted
	return &models.FlowResponse{
		Message: "Flow cancelled. Cart emptied.",
		Buttons: [][]models.Button{{{Text: "Start menu", CallbackData: token(ActionMenuStart)}}},
	}
}
