package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/models"
)

const (
	bridgeCandidatesPath = "/menu/candidates"
	bridgeScreenshotPath = "/menu/screenshot"
	bridgeSearchPath     = "/restaurants/search"
	bridgePlaceOrderPath = "/checkout/place-order"
	bridgeBootstrapPath  = "/session/bootstrap"
	maxScreenshotBytes   = 20 << 20
)

// BrowserBridge is the HTTP client of the browser sidecar that drives the storefront.
// It never issues DOM queries itself; the sidecar returns already extracted text.
type BrowserBridge struct {
	baseURL     string
	sessionFile string
	httpClient  *http.Client
}

type bridgeRequest struct {
	URL         string `json:"url,omitempty"`
	SessionFile string `json:"sessionFile,omitempty"`
	BaseURL     string `json:"baseUrl,omitempty"`
}

type bridgeError struct {
	Error string `json:"error"`
}

type searchCardsResponse struct {
	Cards []models.RestaurantCard `json:"cards"`
}

// NewBrowserBridge creates a new browser bridge client
func NewBrowserBridge(baseURL, sessionFile string, timeout time.Duration) *BrowserBridge {
	return &BrowserBridge{
		baseURL:     strings.TrimRight(baseURL, "/"),
		sessionFile: sessionFile,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RequireSession fails when the storefront session captured by the login bootstrap is missing
func RequireSession(sessionFile string) error {
	if _, err := os.Stat(sessionFile); err != nil {
		return fmt.Errorf("no session state found at %s, run 'rappi-cli login bootstrap' first: %w", sessionFile, apperr.ErrNotFound)
	}
	return nil
}

// BootstrapLogin asks the sidecar to open a headed browser for the manual login and
// store the resulting session at the configured session file.
func (b *BrowserBridge) BootstrapLogin(ctx context.Context, storefrontURL string) error {
	return b.postJSON(ctx, bridgeBootstrapPath, bridgeRequest{BaseURL: storefrontURL, SessionFile: b.sessionFile}, nil)
}

// FetchCandidates loads a restaurant page and returns its raw menu candidates
func (b *BrowserBridge) FetchCandidates(ctx context.Context, restaurantURL string) (*models.CandidateBundle, error) {
	safeURL, err := AssertRestaurantURL(restaurantURL)
	if err != nil {
		return nil, err
	}

	var bundle models.CandidateBundle
	if err := b.postJSON(ctx, bridgeCandidatesPath, bridgeRequest{URL: safeURL, SessionFile: b.sessionFile}, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// CaptureScreenshot returns a full-page PNG of the restaurant menu
func (b *BrowserBridge) CaptureScreenshot(ctx context.Context, restaurantURL string) ([]byte, error) {
	safeURL, err := AssertRestaurantURL(restaurantURL)
	if err != nil {
		return nil, err
	}

	resp, err := b.do(ctx, bridgeScreenshotPath, bridgeRequest{URL: safeURL, SessionFile: b.sessionFile})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	image, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot: %v: %w", err, apperr.ErrCollaborator)
	}
	return image, nil
}

// SearchRestaurants loads a storefront search page and returns its raw result cards
func (b *BrowserBridge) SearchRestaurants(ctx context.Context, searchURL string) ([]models.RestaurantCard, error) {
	var result searchCardsResponse
	if err := b.postJSON(ctx, bridgeSearchPath, bridgeRequest{URL: searchURL, SessionFile: b.sessionFile}, &result); err != nil {
		return nil, err
	}
	return result.Cards, nil
}

// AttemptLivePayment asks the sidecar to click the place-order button. Failures are
// reported in the result, never returned as errors.
func (b *BrowserBridge) AttemptLivePayment(ctx context.Context, payment models.PaymentContext) models.PaymentAttempt {
	safeURL, err := AssertRestaurantURL(payment.RestaurantURL)
	if err != nil {
		return models.PaymentAttempt{Message: fmt.Sprintf("Live payment not attempted: %v", err)}
	}

	sessionFile := payment.SessionFile
	if sessionFile == "" {
		sessionFile = b.sessionFile
	}

	var attempt models.PaymentAttempt
	if err := b.postJSON(ctx, bridgePlaceOrderPath, bridgeRequest{URL: safeURL, SessionFile: sessionFile}, &attempt); err != nil {
		return models.PaymentAttempt{
			Attempted: true,
			Message:   fmt.Sprintf("Live payment attempt failed: %v", err),
		}
	}
	if attempt.Message == "" {
		attempt.Message = "Live payment attempt finished without a message."
	}
	attempt.Attempted = true
	return attempt
}

func (b *BrowserBridge) postJSON(ctx context.Context, path string, payload bridgeRequest, out any) error {
	resp, err := b.do(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse browser bridge response: %v: %w", err, apperr.ErrCollaborator)
	}
	return nil
}

// do sends a request and returns the response only for 2xx statuses
func (b *BrowserBridge) do(ctx context.Context, path string, payload bridgeRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode browser bridge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser bridge %s failed: %v: %w", path, err, apperr.ErrCollaborator)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var apiErr bridgeError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("browser bridge %s returned %d: %s: %w", path, resp.StatusCode, apiErr.Error, apperr.ErrCollaborator)
	}
	return resp, nil
}
