package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/config"
	"github.com/foxxcyber/rappi-flow/internal/database"
	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

const (
	testClientID     = "rappi-bot"
	testClientSecret = "a-long-enough-bot-secret"
	guberURL         = "https://www.rappi.com.ar/restaurantes/215137-guber"
)

type stubMenus struct {
	catalog *models.MenuCatalog
	err     error
	calls   int
}

func (m *stubMenus) FetchMenu(_ context.Context, restaurantURL string) (*models.MenuCatalog, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	catalog := *m.catalog
	catalog.RestaurantURL = restaurantURL
	return &catalog, nil
}

type memoryCatalogs struct {
	byURL map[string]*models.MenuCatalog
	keys  map[string]string
}

func newMemoryCatalogs() *memoryCatalogs {
	return &memoryCatalogs{byURL: map[string]*models.MenuCatalog{}, keys: map[string]string{}}
}

func (s *memoryCatalogs) SaveCatalog(_ context.Context, catalog *models.MenuCatalog, archiveKey string) error {
	s.byURL[catalog.RestaurantURL] = catalog
	if archiveKey != "" {
		s.keys[catalog.RestaurantURL] = archiveKey
	}
	return nil
}

func (s *memoryCatalogs) CatalogArchiveKey(_ context.Context, restaurantURL string) (string, error) {
	if _, ok := s.byURL[restaurantURL]; !ok {
		return "", fmt.Errorf("catalog for %s: %w", restaurantURL, apperr.ErrNotFound)
	}
	return s.keys[restaurantURL], nil
}

func (s *memoryCatalogs) GetCatalog(_ context.Context, restaurantURL string) (*models.MenuCatalog, error) {
	catalog, ok := s.byURL[restaurantURL]
	if !ok {
		return nil, fmt.Errorf("catalog for %s: %w", restaurantURL, apperr.ErrNotFound)
	}
	return catalog, nil
}

type recordingArchive struct {
	catalogs int
	carts    int
}

func (a *recordingArchive) ArchiveCatalog(_ context.Context, catalog *models.MenuCatalog) (*services.UploadResult, error) {
	a.catalogs++
	return &services.UploadResult{Bucket: "rappi-flow", Key: fmt.Sprintf("catalogs/%d.json", a.catalogs)}, nil
}

func (a *recordingArchive) ArchiveCartPlan(_ context.Context, plan *models.CartPlan) (*services.UploadResult, error) {
	a.carts++
	return &services.UploadResult{Bucket: "rappi-flow", Key: fmt.Sprintf("carts/%d.json", a.carts)}, nil
}

func (a *recordingArchive) GetPresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.local/rappi-flow/" + key + "?signature=x", nil
}

type stubSearcher struct {
	cards []models.RestaurantCard
	urls  []string
}

func (s *stubSearcher) SearchRestaurants(_ context.Context, searchURL string) ([]models.RestaurantCard, error) {
	s.urls = append(s.urls, searchURL)
	return s.cards, nil
}

type decodedResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    *Meta           `json:"meta"`
}

func testCatalog() *models.MenuCatalog {
	return &models.MenuCatalog{
		RestaurantName: "Guber",
		RestaurantURL:  guberURL,
		ScrapedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ItemCount:      2,
		Items: []models.MenuItem{
			{ID: "pizza-muzzarella-8500", Name: "Pizza Muzzarella", Price: 8500, Category: "Pizzas"},
			{ID: "faina-1200", Name: "Faina", Price: 1200, Category: "Pizzas"},
		},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	hash, err := services.HashClientSecret(testClientSecret)
	if err != nil {
		t.Fatalf("HashClientSecret: %v", err)
	}
	return &config.Config{
		BaseURL:              "https://www.rappi.com.ar",
		DefaultCity:          "Buenos Aires",
		DefaultRestaurantURL: guberURL,
		MenuPageSize:         6,
		JWTSecret:            "test-secret",
		JWTExpiry:            time.Hour,
		BotClientID:          testClientID,
		BotClientSecretHash:  hash,
	}
}

func newTestApp(t *testing.T, deps Deps) *fiber.App {
	t.Helper()

	if deps.Flows == nil {
		store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "flows.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		deps.Flows = store
	}
	if deps.Menus == nil {
		deps.Menus = &stubMenus{catalog: testCatalog()}
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	New(testConfig(t), deps).Routes(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, token string, body any) (int, decodedResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	var decoded decodedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s %s: %v", method, target, err)
	}
	return resp.StatusCode, decoded
}

func issueToken(t *testing.T, app *fiber.App) string {
	t.Helper()

	status, resp := doJSON(t, app, http.MethodPost, "/api/auth/token", "", tokenRequest{ClientID: testClientID, ClientSecret: testClientSecret})
	if status != http.StatusOK {
		t.Fatalf("expected token, got %d: %s", status, resp.Error)
	}
	var token tokenResponse
	if err := json.Unmarshal(resp.Data, &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return token.Token
}

func TestIssueToken(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, Deps{})

	tests := []struct {
		name       string
		body       tokenRequest
		wantStatus int
	}{
		{name: "missing secret", body: tokenRequest{ClientID: testClientID}, wantStatus: http.StatusBadRequest},
		{name: "wrong secret", body: tokenRequest{ClientID: testClientID, ClientSecret: "not-the-bot-secret"}, wantStatus: http.StatusUnauthorized},
		{name: "wrong client", body: tokenRequest{ClientID: "someone", ClientSecret: testClientSecret}, wantStatus: http.StatusUnauthorized},
		{name: "valid", body: tokenRequest{ClientID: testClientID, ClientSecret: testClientSecret}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			status, resp := doJSON(t, app, http.MethodPost, "/api/auth/token", "", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, status, resp.Error)
			}
			if resp.Success != (tt.wantStatus == http.StatusOK) {
				t.Fatalf("unexpected success flag %v", resp.Success)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, Deps{})

	status, resp := doJSON(t, app, http.MethodPost, "/api/flow/chat-1/callback", "", callbackRequest{Data: "rappi:menu:start"})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected error envelope, got %+v", resp)
	}

	status, _ = doJSON(t, app, http.MethodGet, "/api/flow/chat-1", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", status)
	}
}

func TestFlowCallbackPersistsPerConversation(t *testing.T) {
	t.Parallel()

	menus := &stubMenus{catalog: testCatalog()}
	app := newTestApp(t, Deps{Menus: menus})
	token := issueToken(t, app)

	status, resp := doJSON(t, app, http.MethodPost, "/api/flow/chat-1/callback", token, callbackRequest{Data: "rappi:menu:start"})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	var flowResp models.FlowResponse
	if err := json.Unmarshal(resp.Data, &flowResp); err != nil {
		t.Fatalf("decode flow response: %v", err)
	}
	if flowResp.Stage != models.StageMenu {
		t.Fatalf("expected stage menu, got %q", flowResp.Stage)
	}

	status, resp = doJSON(t, app, http.MethodPost, "/api/flow/chat-1/callback", token, callbackRequest{Data: "rappi:add:faina-1200"})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	if menus.calls != 1 {
		t.Fatalf("expected the cached menu to be reused, got %d fetches", menus.calls)
	}

	status, resp = doJSON(t, app, http.MethodGet, "/api/flow/chat-1", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	var state models.FlowState
	if err := json.Unmarshal(resp.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Stage != models.StageCart || state.CartItems["faina-1200"] != 1 {
		t.Fatalf("unexpected stored state %+v", state)
	}

	status, resp = doJSON(t, app, http.MethodGet, "/api/flow/chat-2", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	var fresh models.FlowState
	if err := json.Unmarshal(resp.Data, &fresh); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if fresh.Stage != models.StageIdle || len(fresh.CartItems) != 0 {
		t.Fatalf("expected a fresh conversation, got %+v", fresh)
	}
}

func TestFlowCallbackErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		menus      *stubMenus
		body       callbackRequest
		wantStatus int
	}{
		{name: "empty data", body: callbackRequest{}, wantStatus: http.StatusBadRequest},
		{name: "malformed token", body: callbackRequest{Data: "rappi:menu:more:-1"}, wantStatus: http.StatusBadRequest},
		{name: "foreign namespace", body: callbackRequest{Data: "other:menu:start"}, wantStatus: http.StatusBadRequest},
		{name: "foreign restaurant", body: callbackRequest{Data: "rappi:menu:start", RestaurantURL: "https://www.example.com/restaurantes/1-x"}, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := newTestApp(t, Deps{})
			token := issueToken(t, app)

			status, resp := doJSON(t, app, http.MethodPost, "/api/flow/chat-1/callback", token, tt.body)
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, status, resp.Error)
			}
			if resp.Success {
				t.Fatalf("expected an error envelope")
			}
		})
	}
}

func TestBuildCartFromStoredCatalog(t *testing.T) {
	t.Parallel()

	catalogs := newMemoryCatalogs()
	catalogs.byURL[guberURL] = testCatalog()
	menus := &stubMenus{catalog: testCatalog()}
	app := newTestApp(t, Deps{Menus: menus, Catalogs: catalogs})
	token := issueToken(t, app)

	body := map[string]any{
		"orderDocument": "restaurantUrl: " + guberURL + "\nitems:\n  - name: pizza muzzarella\n    quantity: 2\n  - name: Tiramisu\n",
		"format":        "yaml",
	}
	status, resp := doJSON(t, app, http.MethodPost, "/api/carts", token, body)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}

	var built buildCartResponse
	if err := json.Unmarshal(resp.Data, &built); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(built.Cart.MatchedItems) != 1 || len(built.Cart.UnresolvedItems) != 1 {
		t.Fatalf("unexpected cart %+v", built.Cart)
	}
	if built.Cart.Totals.GrandTotal != 17000 {
		t.Fatalf("expected total 17000, got %v", built.Cart.Totals.GrandTotal)
	}
	if menus.calls != 0 {
		t.Fatalf("expected the stored catalog to be used, got %d fetches", menus.calls)
	}
}

func TestBuildCartFetchesMissingCatalog(t *testing.T) {
	t.Parallel()

	catalogs := newMemoryCatalogs()
	menus := &stubMenus{catalog: testCatalog()}
	archive := &recordingArchive{}
	app := newTestApp(t, Deps{Menus: menus, Catalogs: catalogs, Archive: archive})
	token := issueToken(t, app)

	body := map[string]any{
		"order": map[string]any{
			"restaurantUrl": guberURL,
			"items":         []any{map[string]any{"name": "Faina", "quantity": 3}},
		},
	}
	status, resp := doJSON(t, app, http.MethodPost, "/api/carts", token, body)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	if menus.calls != 1 {
		t.Fatalf("expected one fetch, got %d", menus.calls)
	}
	if _, ok := catalogs.byURL[guberURL]; !ok {
		t.Fatalf("expected the fetched catalog to be stored")
	}

	var built buildCartResponse
	if err := json.Unmarshal(resp.Data, &built); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if built.ArchiveKey != "carts/1.json" || archive.carts != 1 {
		t.Fatalf("expected the plan to be archived, got %q", built.ArchiveKey)
	}
}

func TestBuildCartRejectsInvalidTemplates(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, Deps{})
	token := issueToken(t, app)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "no order", body: map[string]any{}},
		{name: "empty items", body: map[string]any{"order": map[string]any{"items": []any{}}}},
		{name: "tab indentation", body: map[string]any{"orderDocument": "items:\n\t- name: Faina\n"}},
		{name: "no catalog and no restaurant", body: map[string]any{"order": map[string]any{"items": []any{map[string]any{"name": "Faina"}}}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			status, resp := doJSON(t, app, http.MethodPost, "/api/carts", token, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", status, resp.Error)
			}
		})
	}
}

func TestDryRun(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, Deps{})
	token := issueToken(t, app)

	status, _ := doJSON(t, app, http.MethodPost, "/api/carts/dry-run", token, map[string]any{})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without a cart, got %d", status)
	}

	cart := models.CartPlan{
		Currency: "ARS",
		MatchedItems: []models.MatchedLine{
			{MenuItemID: "faina-1200", Name: "Faina", UnitPrice: 1200, Quantity: 2, LineSubtotal: 2400},
		},
		Totals: models.CartTotals{Subtotal: 2400, GrandTotal: 2400},
	}
	status, resp := doJSON(t, app, http.MethodPost, "/api/carts/dry-run", token, dryRunRequest{Cart: &cart})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	var summary models.DryRunSummary
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary.Items) != 1 || summary.Totals.Subtotal != 2400 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestExtractMenu(t *testing.T) {
	t.Parallel()

	catalogs := newMemoryCatalogs()
	archive := &recordingArchive{}
	app := newTestApp(t, Deps{Catalogs: catalogs, Archive: archive})
	token := issueToken(t, app)

	body := extractMenuRequest{
		RestaurantName: "Guber",
		RestaurantURL:  guberURL,
		Candidates: []models.MenuCandidate{
			{NameText: "Burger Doble", PriceText: "$ 12.500", RawText: "Burger Doble $12.500"},
			{NameText: "Faina", PriceText: "1.200", RawText: "Faina 1.200"},
		},
	}
	status, resp := doJSON(t, app, http.MethodPost, "/api/menus/extract", token, body)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	var catalog models.MenuCatalog
	if err := json.Unmarshal(resp.Data, &catalog); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if catalog.ItemCount != 2 {
		t.Fatalf("expected 2 items, got %d", catalog.ItemCount)
	}

	status, resp = doJSON(t, app, http.MethodGet, "/api/menus?url="+guberURL, token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected the stored catalog, got %d: %s", status, resp.Error)
	}

	status, resp = doJSON(t, app, http.MethodGet, "/api/menus/archive?url="+guberURL, token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected an archive link, got %d: %s", status, resp.Error)
	}
	var link archiveLinkResponse
	if err := json.Unmarshal(resp.Data, &link); err != nil {
		t.Fatalf("decode link: %v", err)
	}
	if link.Key != "catalogs/1.json" || link.URL == "" {
		t.Fatalf("unexpected link %+v", link)
	}

	body.RestaurantURL = "https://www.rappi.com.ar/tiendas/900-supermercado"
	status, _ = doJSON(t, app, http.MethodPost, "/api/menus/extract", token, body)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-restaurant url, got %d", status)
	}
}

func TestMenuRoutesWithoutOptionalDeps(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, Deps{Menus: &stubMenus{err: fmt.Errorf("bridge down: %w", apperr.ErrCollaborator)}})
	token := issueToken(t, app)

	status, _ := doJSON(t, app, http.MethodGet, "/api/menus?url="+guberURL, token, nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a catalog store, got %d", status)
	}

	status, _ = doJSON(t, app, http.MethodPost, "/api/menus/fetch", token, fetchMenuRequest{RestaurantURL: guberURL})
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502 when the fetch fails, got %d", status)
	}

	status, _ = doJSON(t, app, http.MethodGet, "/api/restaurants/search?query=sushi", token, nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a searcher, got %d", status)
	}
}

func TestSearchRestaurants(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{cards: []models.RestaurantCard{
		{Href: "/restaurantes/1-sushi-club", AnchorText: "Sushi Club", TextBlob: "Sushi Club Calificacion 4.5 Envio $1400"},
		{Href: "/restaurantes/2-burger-house", AnchorText: "Burger House", TextBlob: "Burger House Calificacion 4.9 Envio $900"},
	}}
	app := newTestApp(t, Deps{Search: searcher})
	token := issueToken(t, app)

	status, resp := doJSON(t, app, http.MethodGet, "/api/restaurants/search?query=sushi&minRating=4", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, resp.Error)
	}
	var results []models.Restaurant
	if err := json.Unmarshal(resp.Data, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Sushi Club" {
		t.Fatalf("unexpected results %+v", results)
	}
	if resp.Meta == nil || resp.Meta.Total != 1 {
		t.Fatalf("unexpected meta %+v", resp.Meta)
	}
	if len(searcher.urls) != 1 || searcher.urls[0] != "https://www.rappi.com.ar/restaurantes?city=Buenos+Aires&query=sushi" {
		t.Fatalf("unexpected search urls %v", searcher.urls)
	}

	status, _ = doJSON(t, app, http.MethodGet, "/api/restaurants/search?minRating=high", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad minRating, got %d", status)
	}
}

func TestLockConversationSerializesAndReleases(t *testing.T) {
	t.Parallel()

	h := New(testConfig(t), Deps{Menus: &stubMenus{catalog: testCatalog()}})
	lockCount := func() int {
		h.locksMu.Lock()
		defer h.locksMu.Unlock()
		return len(h.locks)
	}

	unlock := h.lockConversation(testClientID + ":chat-1")
	acquired := make(chan func(), 1)
	go func() { acquired <- h.lockConversation(testClientID + ":chat-1") }()

	select {
	case <-acquired:
		t.Fatalf("expected the second callback to wait for the first")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	second := <-acquired
	if got := lockCount(); got != 1 {
		t.Fatalf("expected 1 lock while held, got %d", got)
	}
	second()

	for i := 0; i < 20; i++ {
		h.lockConversation(fmt.Sprintf("%s:chat-%d", testClientID, i))()
	}
	if got := lockCount(); got != 0 {
		t.Fatalf("expected released locks to be dropped, got %d", got)
	}
}
