package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/foxxcyber/rappi-flow/internal/apperr"
	"github.com/foxxcyber/rappi-flow/internal/database"
	"github.com/foxxcyber/rappi-flow/internal/flow"
	"github.com/foxxcyber/rappi-flow/internal/models"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

func (a *App) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %v: %w", fs.Name(), err, ErrUsage)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%s: unexpected argument %q: %w", fs.Name(), fs.Arg(0), ErrUsage)
	}
	return nil
}

func requireFlag(command, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s requires --%s: %w", command, name, ErrUsage)
	}
	return nil
}

func (a *App) runLoginBootstrap(ctx context.Context, args []string) error {
	fs := a.newFlagSet("login bootstrap")
	sessionFile := fs.String("session-file", a.cfg.SessionFile, "where to store the captured session")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, "Manual login bootstrap started.")
	fmt.Fprintln(a.stdout, "1) Complete Google sign-in in the browser the bridge opens.")
	fmt.Fprintln(a.stdout, "2) Complete any phone OTP challenge.")
	fmt.Fprintln(a.stdout, "3) Close the login window once your account home is visible.")

	if err := a.bridge(*sessionFile).BootstrapLogin(ctx, a.cfg.BaseURL); err != nil {
		return fmt.Errorf("login bootstrap failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "Session state stored at %s\n", *sessionFile)
	fmt.Fprintln(a.stdout, "Protect this file as secret material (contains auth tokens).")
	return nil
}

func (a *App) runRestaurantsSearch(ctx context.Context, args []string) error {
	fs := a.newFlagSet("restaurants search")
	query := fs.String("query", "", "search text")
	city := fs.String("city", a.cfg.DefaultCity, "delivery city")
	maxResults := fs.Int("max", 20, "maximum number of results")
	asJSON := fs.Bool("json", false, "print JSON")
	var minRating, feeMax optionalFloat
	fs.Var(&minRating, "min-rating", "drop restaurants rated below this")
	fs.Var(&feeMax, "delivery-fee-max", "drop restaurants with a higher delivery fee")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag("restaurants search", "query", *query); err != nil {
		return err
	}
	if err := services.RequireSession(a.cfg.SessionFile); err != nil {
		return err
	}

	params := models.RestaurantSearchParams{
		BaseURL:        a.cfg.BaseURL,
		Query:          strings.TrimSpace(*query),
		City:           *city,
		Max:            *maxResults,
		MinRating:      minRating.value,
		DeliveryFeeMax: feeMax.value,
	}
	searchURL, err := services.BuildRestaurantsSearchURL(params.BaseURL, params.Query, params.City)
	if err != nil {
		return err
	}

	cards, err := a.bridge(a.cfg.SessionFile).SearchRestaurants(ctx, searchURL)
	if err != nil {
		return err
	}

	results := services.NewRestaurantRanker(services.DefaultRankWeights()).Rank(cards, params)
	if results == nil {
		results = []models.Restaurant{}
	}
	if *asJSON {
		return a.printJSON(results)
	}
	return a.printRestaurants(results)
}

func (a *App) printRestaurants(results []models.Restaurant) error {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRATING\tDELIVERY FEE\tURL")
	for _, r := range results {
		rating, fee := "-", "-"
		if r.Rating != nil {
			rating = fmt.Sprintf("%.1f", *r.Rating)
		}
		if r.DeliveryFee != nil {
			fee = services.FormatPrice(*r.DeliveryFee)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, rating, fee, r.URL)
	}
	return w.Flush()
}

// menuFetcher scans a restaurant through the browser bridge, with screenshot OCR when
// withOCR is set. The returned close func releases the OCR engine.
func (a *App) menuFetcher(withOCR bool) (*services.CatalogFetcher, func(), error) {
	bridge := a.bridge(a.cfg.SessionFile)
	extractor := services.NewMenuExtractor(services.DefaultExtractorConfig())
	sources := []services.CandidateSource{services.NewDOMCandidateSource(bridge)}

	closeFn := func() {}
	if withOCR {
		ocr, err := services.NewOCRService(a.cfg.OCRLanguage)
		if err != nil {
			return nil, nil, fmt.Errorf("menu OCR unavailable: %w", err)
		}
		closeFn = func() { ocr.Close() }
		sources = append(sources, services.NewOCRCandidateSource(bridge, ocr, extractor, nil))
	}
	return services.NewCatalogFetcher(extractor, nil, sources...), closeFn, nil
}

func (a *App) runMenuFetch(ctx context.Context, args []string) error {
	fs := a.newFlagSet("menu fetch")
	restaurantURL := fs.String("restaurant-url", "", "restaurant page")
	withOCR := fs.Bool("ocr", false, "also read the menu from a page screenshot")
	out := fs.String("out", "", "write the catalog to this file")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag("menu fetch", "restaurant-url", *restaurantURL); err != nil {
		return err
	}
	if err := services.RequireSession(a.cfg.SessionFile); err != nil {
		return err
	}

	fetcher, closeFn, err := a.menuFetcher(*withOCR)
	if err != nil {
		return err
	}
	defer closeFn()

	catalog, err := fetcher.FetchMenu(ctx, strings.TrimSpace(*restaurantURL))
	if err != nil {
		return err
	}

	if *out != "" {
		path, err := a.writeJSONFile(*out, catalog)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "Menu written to %s\n", path)
	}
	if *asJSON || *out == "" {
		return a.printJSON(catalog)
	}
	return nil
}

// runCartBuild serves both "cart build --order-file" and "reorder --template"
func (a *App) runCartBuild(ctx context.Context, command, fileFlag string, args []string) error {
	fs := a.newFlagSet(command)
	orderFile := fs.String(fileFlag, "", "order template (.json, .yaml, .yml, .txt or .md)")
	menuFile := fs.String("menu-file", "", "catalog written by menu fetch")
	out := fs.String("out", "", "write the cart plan to this file")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag(command, fileFlag, *orderFile); err != nil {
		return err
	}

	template, err := services.ParseOrderFile(*orderFile)
	if err != nil {
		return err
	}

	var catalog *models.MenuCatalog
	switch {
	case *menuFile != "":
		catalog, err = services.LoadCatalogFile(*menuFile)
	case template.RestaurantURL != "":
		if err := services.RequireSession(a.cfg.SessionFile); err != nil {
			return err
		}
		var fetcher *services.CatalogFetcher
		var closeFn func()
		fetcher, closeFn, err = a.menuFetcher(false)
		if err == nil {
			defer closeFn()
			catalog, err = fetcher.FetchMenu(ctx, template.RestaurantURL)
		}
	default:
		return fmt.Errorf("provide --menu-file or set restaurantUrl in the order file for a live menu fetch: %w", ErrUsage)
	}
	if err != nil {
		return err
	}

	plan := services.NewCartMatcher().BuildCartPlan(template, catalog)

	if *out != "" {
		path, err := a.writeJSONFile(*out, plan)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Cart plan written to %s\n", path)
	}
	if *asJSON || *out == "" {
		return a.printJSON(plan)
	}
	return nil
}

func (a *App) runCheckoutDryRun(ctx context.Context, args []string) error {
	fs := a.newFlagSet("checkout dry-run")
	cartFile := fs.String("cart-file", "", "cart plan written by cart build")
	confirmPay := fs.Bool("confirm-pay", false, "continue to the payment confirmations")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag("checkout dry-run", "cart-file", *cartFile); err != nil {
		return err
	}

	data, err := os.ReadFile(*cartFile)
	if err != nil {
		return fmt.Errorf("failed to read cart file: %w", err)
	}
	var cart models.CartPlan
	if err := json.Unmarshal(data, &cart); err != nil {
		return fmt.Errorf("cart file %s is not a cart plan: %v: %w", *cartFile, err, apperr.ErrMalformedInput)
	}

	if err := a.printJSON(services.BuildDryRunSummary(&cart)); err != nil {
		return err
	}

	gate, err := services.NewPaymentGuard(a.prompter()).Run(ctx, *confirmPay)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "\nPayment gate:")
	fmt.Fprintln(a.stdout, gate.Message)
	return nil
}

// sessionFetcher checks the storefront session before every live menu fetch, so a
// missing login surfaces as a retryable menu failure inside the flow.
type sessionFetcher struct {
	sessionFile string
	next        flow.MenuFetcher
}

func (f sessionFetcher) FetchMenu(ctx context.Context, restaurantURL string) (*models.MenuCatalog, error) {
	if err := services.RequireSession(f.sessionFile); err != nil {
		return nil, err
	}
	return f.next.FetchMenu(ctx, restaurantURL)
}

// flowStore opens the conversation store in SQLite or the single-state file
func (a *App) flowStore(conversation, stateFile string) (flow.StateStore, func(), error) {
	if conversation == "" {
		return flow.NewFileStore(stateFile), func() {}, nil
	}

	db, err := database.OpenSQLite(a.cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return database.NewConversationStore(db, conversation), func() { db.Close() }, nil
}

func (a *App) runFlowCallback(ctx context.Context, args []string) error {
	fs := a.newFlagSet("flow callback")
	data := fs.String("data", "", "callback token, for example rappi:menu:start")
	stateFile := fs.String("state-file", a.cfg.FlowStateFile, "flow state file")
	conversation := fs.String("conversation", "", "keep the state in the SQLite store under this conversation id")
	restaurantURL := fs.String("restaurant-url", "", "restaurant to order from")
	menuFile := fs.String("menu-file", "", "serve the menu from a catalog file instead of the storefront")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag("flow callback", "data", *data); err != nil {
		return err
	}

	store, closeFn, err := a.flowStore(*conversation, *stateFile)
	if err != nil {
		return err
	}
	defer closeFn()

	var menus flow.MenuFetcher
	if *menuFile != "" {
		menus = services.NewCatalogFileFetcher(*menuFile)
	} else {
		fetcher, closeFetcher, err := a.menuFetcher(false)
		if err != nil {
			return err
		}
		defer closeFetcher()
		menus = sessionFetcher{sessionFile: a.cfg.SessionFile, next: fetcher}
	}

	controller := flow.NewController(menus, a.bridge(a.cfg.SessionFile))
	resp, err := controller.Handle(ctx, store, *data, flow.Options{
		RestaurantURL:        *restaurantURL,
		DefaultRestaurantURL: a.cfg.DefaultRestaurantURL,
		LiveOrdersEnabled:    a.cfg.LiveOrderEnabled,
		PageSize:             a.cfg.MenuPageSize,
		SessionFile:          a.cfg.SessionFile,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		return a.printJSON(resp)
	}
	return a.printFlowResponse(resp)
}

func (a *App) printFlowResponse(resp *models.FlowResponse) error {
	fmt.Fprintln(a.stdout, resp.Message)
	fmt.Fprintln(a.stdout)
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, row := range resp.Buttons {
		for _, button := range row {
			fmt.Fprintf(w, "  [%s]\t%s\n", button.Text, button.CallbackData)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(a.stdout, "\nstage: %s\n", resp.Stage)
	return err
}

func (a *App) runFlowConversations(ctx context.Context, args []string) error {
	fs := a.newFlagSet("flow conversations")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	db, err := database.OpenSQLite(a.cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.ListConversations(ctx)
	if err != nil {
		return err
	}
	if list == nil {
		list = []database.ConversationSummary{}
	}
	if *asJSON {
		return a.printJSON(list)
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tSTAGE\tUPDATED\tRESTAURANT")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ConversationID, c.Stage, c.UpdatedAt.Format("2006-01-02 15:04:05"), c.RestaurantURL)
	}
	return w.Flush()
}

func (a *App) runFlowReset(ctx context.Context, args []string) error {
	fs := a.newFlagSet("flow reset")
	stateFile := fs.String("state-file", a.cfg.FlowStateFile, "flow state file")
	conversation := fs.String("conversation", "", "conversation id in the SQLite store")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *conversation != "" {
		db, err := database.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.DeleteFlowState(ctx, *conversation); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Conversation %s reset\n", *conversation)
		return nil
	}

	if err := os.Remove(*stateFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove flow state: %w", err)
	}
	fmt.Fprintf(a.stdout, "Flow state %s reset\n", *stateFile)
	return nil
}

func (a *App) runHashSecret(args []string) error {
	fs := a.newFlagSet("auth hash-secret")
	secret := fs.String("secret", "", "bot client secret; read from stdin when empty")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	value := *secret
	if value == "" {
		fmt.Fprint(a.stderr, "Bot client secret: ")
		line, err := a.readLine()
		if err != nil {
			return err
		}
		value = line
	}

	hash, err := services.HashClientSecret(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, hash)
	return nil
}

func (a *App) writeJSONFile(path string, value any) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid output path %s: %w", path, err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", abs, err)
	}
	if err := flow.WriteFileAtomic(abs, append(data, '\n')); err != nil {
		return "", err
	}
	return abs, nil
}
