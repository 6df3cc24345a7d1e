// Package cli implements the rappi-cli subcommands.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/foxxcyber/rappi-flow/internal/config"
	"github.com/foxxcyber/rappi-flow/internal/services"
)

// ErrUsage is returned for unknown commands and bad flags
var ErrUsage = errors.New("usage error")

const helpText = `rappi-cli - Restaurant-only automation helper for rappi.com.ar

Usage:
  rappi-cli login bootstrap [--session-file path]
  rappi-cli restaurants search --query "pizza" [--city name] [--max 20] [--min-rating 4] [--delivery-fee-max 1500] [--json]
  rappi-cli menu fetch --restaurant-url "https://www.rappi.com.ar/restaurantes/..." [--ocr] [--out menu.json] [--json]
  rappi-cli cart build --order-file order.yaml [--menu-file menu.json] [--out cart.json] [--json]
  rappi-cli checkout dry-run --cart-file cart.json [--confirm-pay]
  rappi-cli flow callback --data "rappi:menu:start" [--state-file path | --conversation id] [--restaurant-url url] [--menu-file menu.json] [--json]
  rappi-cli flow conversations [--json]
  rappi-cli flow reset [--state-file path | --conversation id]
  rappi-cli reorder --template order.yaml [--menu-file menu.json] [--out cart.json] [--json]
  rappi-cli auth hash-secret [--secret value]

Key safety constraints:
  - Restaurant flows only.
  - Real purchases are disabled by default.
  - Live callback payment click is only attempted when RAPPI_LIVE_ORDER_ENABLED=true
    and the flow reaches rappi:confirm:pay after rappi:confirm:checkout.
  - Checkout requires --confirm-pay plus a second interactive confirmation,
    but still never submits a purchase action.
`

// App runs CLI commands against one configuration
type App struct {
	cfg    *config.Config
	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer
}

// New creates a CLI app reading prompts from stdin
func New(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) *App {
	return &App{
		cfg:    cfg,
		stdin:  bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
	}
}

// Run dispatches args (without the program name) to a subcommand
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || isHelp(args[0]) {
		fmt.Fprint(a.stdout, helpText)
		return nil
	}

	group := args[0]
	action := ""
	rest := args[1:]
	if len(rest) > 0 && !isFlag(rest[0]) {
		action = rest[0]
		rest = rest[1:]
	}

	switch {
	case group == "login" && action == "bootstrap":
		return a.runLoginBootstrap(ctx, rest)
	case group == "restaurants" && action == "search":
		return a.runRestaurantsSearch(ctx, rest)
	case group == "menu" && action == "fetch":
		return a.runMenuFetch(ctx, rest)
	case group == "cart" && action == "build":
		return a.runCartBuild(ctx, "cart build", "order-file", rest)
	case group == "checkout" && action == "dry-run":
		return a.runCheckoutDryRun(ctx, rest)
	case group == "flow" && action == "callback":
		return a.runFlowCallback(ctx, rest)
	case group == "flow" && action == "conversations":
		return a.runFlowConversations(ctx, rest)
	case group == "flow" && action == "reset":
		return a.runFlowReset(ctx, rest)
	case group == "reorder" && action == "":
		return a.runCartBuild(ctx, "reorder", "template", rest)
	case group == "auth" && action == "hash-secret":
		return a.runHashSecret(rest)
	}

	return fmt.Errorf("unknown command: %s %s: %w", group, action, ErrUsage)
}

func isHelp(arg string) bool {
	return arg == "help" || arg == "-h" || arg == "--help"
}

func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

func (a *App) bridge(sessionFile string) *services.BrowserBridge {
	return services.NewBrowserBridge(a.cfg.BridgeURL, sessionFile, a.cfg.BridgeTimeout)
}

// printJSON writes value as indented JSON
func (a *App) printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

// optionalFloat is a numeric flag that stays nil unless set
type optionalFloat struct {
	value *float64
}

func (f *optionalFloat) String() string {
	if f.value == nil {
		return ""
	}
	return strconv.FormatFloat(*f.value, 'f', -1, 64)
}

func (f *optionalFloat) Set(raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", raw)
	}
	f.value = &v
	return nil
}
