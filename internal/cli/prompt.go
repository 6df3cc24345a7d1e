package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/foxxcyber/rappi-flow/internal/services"
)

// terminalPrompter asks confirmations on the app's stdin/stdout
type terminalPrompter struct {
	app *App
}

func (a *App) prompter() services.Prompter {
	return terminalPrompter{app: a}
}

func (p terminalPrompter) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.app.stdout, question)
	return p.app.readLine()
}

func (p terminalPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := p.Ask(ctx, question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readLine returns the next trimmed input line. A final line without a newline counts.
func (a *App) readLine() (string, error) {
	line, err := a.stdin.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no input on stdin: %w", err)
		}
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
