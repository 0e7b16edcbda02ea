package common

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/tools/ui"
)

// Step is the work behind one subcommand. The returned lines are shown in the
// UI summary or the CI document.
type Step func(ctx context.Context) ([]string, error)

type Invocation struct {
	Tool    string
	Command string
	CI      bool
	// Timeout bounds a --ci run. Zero means no deadline.
	Timeout time.Duration
	// Out receives the CI document; nil means stdout.
	Out io.Writer
}

func (inv Invocation) Title() string {
	return inv.Tool + " " + inv.Command
}

// Execute runs step headless or under the progress UI, records the tool
// metrics and, in CI mode, prints the result document.
func Execute(inv Invocation, step Step) ([]string, error) {
	start := time.Now()
	var (
		details []string
		err     error
	)
	if inv.CI {
		details, err = runHeadless(inv.Timeout, step)
	} else {
		details, err = ui.Run(inv.Title(), step)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordToolCommandRun(context.Background(), inv.Tool, inv.Command, outcome)
	observability.RecordToolCommandDuration(context.Background(), inv.Tool, inv.Command, outcome, time.Since(start))

	if inv.CI {
		out := inv.Out
		if out == nil {
			out = os.Stdout
		}
		_ = NewCIResult(inv.Title(), details, err).Write(out)
	}
	return details, err
}

func runHeadless(timeout time.Duration, step Step) ([]string, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return step(ctx)
}
