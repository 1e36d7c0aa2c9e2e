package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/control"
	"transcript-cleaner/internal/lint"
	"transcript-cleaner/internal/output"
	"transcript-cleaner/internal/provider"
	"transcript-cleaner/internal/runner"
	"transcript-cleaner/internal/runstore"
	"transcript-cleaner/internal/segment"
)

const defaultControlAddr = "127.0.0.1:8765"

type execOptions struct {
	Title     string
	Duration  string
	OutputDir string
	Listen    string
	TUI       bool
	JSON      bool
}

type runReport struct {
	Outcome      string          `json:"outcome"`
	SessionID    string          `json:"session_id"`
	JobID        string          `json:"job_id"`
	Completed    int             `json:"completed"`
	Total        int             `json:"total"`
	Cost         decimal.Decimal `json:"cost"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	MarkdownPath string          `json:"markdown_path,omitempty"`
	MetadataPath string          `json:"metadata_path,omitempty"`
	LintErrors   int             `json:"lint_errors,omitempty"`
	LintWarnings int             `json:"lint_warnings,omitempty"`
	FailedUnit   *int            `json:"failed_unit,omitempty"`
	Error        string          `json:"error,omitempty"`
	Next         string          `json:"next,omitempty"`
}

func executeRun(r *runner.Runner, env *jobEnv, units []segment.WorkUnit, ro runner.RunOptions, eo execOptions) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if eo.Listen != "" {
		stop, err := startControlServer(eo.Listen, r, env.store, env.logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	var (
		out    runner.Outcome
		runErr error
	)
	if eo.TUI && stdinIsTTY() {
		out, runErr = runWithTUI(ctx, cancel, r, units, ro, eo.Title)
	} else {
		if eo.TUI {
			fmt.Fprintln(os.Stderr, "warning: --tui needs an interactive terminal; using line output")
		}
		stopSignals := handleInterrupts(r, cancel, os.Stderr)
		defer stopSignals()

		progressOut := io.Writer(os.Stdout)
		if eo.JSON {
			progressOut = os.Stderr
		}
		ro.OnProgress = runner.LinePrinter(progressOut)
		out, runErr = r.Run(ctx, units, ro)
	}
	return reportOutcome(out, runErr, eo)
}

// handleInterrupts turns the first Ctrl-C into a pause request and the second
// into cancellation of the in-flight call.
func handleInterrupts(r *runner.Runner, cancel context.CancelFunc, w io.Writer) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		requested := false
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				if !requested && r.Pause() {
					requested = true
					fmt.Fprintln(w, "pause requested: finishing the current unit (Ctrl-C again to abort it)")
					continue
				}
				fmt.Fprintln(w, "aborting: the unfinished unit will be redone on resume")
				cancel()
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func startControlServer(addr string, r *runner.Runner, store *runstore.Store, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           control.Server{Target: r, Store: store}.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control server stopped", "err", err)
		}
	}()
	fmt.Fprintf(os.Stderr, "control server listening on http://%s\n", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func reportOutcome(out runner.Outcome, runErr error, eo execOptions) error {
	if runErr != nil && out.Kind != runner.OutcomeFailed {
		return runErr
	}

	rep := runReport{
		Outcome:      string(out.Kind),
		SessionID:    out.SessionID,
		JobID:        out.JobID,
		Completed:    out.Completed,
		Total:        out.Total,
		Cost:         out.Summary.TotalCost,
		InputTokens:  out.Summary.TotalInputTokens,
		OutputTokens: out.Summary.TotalOutputTokens,
	}

	switch out.Kind {
	case runner.OutcomeCompleted:
		written, err := output.NewWriter(eo.OutputDir).Write(out.Results, eo.Title, out.Summary, eo.Duration)
		if err != nil {
			return err
		}
		report := lint.CheckAll(out.Results)
		rep.MarkdownPath = written.MarkdownPath
		rep.MetadataPath = written.MetadataPath
		rep.LintErrors = report.Count(lint.SeverityError)
		rep.LintWarnings = report.Count(lint.SeverityWarning)
		if report.HasErrors() {
			rep.Next = "transcript-cleaner lint"
		}
	case runner.OutcomePaused:
		rep.Next = "transcript-cleaner resume"
	case runner.OutcomeFailed:
		rep.Error = runErr.Error()
		var jobErr *runner.JobError
		if errors.As(runErr, &jobErr) {
			idx := jobErr.UnitIndex
			rep.FailedUnit = &idx
		}
		if provider.IsAuth(runErr) {
			rep.Next = "fix the API key, then: transcript-cleaner resume --recover"
		} else {
			rep.Next = "transcript-cleaner resume --recover"
		}
	}

	if eo.JSON {
		if err := printJSON(rep); err != nil {
			return err
		}
	} else {
		printRunReport(rep)
	}
	if out.Kind == runner.OutcomeFailed {
		return runErr
	}
	return nil
}

func printRunReport(rep runReport) {
	fmt.Println("run summary")
	fmt.Printf("outcome: %s\n", statusText(rep.Outcome))
	fmt.Printf("job_id: %s\n", rep.JobID)
	fmt.Printf("session_id: %s\n", rep.SessionID)
	fmt.Printf("units: %d/%d\n", rep.Completed, rep.Total)
	fmt.Printf("cost: $%s\n", rep.Cost.StringFixed(4))
	fmt.Printf("tokens: %d in / %d out\n", rep.InputTokens, rep.OutputTokens)
	if rep.MarkdownPath != "" {
		fmt.Printf("markdown: %s\n", rep.MarkdownPath)
		fmt.Printf("metadata: %s\n", rep.MetadataPath)
		fmt.Printf("lint: %d errors, %d warnings\n", rep.LintErrors, rep.LintWarnings)
	}
	if rep.FailedUnit != nil {
		fmt.Printf("failed_unit: %d\n", *rep.FailedUnit)
	}
	if rep.Next != "" {
		fmt.Printf("next: %s\n", rep.Next)
	}
}
