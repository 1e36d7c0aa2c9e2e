package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"transcript-cleaner/internal/config"
	"transcript-cleaner/internal/estimate"
	"transcript-cleaner/internal/history"
	"transcript-cleaner/internal/lint"
	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/runstore"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	common := addCommonFlags(fs)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(common, config.Overrides{})
	if err != nil {
		return err
	}
	st, err := env.store.Read(context.Background())
	if err != nil {
		return err
	}
	if st == nil {
		if *common.jsonOut {
			return printJSON(map[string]any{"job": nil})
		}
		fmt.Println("no saved job")
		return nil
	}

	sum := runstore.SummaryOf(st)
	if *common.jsonOut {
		return printJSON(map[string]any{
			"job":    sum,
			"failed": st.FailedIndices,
		})
	}

	fmt.Printf("job_id: %s\n", sum.JobID)
	fmt.Printf("title: %s\n", sum.Title)
	fmt.Printf("source: %s\n", sum.SourceName)
	fmt.Printf("status: %s\n", statusText(sum.Status))
	fmt.Printf("progress: %d/%d (%.0f%%)\n", sum.Completed, sum.Total, sum.Progress)
	fmt.Printf("model: %s\n", sum.Model)
	fmt.Printf("cost: $%s (estimated $%s)\n", sum.ActualCost.StringFixed(4), sum.EstimatedCost.StringFixed(4))
	fmt.Printf("tokens: %d in / %d out\n", sum.InputTokens, sum.OutputTokens)
	fmt.Printf("started: %s\n", sum.StartedAt.Local().Format(time.DateTime))
	fmt.Printf("updated: %s\n", sum.LastUpdatedAt.Local().Format(time.DateTime))
	if len(st.FailedIndices) > 0 {
		fmt.Printf("failed: %s\n", failedUnitsText(st))
	}
	switch {
	case sum.Resumable:
		fmt.Println("next: transcript-cleaner resume")
	case sum.Status == model.StatusCrashed:
		fmt.Println("next: transcript-cleaner resume --recover")
	}
	return nil
}

func runPause(args []string) error {
	fs := flag.NewFlagSet("pause", flag.ContinueOnError)
	addr := fs.String("addr", defaultControlAddr, "control address of the running job (its --listen value)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	url := "http://" + strings.TrimSpace(*addr) + "/v1/job/pause"
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("reach running job at %s: %w", *addr, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	switch resp.StatusCode {
	case http.StatusAccepted:
	case http.StatusConflict:
		return errors.New("no active run to pause")
	default:
		return fmt.Errorf("pause request failed: %s %v", resp.Status, body["error"])
	}
	if *jsonOut {
		return printJSON(body)
	}
	fmt.Println("pause requested: the job stops after its current unit")
	return nil
}

func runEstimate(args []string) error {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	input := fs.String("input", "", "transcript file (.srt, .vtt or .txt)")
	modelName := fs.String("model", "", "model id (default: settings)")
	chunkSize := fs.Int("chunk-size", 0, "target characters per unit (0 = settings)")
	overlap := fs.Int("overlap", -1, "context characters (-1 = settings)")
	prompt := fs.String("prompt", "", "prompt template file (default: built-in)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*input) == "" {
		fs.Usage()
		return errors.New("--input is required")
	}

	file, err := config.Read(strings.TrimSpace(*cfgPath))
	if err != nil {
		return err
	}
	o := config.Overrides{
		Model:      strings.TrimSpace(*modelName),
		ChunkSize:  *chunkSize,
		PromptPath: strings.TrimSpace(*prompt),
	}
	if *overlap >= 0 {
		v := *overlap
		o.Overlap = &v
	}
	rt, err := config.Resolve(file, o)
	if err != nil {
		return err
	}

	src, err := loadSource(*input, rt.ChunkSize, rt.Overlap)
	if err != nil {
		return err
	}
	template, err := loadTemplate(rt.PromptPath)
	if err != nil {
		return err
	}
	est := estimate.Estimate(src.Units, template, rt.Model)
	if *jsonOut {
		return printJSON(map[string]any{
			"source":             src.Name,
			"estimate":           est,
			"needs_confirmation": est.NeedsConfirmation(),
		})
	}
	fmt.Printf("source:        %s\n", src.Name)
	fmt.Print(est.Format())
	if est.NeedsConfirmation() {
		fmt.Printf("note: above $%s, `run` will ask for confirmation (or pass --yes)\n", estimate.ConfirmThreshold.StringFixed(2))
	}
	return nil
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	common := addCommonFlags(fs)
	strict := fs.Bool("strict", false, "exit with an error when any error-level issue is found")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(common, config.Overrides{})
	if err != nil {
		return err
	}
	st, err := env.store.Read(context.Background())
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("no saved job to lint")
	}

	report := lint.CheckAll(st.SortedResults())
	if *common.jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		for _, issue := range report.Issues {
			line := fmt.Sprintf("unit %d  %-7s %s: %s", issue.UnitIndex, issue.Severity, issue.Rule, issue.Message)
			if issue.Snippet != "" {
				line += "  " + mutedStyle.Render(fmt.Sprintf("%q", issue.Snippet))
			}
			fmt.Println(line)
		}
		fmt.Printf("%d units checked: %d errors, %d warnings, %d info\n",
			len(st.CachedResults),
			report.Count(lint.SeverityError),
			report.Count(lint.SeverityWarning),
			report.Count(lint.SeverityInfo))
	}
	if *strict && report.HasErrors() {
		return fmt.Errorf("lint found %d errors", report.Count(lint.SeverityError))
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	common := addCommonFlags(fs)
	jobID := fs.String("job", "", "only runs of this job id")
	limit := fs.Int("limit", 25, "max runs to list")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(common, config.Overrides{})
	if err != nil {
		return err
	}
	db, err := history.Open(env.historyPath())
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.List(context.Background(), strings.TrimSpace(*jobID), *limit)
	if err != nil {
		return err
	}
	if *common.jsonOut {
		if entries == nil {
			entries = []history.Entry{}
		}
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %-9s %d/%d  $%s  %s\n",
			e.FinishedAt.Local().Format(time.DateTime),
			e.JobID,
			statusText(e.Status),
			e.UnitsDone,
			e.UnitsTotal,
			e.Cost.StringFixed(4),
			e.Title)
		if e.Error != "" {
			fmt.Printf("    %s\n", errorStyle.Render(e.Error))
		}
	}
	return nil
}
