package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"transcript-cleaner/internal/config"
	"transcript-cleaner/internal/estimate"
	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/runner"
)

func runNew(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	input := fs.String("input", "", "transcript file (.srt, .vtt or .txt)")
	title := fs.String("title", "", "document title (default: file name)")
	modelName := fs.String("model", "", "model id (default: settings)")
	providerName := fs.String("provider", "", "provider: anthropic|deepseek (default: from model)")
	language := fs.String("language", "", "output language label")
	chunkSize := fs.Int("chunk-size", 0, "target characters per unit (0 = settings)")
	overlap := fs.Int("overlap", -1, "context characters carried from the previous unit (-1 = settings)")
	prompt := fs.String("prompt", "", "prompt template file (default: built-in)")
	outputDir := fs.String("output-dir", "", "directory for the finished document")
	yes := fs.Bool("yes", false, "skip the cost confirmation")
	force := fs.Bool("force", false, "discard a resumable job instead of refusing")
	tui := fs.Bool("tui", false, "interactive progress UI (p pauses)")
	listen := fs.String("listen", "", "serve job status and pause on this address, e.g. "+defaultControlAddr)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*input) == "" {
		fs.Usage()
		return errors.New("--input is required")
	}

	o := config.Overrides{
		Model:      strings.TrimSpace(*modelName),
		Provider:   strings.TrimSpace(*providerName),
		Language:   strings.TrimSpace(*language),
		ChunkSize:  *chunkSize,
		OutputDir:  strings.TrimSpace(*outputDir),
		PromptPath: strings.TrimSpace(*prompt),
	}
	if *overlap >= 0 {
		v := *overlap
		o.Overlap = &v
	}
	env, err := openEnv(common, o)
	if err != nil {
		return err
	}
	rt := env.rt
	ctx := context.Background()

	src, err := loadSource(*input, rt.ChunkSize, rt.Overlap)
	if err != nil {
		return err
	}
	if len(src.Units) == 0 {
		return fmt.Errorf("transcript %s produced no work units", src.Path)
	}
	template, err := loadTemplate(rt.PromptPath)
	if err != nil {
		return err
	}

	est := estimate.Estimate(src.Units, template, rt.Model)
	if !*common.jsonOut {
		fmt.Print(est.Format())
	}
	if est.NeedsConfirmation() && !*yes {
		ok, err := promptConfirm(fmt.Sprintf("estimated cost $%s exceeds $%s. continue? [y/N] ", est.TotalCost.StringFixed(2), estimate.ConfirmThreshold.StringFixed(2)))
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("aborted")
		}
	}

	if !*force {
		prev, err := env.store.Read(ctx)
		if err != nil {
			return err
		}
		if err := guardExistingJob(prev); err != nil {
			return err
		}
	}

	r, closeRunner, err := env.newRunner(rt.ProviderName(), rt.Model, rt.MaxTokens, rt.Temperature)
	if err != nil {
		return err
	}
	defer closeRunner()

	st, err := r.StartNewJob(ctx, runner.NewJob{
		SourceName:    src.Name,
		SourceSize:    src.Size,
		Title:         strings.TrimSpace(*title),
		TotalUnits:    len(src.Units),
		Config:        jobConfig(rt, src.Path),
		EstimatedCost: est.TotalCost,
	})
	if err != nil {
		return err
	}
	if !*common.jsonOut {
		fmt.Printf("job_id: %s\n", st.JobID)
		fmt.Printf("units: %d\n", st.TotalUnits)
	}

	return executeRun(r, env, src.Units, runner.RunOptions{
		Template: template,
		Title:    st.Title,
		Language: rt.OutputLanguage,
	}, execOptions{
		Title:     st.Title,
		Duration:  src.Duration,
		OutputDir: rt.OutputDir,
		Listen:    strings.TrimSpace(*listen),
		TUI:       *tui,
		JSON:      *common.jsonOut,
	})
}

func jobConfig(rt config.Runtime, sourcePath string) map[string]any {
	cfg := map[string]any{
		model.ConfigModel:          rt.Model,
		model.ConfigProvider:       rt.ProviderName(),
		model.ConfigOutputLanguage: rt.OutputLanguage,
		model.ConfigTemperature:    rt.Temperature,
		model.ConfigMaxTokens:      rt.MaxTokens,
		model.ConfigChunkSize:      rt.ChunkSize,
		model.ConfigOverlap:        rt.Overlap,
		model.ConfigSourcePath:     absPath(sourcePath),
		model.ConfigPromptPath:     "",
	}
	if rt.PromptPath != "" {
		cfg[model.ConfigPromptPath] = absPath(rt.PromptPath)
	}
	return cfg
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	common := addCommonFlags(fs)
	recoverCrashed := fs.Bool("recover", false, "resume a crashed job, retrying the unit that failed")
	outputDir := fs.String("output-dir", "", "directory for the finished document")
	tui := fs.Bool("tui", false, "interactive progress UI (p pauses)")
	listen := fs.String("listen", "", "serve job status and pause on this address, e.g. "+defaultControlAddr)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(common, config.Overrides{OutputDir: strings.TrimSpace(*outputDir)})
	if err != nil {
		return err
	}
	ctx := context.Background()

	st, err := env.store.Read(ctx)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("%w in %s", runner.ErrNoJob, env.store.Dir())
	}
	if st.Status == model.StatusCrashed && !*recoverCrashed {
		return fmt.Errorf("job %s crashed (%s); fix the cause and rerun with --recover", st.JobID, failedUnitsText(st))
	}

	src, err := sourceForState(st)
	if err != nil {
		return err
	}
	template, err := loadTemplate(st.ConfigString(model.ConfigPromptPath))
	if err != nil {
		return err
	}

	r, closeRunner, err := env.newRunner(
		st.ConfigString(model.ConfigProvider),
		st.ConfigString(model.ConfigModel),
		st.ConfigInt(model.ConfigMaxTokens),
		st.ConfigFloat(model.ConfigTemperature),
	)
	if err != nil {
		return err
	}
	defer closeRunner()

	if st.Status == model.StatusCrashed {
		if st, err = r.Recover(ctx); err != nil {
			return err
		}
	}
	if !*common.jsonOut {
		fmt.Printf("resuming job %s: %d/%d units already done\n", st.JobID, len(st.CompletedIndices), st.TotalUnits)
	}

	return executeRun(r, env, src.Units, runner.RunOptions{
		Template: template,
		Title:    st.Title,
		Language: st.ConfigString(model.ConfigOutputLanguage),
		Resume:   true,
	}, execOptions{
		Title:     st.Title,
		Duration:  src.Duration,
		OutputDir: env.rt.OutputDir,
		Listen:    strings.TrimSpace(*listen),
		TUI:       *tui,
		JSON:      *common.jsonOut,
	})
}

func failedUnitsText(st *model.JobState) string {
	if len(st.FailedIndices) == 0 {
		return "no failed units recorded"
	}
	parts := make([]string, 0, len(st.FailedIndices))
	for idx := 0; idx < st.TotalUnits; idx++ {
		if msg, ok := st.FailedIndices[idx]; ok {
			parts = append(parts, fmt.Sprintf("unit %d: %s", idx, msg))
		}
	}
	return strings.Join(parts, "; ")
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	common := addCommonFlags(fs)
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openEnv(common, config.Overrides{})
	if err != nil {
		return err
	}
	ctx := context.Background()
	sum, err := env.store.Summary(ctx)
	if err != nil {
		return err
	}
	if sum == nil {
		fmt.Println("no saved job")
		return nil
	}
	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("delete saved job %q (%s, %d/%d units, $%s spent)? [y/N] ", sum.Title, sum.Status, sum.Completed, sum.Total, sum.ActualCost.StringFixed(4)))
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("aborted")
		}
	}
	if err := env.store.Clear(ctx); err != nil {
		return err
	}
	if *common.jsonOut {
		return printJSON(map[string]any{"cleared": true, "job_id": sum.JobID})
	}
	fmt.Printf("cleared job %s\n", sum.JobID)
	return nil
}

// guardExistingJob refuses to replace a job that still holds paid-for work.
func guardExistingJob(st *model.JobState) error {
	switch {
	case st == nil:
		return nil
	case st.Resumable():
		return errors.New("a resumable job already exists: run `transcript-cleaner resume`, or pass --force to discard it")
	case st.Status == model.StatusCrashed && len(st.CompletedIndices) > 0:
		return fmt.Errorf("a crashed job with %d completed units exists: run `transcript-cleaner resume --recover`, or pass --force to discard it", len(st.CompletedIndices))
	}
	return nil
}
