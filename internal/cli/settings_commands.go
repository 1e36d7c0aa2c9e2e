package cli

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"transcript-cleaner/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := config.Read(strings.TrimSpace(*cfgPath))
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": strings.TrimSpace(*cfgPath),
			"settings":    s,
		})
	}
	printSettings(strings.TrimSpace(*cfgPath), s)
	return nil
}

// runSettingsSet takes key=value pairs, e.g. `settings set model=deepseek-chat overlap=150`.
func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	pairs := fs.Args()
	if len(pairs) == 0 {
		printSettingsUsage()
		return errors.New("at least one key=value pair is required")
	}

	path := strings.TrimSpace(*cfgPath)
	s, err := config.Read(path)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", pair)
		}
		if err := s.Set(key, value); err != nil {
			return err
		}
	}

	saved, err := config.Save(path, s)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"settings":    saved,
		})
	}
	fmt.Printf("updated settings in %s\n", path)
	printSettings(path, saved)
	return nil
}

func printSettings(path string, s config.Settings) {
	fmt.Printf("config: %s\n", path)
	fmt.Printf("model: %s\n", s.Model)
	fmt.Printf("provider: %s\n", firstNonEmpty(s.Provider, "(from model)"))
	fmt.Printf("output_language: %s\n", s.OutputLanguage)
	fmt.Printf("chunk_size: %d\n", s.ChunkSize)
	fmt.Printf("overlap: %d\n", s.Overlap)
	fmt.Printf("temperature: %s\n", formatFloat(s.Temperature))
	fmt.Printf("max_tokens: %d\n", s.MaxTokens)
	fmt.Printf("state_dir: %s\n", s.StateDir)
	fmt.Printf("output_dir: %s\n", s.OutputDir)
	fmt.Printf("prompt_path: %s\n", firstNonEmpty(s.PromptPath, "(built-in)"))
	fmt.Printf("lock_timeout_seconds: %d\n", s.LockTimeoutSeconds)
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  settings show")
	fmt.Println("  settings set key=value [key=value ...]")
	fmt.Println()
	fmt.Println("keys: model, provider, output_language, chunk_size, overlap, temperature,")
	fmt.Println("      max_tokens, state_dir, output_dir, prompt_path, lock_timeout_seconds")
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
