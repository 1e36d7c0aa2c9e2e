package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"transcript-cleaner/internal/config"
)

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	stateDir := fs.String("state-dir", "", "job state directory (default: settings/env)")
	modelName := fs.String("model", "", "model id to check credentials for (default: settings)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*cfgPath)
	file, err := config.Read(path)
	if err != nil {
		return err
	}
	rt, err := config.Resolve(file, config.Overrides{
		Model:    strings.TrimSpace(*modelName),
		StateDir: strings.TrimSpace(*stateDir),
	})
	if err != nil {
		return err
	}

	res := config.Doctor(context.Background(), rt, path)
	if *jsonOut {
		return printJSON(res)
	}
	for _, c := range res.Checks {
		status := okStyle.Render("ok")
		if !c.OK {
			status = errorStyle.Render("fail")
		}
		fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}
