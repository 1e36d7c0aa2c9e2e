package cli

import (
	"fmt"

	"transcript-cleaner/internal/config"
)

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}
	config.LoadDotEnv()

	switch args[0] {
	case "run":
		return runNew(args[1:])
	case "resume":
		return runResume(args[1:])
	case "status":
		return runStatus(args[1:])
	case "pause":
		return runPause(args[1:])
	case "clear":
		return runClear(args[1:])
	case "estimate":
		return runEstimate(args[1:])
	case "lint":
		return runLint(args[1:])
	case "history":
		return runHistory(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("transcript-cleaner: checkpointed LLM cleanup of video transcripts")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  transcript-cleaner estimate --input talk.srt")
	fmt.Println("  transcript-cleaner run --input talk.srt")
	fmt.Println("  transcript-cleaner resume")
	fmt.Println()
	fmt.Println("Job Commands:")
	fmt.Println("  run       start a new job from a .srt, .vtt or .txt transcript")
	fmt.Println("  resume    continue the saved job from its last checkpoint")
	fmt.Println("  status    show the saved job state")
	fmt.Println("  pause     ask a running job (started with --listen) to pause")
	fmt.Println("  clear     delete the saved job state")
	fmt.Println()
	fmt.Println("Other Commands:")
	fmt.Println("  estimate  price a transcript without calling the provider")
	fmt.Println("  lint      check the saved job's cleaned output for common problems")
	fmt.Println("  history   list past runs")
	fmt.Println("  settings  show/update default settings")
	fmt.Println("  doctor    check credentials, directories and the state lock")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on reporting commands for machine-readable output")
	fmt.Println("  - Ctrl-C during a run pauses after the current unit; press it again to abort")
	fmt.Println("  - API keys come from ANTHROPIC_API_KEY / DEEPSEEK_API_KEY (a .env file is read if present)")
}
