package cli

import (
	"context"
	"errors"
	"fmt"
)

// Run dispatches a subcommand. Individual job failures never surface here;
// only structural problems do.
func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runBatch(args[1:])
	case "estimate", "dryrun":
		return runEstimate(args[1:])
	case "retry":
		return runRetry(args[1:])
	case "resume":
		return runResume(args[1:])
	case "status":
		return runStatus(args[1:])
	case "stats":
		return runStats(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "serve":
		return runServe(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// ExitCode maps an error returned by Run to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func printRootUsage() {
	fmt.Println("solotranscribe: batch video-to-transcript pipeline")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  solotranscribe status")
	fmt.Println("  solotranscribe estimate --in urls.txt")
	fmt.Println("  solotranscribe run --in urls.txt --out ./out --format txt,srt")
	fmt.Println("  solotranscribe retry --manifest ./out/manifest.json")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       process every URL of an input list (--dry-run to estimate only)")
	fmt.Println("  estimate  sample metadata and estimate cost and time")
	fmt.Println("  retry     retry failed jobs of a saved batch")
	fmt.Println("  resume    continue pending jobs of an interrupted batch")
	fmt.Println("  status    configuration, credential and dependency checks")
	fmt.Println("  stats     statistics for a saved batch")
	fmt.Println("  inspect   interactive job browser for a saved batch")
	fmt.Println("  serve     read-only HTTP status API for a batch")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Settings come from solotranscribe.toml, .env and the environment; flags win")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Input files are .txt (one URL per line) or .csv with a url column")
}
