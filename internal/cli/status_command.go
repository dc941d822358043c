package cli

import (
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"

	"solotranscribe/internal/config"
	"solotranscribe/internal/doctor"
	"solotranscribe/internal/logging"
	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

type statusReport struct {
	Config  config.Config `json:"config"`
	Invalid string        `json:"invalid,omitempty"`
	Doctor  doctor.Result `json:"doctor"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	checkAPI := fs.Bool("check-api", false, "verify API keys against the remote services")
	common := addCommonFlags(fs)

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	report := statusReport{Config: cfg.Redacted()}
	if err := cfg.Validate(); err != nil {
		report.Invalid = err.Error()
	}

	// Status must report on a broken configuration, so it builds the app
	// without validation and without a log file.
	a := &app{cfg: cfg, logger: logging.Discard()}

	opts := doctor.Options{Config: cfg, CheckAPI: *checkAPI, Transcriber: a.transcriber()}
	if pinger, ok := a.converter().(doctor.Pinger); ok {
		opts.Converter = pinger
	}
	ctx, stop := signalContext()
	defer stop()
	report.Doctor = doctor.Run(ctx, opts)

	if *common.jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printStatus(report)
	}
	if report.Invalid != "" || !report.Doctor.OK {
		return errors.New("status checks failed")
	}
	return nil
}

func printStatus(r statusReport) {
	c := r.Config
	fmt.Println(titleStyle.Render("configuration"))
	fmt.Printf("sources: %s\n", strings.Join(c.Sources, ", "))
	fmt.Printf("assemblyai_api_key: %s\n", firstNonEmpty(c.AssemblyAIKey, "(unset)"))
	fmt.Printf("freeconvert_api_key: %s\n", firstNonEmpty(c.FreeConvertKey, "(unset)"))
	fmt.Printf("out_dir: %s\n", c.OutDir)
	fmt.Printf("temp_dir: %s\n", c.TempDir)
	fmt.Printf("cap_budget_usd: %s\n", formatUSD(c.BudgetCap))
	fmt.Printf("retry_limit: %d\n", c.RetryLimit)
	fmt.Printf("delete_temp_on_success: %t\n", c.DeleteTemp)
	fmt.Printf("enable_summary: %t\n", c.Summarize)
	fmt.Printf("converter: %s\n", c.Converter)
	fmt.Printf("poll_interval: %s\n", c.PollInterval)
	fmt.Printf("poll_timeout: %s\n", c.PollTimeout)
	if c.YTDLPProxy != "" {
		fmt.Printf("ytdlp_proxy: %s\n", c.YTDLPProxy)
	}
	if r.Invalid != "" {
		fmt.Println(errorStyle.Render("invalid: " + r.Invalid))
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("checks"))
	for _, check := range r.Doctor.Checks {
		mark := okStyle.Render("ok  ")
		if !check.OK {
			mark = errorStyle.Render("FAIL")
		}
		fmt.Printf("%s %-24s %s\n", mark, check.Name, mutedStyle.Render(check.Message))
	}
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	manifest := fs.String("manifest", "", "path to manifest.json or the batch output directory")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*manifest) == "" {
		fs.Usage()
		return errors.New("--manifest is required")
	}
	path, err := runstore.ResolveManifestPath(strings.TrimSpace(*manifest))
	if err != nil {
		return err
	}
	mf, err := runstore.LoadManifest(path)
	if err != nil {
		return err
	}
	stats := model.ComputeStats(mf)
	if *jsonOut {
		return printJSON(stats)
	}

	fmt.Printf("batch_id: %s\n", mf.ID)
	fmt.Printf("manifest: %s\n", path)
	fmt.Printf("total_jobs: %d\n", stats.TotalJobs)
	fmt.Printf("completed: %s\n", okStyle.Render(fmt.Sprint(stats.CompletedJobs)))
	fmt.Printf("failed: %s\n", errorStyle.Render(fmt.Sprint(stats.FailedJobs)))
	fmt.Printf("skipped: %s\n", warnStyle.Render(fmt.Sprint(stats.SkippedJobs)))
	fmt.Printf("pending: %d\n", stats.PendingJobs)
	if stats.InProgressJobs > 0 {
		fmt.Printf("in_progress: %d\n", stats.InProgressJobs)
	}
	fmt.Printf("success_rate: %.1f%%\n", stats.SuccessRate*100)
	fmt.Printf("estimated_cost: %s\n", formatUSD(stats.TotalEstimatedCost))
	fmt.Printf("actual_cost: %s\n", formatUSD(stats.TotalActualCost))
	fmt.Printf("budget: %s (remaining %s)\n", formatUSD(stats.BudgetCap), formatUSD(stats.BudgetRemaining))
	if stats.WallClockSeconds > 0 {
		fmt.Printf("wall_clock: %s\n", formatDuration(stats.WallClockSeconds))
	}
	if len(stats.FailureReasons) > 0 {
		reasons := make([]string, 0, len(stats.FailureReasons))
		for reason := range stats.FailureReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		fmt.Println("failure_reasons:")
		for _, reason := range reasons {
			fmt.Printf("  %s: %d\n", reason, stats.FailureReasons[reason])
		}
	}
	return nil
}
