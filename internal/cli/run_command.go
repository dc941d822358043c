package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"solotranscribe/internal/batch"
	"solotranscribe/internal/model"
	"solotranscribe/internal/output"
	"solotranscribe/internal/runstore"
)

type runSummary struct {
	BatchID      string  `json:"batch_id"`
	Manifest     string  `json:"manifest"`
	OutputDir    string  `json:"output_dir"`
	TotalJobs    int     `json:"total_jobs"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	Skipped      int     `json:"skipped"`
	Pending      int     `json:"pending"`
	TotalCost    float64 `json:"total_cost"`
	BudgetCap    float64 `json:"budget_cap"`
	Interrupted  bool    `json:"interrupted,omitempty"`
	ElapsedHuman string  `json:"elapsed"`
}

type estimateSummary struct {
	Input     string         `json:"input,omitempty"`
	Estimate  batch.Estimate `json:"estimate"`
	BudgetCap float64        `json:"budget_cap"`
	OverCap   bool           `json:"over_cap"`
	Jobs      []jobEstimate  `json:"jobs,omitempty"`
}

type jobEstimate struct {
	URL           string  `json:"url"`
	Title         string  `json:"title,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	EstimatedCost float64 `json:"estimated_cost"`
}

func runBatch(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	in := fs.String("in", "", "input file with URLs (.txt, or .csv with a url column)")
	out := fs.String("out", "", "output directory (default: OUT_DIR)")
	formats := fs.String("format", strings.Join(output.DefaultFormats, ","), "output formats: txt,json,srt,vtt")
	budget := fs.Float64("cap-budget", 0, "budget cap in USD (default: CAP_BUDGET_USD)")
	summarize := fs.Bool("summarize", false, "request a summary from the transcription provider")
	keepTemp := fs.Bool("keep-temp", false, "keep downloaded media and audio after each job")
	dryRun := fs.Bool("dry-run", false, "estimate cost and time without processing")
	converter := fs.String("converter", "", "audio converter: ffmpeg|freeconvert (default: CONVERTER)")
	retryLimit := fs.Int("retry-limit", -1, "retry limit stored in the manifest (default: RETRY_LIMIT)")
	common := addCommonFlags(fs)

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*in) == "" {
		fs.Usage()
		return errors.New("--in is required")
	}
	formatNames, err := output.ParseFormats(*formats)
	if err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	set := flagsSet(fs)
	if v := strings.TrimSpace(*out); v != "" {
		cfg.OutDir = v
	}
	if set["cap-budget"] {
		cfg.BudgetCap = *budget
	}
	if set["summarize"] {
		cfg.Summarize = *summarize
	}
	if set["keep-temp"] {
		cfg.DeleteTemp = !*keepTemp
	}
	if v := strings.TrimSpace(*converter); v != "" {
		cfg.Converter = strings.ToLower(v)
	}
	if *retryLimit >= 0 {
		cfg.RetryLimit = *retryLimit
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	urls, err := batch.ReadURLList(*in, a.logger)
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(formatNames)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if *dryRun {
		return estimateAndPrint(ctx, orch, *in, urls, cfg.BudgetCap, *common.jsonOut)
	}

	if err := a.requireProcessing(); err != nil {
		return err
	}
	if err := runstore.Mkdir(cfg.TempDir); err != nil {
		return err
	}

	if !*common.jsonOut {
		fmt.Printf("%s %d URLs, budget %s, converter %s\n", titleStyle.Render("starting batch:"), len(urls), formatUSD(cfg.BudgetCap), cfg.Converter)
		orch.OnJobDone = func(mf *model.Manifest, job *model.Job) {
			fmt.Println(jobLine(mf, job))
		}
	}

	started := time.Now()
	mf, runErr := orch.RunBatch(ctx, urls, batch.RunOptions{
		InputFile:     *in,
		OutputFormats: formatNames,
		Summarize:     cfg.Summarize,
		RetryLimit:    cfg.RetryLimit,
		BudgetCap:     cfg.BudgetCap,
	})
	if mf == nil {
		return runErr
	}
	if runErr != nil && !batch.IsInterrupted(runErr) {
		return runErr
	}

	summary := summarizeRun(mf, cfg.OutDir, time.Since(started), batch.IsInterrupted(runErr))
	if *common.jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printRunSummary(summary)
		if mf.FailedJobs > 0 {
			fmt.Printf("%s %d jobs failed; retry with: solotranscribe retry --manifest %s\n", warnStyle.Render("note:"), mf.FailedJobs, summary.Manifest)
		}
	}
	if summary.Interrupted {
		return fmt.Errorf("batch interrupted; continue with: solotranscribe resume --manifest %s: %w", summary.Manifest, context.Canceled)
	}
	return nil
}

func runEstimate(args []string) error {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	in := fs.String("in", "", "input file with URLs (.txt, or .csv with a url column)")
	full := fs.Bool("full", false, "look up every URL instead of sampling the first few")
	converter := fs.String("converter", "", "audio converter to price: ffmpeg|freeconvert (default: CONVERTER)")
	budget := fs.Float64("cap-budget", 0, "budget cap in USD to compare against (default: CAP_BUDGET_USD)")
	common := addCommonFlags(fs)

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*in) == "" {
		fs.Usage()
		return errors.New("--in is required")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(*converter); v != "" {
		cfg.Converter = strings.ToLower(v)
	}
	if flagsSet(fs)["cap-budget"] {
		cfg.BudgetCap = *budget
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	urls, err := batch.ReadURLList(*in, a.logger)
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(output.DefaultFormats)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	if !*full {
		return estimateAndPrint(ctx, orch, *in, urls, cfg.BudgetCap, *common.jsonOut)
	}

	mf := model.NewManifest("estimate", urls, model.ManifestOptions{InputFile: *in, BudgetCap: cfg.BudgetCap}, time.Now())
	est, err := orch.DryRun(ctx, mf)
	if err != nil {
		return err
	}
	summary := estimateSummary{Input: *in, Estimate: est, BudgetCap: cfg.BudgetCap, OverCap: est.EstimatedCost > cfg.BudgetCap}
	for _, job := range mf.Jobs {
		summary.Jobs = append(summary.Jobs, jobEstimate{
			URL:           job.URL,
			Title:         job.Title(),
			Duration:      job.KnownDuration(),
			EstimatedCost: job.EstimatedCost,
		})
	}
	if *common.jsonOut {
		return printJSON(summary)
	}
	for _, j := range summary.Jobs {
		fmt.Printf("%s  %s  %s  %s\n", formatUSD(j.EstimatedCost), formatDuration(j.Duration), j.URL, mutedStyle.Render(truncateRunes(j.Title, 50)))
	}
	printEstimate(summary)
	return nil
}

func estimateAndPrint(ctx context.Context, orch *batch.Orchestrator, input string, urls []string, budgetCap float64, jsonOut bool) error {
	est, err := orch.EstimateBatch(ctx, urls)
	if err != nil {
		return err
	}
	summary := estimateSummary{Input: input, Estimate: est, BudgetCap: budgetCap, OverCap: est.EstimatedCost > budgetCap}
	if jsonOut {
		return printJSON(summary)
	}
	printEstimate(summary)
	return nil
}

func printEstimate(s estimateSummary) {
	fmt.Printf("input: %s\n", s.Input)
	fmt.Printf("urls: %d\n", s.Estimate.Count)
	fmt.Printf("sampled: %d\n", s.Estimate.SampleSize)
	fmt.Printf("estimated_cost: %s\n", formatUSD(s.Estimate.EstimatedCost))
	fmt.Printf("estimated_cost_per_job: %s\n", formatUSD(s.Estimate.PerJobCost))
	fmt.Printf("estimated_time: %s\n", formatDuration(s.Estimate.EstimatedSeconds))
	fmt.Printf("budget_cap: %s\n", formatUSD(s.BudgetCap))
	if s.OverCap {
		fmt.Println(warnStyle.Render("estimated cost exceeds the budget cap; later jobs will be skipped"))
		return
	}
	fmt.Println(okStyle.Render("within budget"))
}

func summarizeRun(mf *model.Manifest, outDir string, elapsed time.Duration, interrupted bool) runSummary {
	model.Recompute(mf)
	return runSummary{
		BatchID:      mf.ID,
		Manifest:     runstore.ManifestPath(outDir),
		OutputDir:    outDir,
		TotalJobs:    mf.TotalJobs,
		Completed:    mf.CompletedJobs,
		Failed:       mf.FailedJobs,
		Skipped:      mf.SkippedJobs,
		Pending:      mf.PendingJobs,
		TotalCost:    mf.TotalActualCost,
		BudgetCap:    mf.BudgetCap,
		Interrupted:  interrupted,
		ElapsedHuman: formatDuration(elapsed.Seconds()),
	}
}

func printRunSummary(s runSummary) {
	fmt.Println()
	fmt.Printf("batch_id: %s\n", s.BatchID)
	fmt.Printf("manifest: %s\n", s.Manifest)
	fmt.Printf("completed: %d/%d\n", s.Completed, s.TotalJobs)
	fmt.Printf("failed: %d\n", s.Failed)
	fmt.Printf("skipped: %d\n", s.Skipped)
	if s.Pending > 0 {
		fmt.Printf("pending: %d\n", s.Pending)
	}
	fmt.Printf("total_cost: %s of %s\n", formatUSD(s.TotalCost), formatUSD(s.BudgetCap))
	fmt.Printf("elapsed: %s\n", s.ElapsedHuman)
}
