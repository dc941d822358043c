package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"solotranscribe/internal/batch"
	"solotranscribe/internal/config"
	"solotranscribe/internal/model"
	"solotranscribe/internal/output"
	"solotranscribe/internal/runstore"
)

type retrySummary struct {
	BatchID        string         `json:"batch_id"`
	Manifest       string         `json:"manifest"`
	Attempted      int            `json:"attempted"`
	NewlyCompleted int            `json:"newly_completed"`
	StillFailed    int            `json:"still_failed"`
	Estimate       batch.Estimate `json:"estimate"`
	TotalCost      float64        `json:"total_cost"`
	BudgetCap      float64        `json:"budget_cap"`
	Interrupted    bool           `json:"interrupted,omitempty"`
}

func runRetry(args []string) error {
	fs := flag.NewFlagSet("retry", flag.ContinueOnError)
	manifest := fs.String("manifest", "", "path to manifest.json or the batch output directory")
	budget := fs.Float64("cap-budget", 0, "new budget cap in USD for this and later runs")
	yes := fs.Bool("yes", false, "skip the budget confirmation prompt")
	common := addCommonFlags(fs)

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	mf, manifestPath, cfg, err := loadBatch(*manifest, common)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(mf.OutputFormats)
	if err != nil {
		return err
	}

	est := orch.EstimateRetry(mf)
	if est.Count == 0 {
		if *common.jsonOut {
			return printJSON(retrySummary{BatchID: mf.ID, Manifest: manifestPath, TotalCost: mf.TotalActualCost, BudgetCap: mf.BudgetCap})
		}
		fmt.Println("no failed jobs eligible for retry")
		return nil
	}

	effectiveCap := mf.BudgetCap
	if *budget > 0 {
		effectiveCap = *budget
	}
	if !*common.jsonOut {
		fmt.Printf("retryable_jobs: %d\n", est.Count)
		fmt.Printf("estimated_cost: %s\n", formatUSD(est.EstimatedCost))
		fmt.Printf("estimated_time: %s\n", formatDuration(est.EstimatedSeconds))
		fmt.Printf("spent: %s of %s\n", formatUSD(mf.TotalActualCost), formatUSD(effectiveCap))
	}
	if mf.TotalActualCost+est.EstimatedCost > effectiveCap && !*yes {
		ok, err := promptConfirm(fmt.Sprintf("retry may exceed the budget cap of %s; continue? [y/N] ", formatUSD(effectiveCap)))
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("retry cancelled")
		}
	}

	if err := a.requireProcessing(); err != nil {
		return err
	}
	if err := runstore.Mkdir(cfg.TempDir); err != nil {
		return err
	}
	if !*common.jsonOut {
		orch.OnJobDone = func(mf *model.Manifest, job *model.Job) {
			fmt.Println(jobLine(mf, job))
		}
	}

	ctx, stop := signalContext()
	defer stop()
	attempted := mf.RetryableJobs()
	mf, runErr := orch.RetryFailedJobs(ctx, mf, *budget)
	if runErr != nil && !batch.IsInterrupted(runErr) {
		return runErr
	}

	summary := retrySummary{
		BatchID:     mf.ID,
		Manifest:    manifestPath,
		Attempted:   len(attempted),
		Estimate:    est,
		TotalCost:   mf.TotalActualCost,
		BudgetCap:   mf.BudgetCap,
		Interrupted: batch.IsInterrupted(runErr),
	}
	for _, idx := range attempted {
		switch mf.Jobs[idx].Status {
		case model.StatusCompleted:
			summary.NewlyCompleted++
		case model.StatusFailed:
			summary.StillFailed++
		}
	}
	if *common.jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		fmt.Println()
		fmt.Printf("newly_completed: %d\n", summary.NewlyCompleted)
		fmt.Printf("still_failed: %d\n", summary.StillFailed)
		fmt.Printf("total_cost: %s of %s\n", formatUSD(summary.TotalCost), formatUSD(summary.BudgetCap))
	}
	if summary.Interrupted {
		return fmt.Errorf("retry interrupted: %w", context.Canceled)
	}
	return nil
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	manifest := fs.String("manifest", "", "path to manifest.json or the batch output directory")
	common := addCommonFlags(fs)

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	mf, manifestPath, cfg, err := loadBatch(*manifest, common)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(mf.OutputFormats)
	if err != nil {
		return err
	}
	if err := a.requireProcessing(); err != nil {
		return err
	}
	if err := runstore.Mkdir(cfg.TempDir); err != nil {
		return err
	}
	if !*common.jsonOut {
		fmt.Printf("%s %s (%d pending)\n", titleStyle.Render("resuming batch:"), mf.ID, mf.PendingJobs)
		orch.OnJobDone = func(mf *model.Manifest, job *model.Job) {
			fmt.Println(jobLine(mf, job))
		}
	}

	ctx, stop := signalContext()
	defer stop()
	started := time.Now()
	mf, runErr := orch.Resume(ctx, mf)
	if runErr != nil && !batch.IsInterrupted(runErr) {
		return runErr
	}
	summary := summarizeRun(mf, cfg.OutDir, time.Since(started), batch.IsInterrupted(runErr))
	summary.Manifest = manifestPath
	if *common.jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printRunSummary(summary)
	}
	if summary.Interrupted {
		return fmt.Errorf("resume interrupted: %w", context.Canceled)
	}
	return nil
}

// loadBatch reads a saved manifest and returns configuration pointed at its
// directory, with the converter and summary settings the batch was created
// with.
func loadBatch(manifestFlag string, common commonFlags) (*model.Manifest, string, config.Config, error) {
	if strings.TrimSpace(manifestFlag) == "" {
		return nil, "", config.Config{}, errors.New("--manifest is required")
	}
	path, err := runstore.ResolveManifestPath(strings.TrimSpace(manifestFlag))
	if err != nil {
		return nil, "", config.Config{}, err
	}
	mf, err := runstore.LoadManifest(path)
	if err != nil {
		return nil, "", config.Config{}, err
	}
	cfg, err := common.load()
	if err != nil {
		return nil, "", config.Config{}, err
	}
	cfg.OutDir = filepath.Dir(path)
	if mf.Converter != "" {
		cfg.Converter = mf.Converter
	}
	cfg.Summarize = mf.Summarize
	if len(mf.OutputFormats) == 0 {
		mf.OutputFormats = append([]string(nil), output.DefaultFormats...)
	}
	return mf, path, cfg, nil
}
