package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/costmodel"
	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

// EstimateSampleSize bounds how many URLs are looked up for a batch estimate.
const EstimateSampleSize = 5

const budgetSkipMessage = "skipped due to budget cap"

// Orchestrator runs jobs of one manifest sequentially, enforcing the budget
// cap and persisting the manifest after every job. It is the only writer of
// the manifest.
type Orchestrator struct {
	Runner    *Runner
	Fetcher   Fetcher
	Costs     costmodel.Model
	OutputDir string
	Logger    *log.Logger
	Now       func() time.Time

	// OnJobDone, when set, is called after each job is persisted.
	OnJobDone func(mf *model.Manifest, job *model.Job)
}

type RunOptions struct {
	InputFile     string
	OutputFormats []string
	Summarize     bool
	RetryLimit    int
	BudgetCap     float64
}

type Estimate struct {
	Count            int     `json:"count"`
	SampleSize       int     `json:"sample_size"`
	EstimatedCost    float64 `json:"estimated_cost"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
	PerJobCost       float64 `json:"per_job_cost"`
}

func (e Estimate) Duration() time.Duration {
	return time.Duration(e.EstimatedSeconds * float64(time.Second))
}

// lockOutputDir takes the output directory lock for command. A lock left by
// a process that no longer exists is taken over with a warning.
func (o *Orchestrator) lockOutputDir(batchID, command string) (func(), error) {
	lock, err := runstore.AcquireBatchLock(o.OutputDir, batchID, command)
	if err != nil {
		return nil, err
	}
	if prev := lock.Reclaimed(); prev != "" {
		o.logger().Warn("took over stale batch lock", "previous", prev)
	}
	return func() {
		if err := lock.Release(); err != nil {
			o.logger().Warn("release batch lock", "err", err)
		}
	}, nil
}

// RunBatch creates a manifest for urls and processes it. Individual job
// failures never produce an error; only persistence problems, a held lock or
// cancellation do. The manifest is returned whenever it was created.
func (o *Orchestrator) RunBatch(ctx context.Context, urls []string, opts RunOptions) (*model.Manifest, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	now := o.now()
	id := model.NewBatchID(now)

	release, err := o.lockOutputDir(id, "run")
	if err != nil {
		return nil, err
	}
	defer release()

	mf := model.NewManifest(id, urls, model.ManifestOptions{
		InputFile:     opts.InputFile,
		OutputDir:     o.OutputDir,
		OutputFormats: opts.OutputFormats,
		Converter:     o.Costs.Converter,
		Summarize:     opts.Summarize,
		RetryLimit:    opts.RetryLimit,
		BudgetCap:     opts.BudgetCap,
	}, now)
	for i := range mf.Jobs {
		mf.Jobs[i].EstimatedCost = o.Costs.EstimateCost(costmodel.DefaultDurationSeconds)
	}
	if err := runstore.SaveManifest(o.OutputDir, mf, o.Logger); err != nil {
		return nil, err
	}
	o.logger().Info("batch created", "batch", mf.ID, "jobs", mf.TotalJobs, "budget", fmt.Sprintf("$%.2f", mf.BudgetCap))

	indexes := make([]int, 0, len(mf.Jobs))
	for i := range mf.Jobs {
		indexes = append(indexes, i)
	}
	return mf, o.processJobs(ctx, mf, indexes, false)
}

// Resume processes the jobs of a saved manifest that are still pending.
// Jobs left in progress by an interrupted run are failed first so they
// become eligible for retry.
func (o *Orchestrator) Resume(ctx context.Context, mf *model.Manifest) (*model.Manifest, error) {
	release, err := o.lockOutputDir(mf.ID, "resume")
	if err != nil {
		return mf, err
	}
	defer release()

	if n := o.RecoverInterrupted(mf); n > 0 {
		o.logger().Warn("marked interrupted jobs as failed", "count", n)
	}
	var indexes []int
	for i, job := range mf.Jobs {
		if job.Status == model.StatusPending {
			indexes = append(indexes, i)
		}
	}
	if err := runstore.SaveManifest(o.OutputDir, mf, o.Logger); err != nil {
		return mf, err
	}
	return mf, o.processJobs(ctx, mf, indexes, false)
}

// RetryFailedJobs re-runs failed jobs that are still under the retry limit.
// A positive budgetCap replaces the manifest's cap for this and later runs.
func (o *Orchestrator) RetryFailedJobs(ctx context.Context, mf *model.Manifest, budgetCap float64) (*model.Manifest, error) {
	release, err := o.lockOutputDir(mf.ID, "retry")
	if err != nil {
		return mf, err
	}
	defer release()

	if budgetCap > 0 {
		mf.BudgetCap = budgetCap
	}
	indexes := mf.RetryableJobs()
	if len(indexes) == 0 {
		o.logger().Info("no failed jobs eligible for retry", "batch", mf.ID)
		return mf, runstore.SaveManifest(o.OutputDir, mf, o.Logger)
	}
	o.logger().Info("retrying failed jobs", "batch", mf.ID, "jobs", len(indexes), "budget", fmt.Sprintf("$%.2f", mf.BudgetCap))
	return mf, o.processJobs(ctx, mf, indexes, true)
}

// processJobs runs the selected jobs in manifest order. With reset set, each
// selected job is a failed job that is reset to pending right before it
// runs; once the budget trips, the remaining selected jobs stay failed.
func (o *Orchestrator) processJobs(ctx context.Context, mf *model.Manifest, indexes []int, reset bool) error {
	for n, idx := range indexes {
		if err := ctx.Err(); err != nil {
			o.logger().Warn("batch interrupted", "batch", mf.ID, "remaining", len(indexes)-n)
			return err
		}

		model.Recompute(mf)
		if mf.BudgetExhausted() {
			skipped := 0
			if !reset {
				skipped = o.skipRemaining(mf, indexes[n:])
			}
			o.logger().Warn("budget cap reached", "spent", fmt.Sprintf("$%.4f", mf.TotalActualCost), "cap", fmt.Sprintf("$%.2f", mf.BudgetCap), "skipped", skipped, "untouched", len(indexes)-n-skipped)
			return runstore.SaveManifest(o.OutputDir, mf, o.Logger)
		}

		job := &mf.Jobs[idx]
		if reset {
			if err := model.ResetForRetry(job); err != nil {
				o.logger().Warn("job not retryable", "job", job.ID, "err", err)
				continue
			}
		}
		if job.Status != model.StatusPending {
			continue
		}

		o.Runner.Run(ctx, job)

		if err := runstore.SaveManifest(o.OutputDir, mf, o.Logger); err != nil {
			return err
		}
		if o.OnJobDone != nil {
			o.OnJobDone(mf, job)
		}
	}
	return nil
}

// skipRemaining marks every pending job among indexes as skipped.
func (o *Orchestrator) skipRemaining(mf *model.Manifest, indexes []int) int {
	count := 0
	now := o.now()
	for _, idx := range indexes {
		job := &mf.Jobs[idx]
		if job.Status != model.StatusPending {
			continue
		}
		if err := model.SkipJob(job, model.ReasonBudgetExceeded, budgetSkipMessage, now); err != nil {
			o.logger().Warn("cannot skip job", "job", job.ID, "err", err)
			continue
		}
		if o.Runner != nil {
			o.Runner.finish(job, o.logger().With("job", job.ID), now)
		}
		count++
	}
	return count
}

// RecoverInterrupted fails jobs a previous process left in progress.
func (o *Orchestrator) RecoverInterrupted(mf *model.Manifest) int {
	now := o.now()
	count := 0
	for i := range mf.Jobs {
		job := &mf.Jobs[i]
		if !model.IsInProgress(job.Status) {
			continue
		}
		if err := model.FailJob(job, model.ReasonUnknownError, "interrupted", now); err != nil {
			continue
		}
		count++
	}
	if count > 0 {
		model.Recompute(mf)
	}
	return count
}

// EstimateBatch fetches metadata for up to EstimateSampleSize URLs, averages
// the modelled cost and time per job and scales to the whole list.
func (o *Orchestrator) EstimateBatch(ctx context.Context, urls []string) (Estimate, error) {
	est := Estimate{Count: len(urls)}
	if len(urls) == 0 {
		return est, nil
	}
	sample := urls
	if len(sample) > EstimateSampleSize {
		sample = sample[:EstimateSampleSize]
	}

	var costSum, timeSum float64
	for _, u := range sample {
		if err := ctx.Err(); err != nil {
			return est, err
		}
		d := costmodel.DefaultDurationSeconds
		meta, err := o.Fetcher.Metadata(ctx, u)
		switch {
		case err != nil:
			o.logger().Debug("estimate metadata failed, using default duration", "url", u, "err", err)
		case meta.Duration > 0:
			d = meta.Duration
		}
		costSum += o.Costs.EstimateCost(d)
		timeSum += o.Costs.EstimateTime(d)
	}

	est.SampleSize = len(sample)
	avgCost := costSum / float64(len(sample))
	avgTime := timeSum / float64(len(sample))
	est.PerJobCost = roundEstimate(avgCost)
	est.EstimatedCost = roundEstimate(avgCost * float64(len(urls)))
	est.EstimatedSeconds = avgTime * float64(len(urls))
	return est, nil
}

// EstimateRetry sums the modelled cost and time of the jobs a retry would
// run, using each job's known duration.
func (o *Orchestrator) EstimateRetry(mf *model.Manifest) Estimate {
	indexes := mf.RetryableJobs()
	est := Estimate{Count: len(indexes), SampleSize: len(indexes)}
	var costSum float64
	for _, idx := range indexes {
		d := mf.Jobs[idx].KnownDuration()
		if d <= 0 {
			d = costmodel.DefaultDurationSeconds
		}
		costSum += o.Costs.EstimateCost(d)
		est.EstimatedSeconds += o.Costs.EstimateTime(d)
	}
	est.EstimatedCost = roundEstimate(costSum)
	if len(indexes) > 0 {
		est.PerJobCost = roundEstimate(costSum / float64(len(indexes)))
	}
	return est
}

// DryRun fetches metadata for every pending job and records its estimate.
// No media is fetched and no paid service is called.
func (o *Orchestrator) DryRun(ctx context.Context, mf *model.Manifest) (Estimate, error) {
	est := Estimate{}
	var costSum float64
	for i := range mf.Jobs {
		job := &mf.Jobs[i]
		if job.Status != model.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return est, err
		}
		d := costmodel.DefaultDurationSeconds
		meta, err := o.Fetcher.Metadata(ctx, job.URL)
		if err != nil {
			o.logger().Warn("metadata unavailable", "job", job.ID, "err", err)
		} else {
			job.Metadata = &meta
			if meta.Duration > 0 {
				d = meta.Duration
			}
		}
		job.EstimatedCost = o.Costs.EstimateCost(d)
		costSum += job.EstimatedCost
		est.EstimatedSeconds += o.Costs.EstimateTime(d)
		est.Count++
	}
	est.SampleSize = est.Count
	est.EstimatedCost = roundEstimate(costSum)
	if est.Count > 0 {
		est.PerJobCost = roundEstimate(costSum / float64(est.Count))
	}
	model.Recompute(mf)
	return est, nil
}

// IsInterrupted reports whether err came from a cancelled run.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

func roundEstimate(v float64) float64 {
	return float64(int64(v*1e6+0.5)) / 1e6
}

func (o *Orchestrator) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(os.Stderr)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
