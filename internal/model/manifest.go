package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ManifestOptions struct {
	InputFile     string
	OutputDir     string
	OutputFormats []string
	Converter     string
	Summarize     bool
	RetryLimit    int
	BudgetCap     float64
}

// NewBatchID returns batch_<YYYYMMDD_HHMMSS>_<8 hex>.
func NewBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("batch_%s_%s", now.UTC().Format("20060102_150405"), suffix)
}

func JobID(batchID string, seq int) string {
	return fmt.Sprintf("%s_job_%03d", batchID, seq)
}

// NewManifest builds a manifest with one pending job per URL in input order.
func NewManifest(id string, urls []string, opts ManifestOptions, now time.Time) *Manifest {
	stamp := now.UTC().Format(time.RFC3339)
	mf := &Manifest{
		SchemaVersion: SchemaVersion,
		ID:            id,
		CreatedAt:     stamp,
		UpdatedAt:     stamp,
		InputFile:     opts.InputFile,
		OutputDir:     opts.OutputDir,
		OutputFormats: append([]string(nil), opts.OutputFormats...),
		Converter:     opts.Converter,
		Summarize:     opts.Summarize,
		RetryLimit:    opts.RetryLimit,
		BudgetCap:     opts.BudgetCap,
		Jobs:          make([]Job, 0, len(urls)),
	}
	for i, u := range urls {
		mf.Jobs = append(mf.Jobs, Job{
			ID:        JobID(id, i+1),
			Index:     i + 1,
			URL:       u,
			Status:    StatusPending,
			CreatedAt: stamp,
		})
	}
	Recompute(mf)
	return mf
}

// Recompute rederives every aggregate from the job list.
func Recompute(mf *Manifest) {
	mf.TotalJobs = len(mf.Jobs)
	mf.PendingJobs = 0
	mf.InProgressJobs = 0
	mf.CompletedJobs = 0
	mf.FailedJobs = 0
	mf.SkippedJobs = 0
	var estimated, actual float64
	for _, job := range mf.Jobs {
		switch {
		case job.Status == StatusPending:
			mf.PendingJobs++
		case IsInProgress(job.Status):
			mf.InProgressJobs++
		case job.Status == StatusCompleted:
			mf.CompletedJobs++
		case job.Status == StatusFailed:
			mf.FailedJobs++
		case job.Status == StatusSkipped:
			mf.SkippedJobs++
		}
		estimated += job.EstimatedCost
		if job.ActualCost != nil {
			actual += *job.ActualCost
		}
	}
	mf.TotalEstimatedCost = roundCost(estimated)
	mf.TotalActualCost = roundCost(actual)
}

func (mf *Manifest) Job(id string) (*Job, bool) {
	for i := range mf.Jobs {
		if mf.Jobs[i].ID == id {
			return &mf.Jobs[i], true
		}
	}
	return nil, false
}

// RetryableJobs returns the indexes of failed jobs still under the retry limit.
func (mf *Manifest) RetryableJobs() []int {
	out := []int{}
	for i, job := range mf.Jobs {
		if job.Status == StatusFailed && job.RetryCount < mf.RetryLimit {
			out = append(out, i)
		}
	}
	return out
}

func (mf *Manifest) BudgetExhausted() bool {
	return mf.TotalActualCost >= mf.BudgetCap
}

type Stats struct {
	TotalJobs          int            `json:"total_jobs"`
	PendingJobs        int            `json:"pending_jobs"`
	InProgressJobs     int            `json:"in_progress_jobs"`
	CompletedJobs      int            `json:"completed_jobs"`
	FailedJobs         int            `json:"failed_jobs"`
	SkippedJobs        int            `json:"skipped_jobs"`
	SuccessRate        float64        `json:"success_rate"`
	TotalEstimatedCost float64        `json:"total_estimated_cost"`
	TotalActualCost    float64        `json:"total_actual_cost"`
	BudgetCap          float64        `json:"budget_cap"`
	BudgetRemaining    float64        `json:"budget_remaining"`
	WallClockSeconds   float64        `json:"wall_clock_seconds"`
	FailureReasons     map[string]int `json:"failure_reasons,omitempty"`
}

// ComputeStats recomputes aggregates and derives batch statistics.
// SuccessRate is completed over jobs that reached a terminal state.
func ComputeStats(mf *Manifest) Stats {
	Recompute(mf)
	st := Stats{
		TotalJobs:          mf.TotalJobs,
		PendingJobs:        mf.PendingJobs,
		InProgressJobs:     mf.InProgressJobs,
		CompletedJobs:      mf.CompletedJobs,
		FailedJobs:         mf.FailedJobs,
		SkippedJobs:        mf.SkippedJobs,
		TotalEstimatedCost: mf.TotalEstimatedCost,
		TotalActualCost:    mf.TotalActualCost,
		BudgetCap:          mf.BudgetCap,
		BudgetRemaining:    roundCost(math.Max(0, mf.BudgetCap-mf.TotalActualCost)),
		FailureReasons:     map[string]int{},
	}
	finished := mf.CompletedJobs + mf.FailedJobs + mf.SkippedJobs
	if finished > 0 {
		st.SuccessRate = float64(mf.CompletedJobs) / float64(finished)
	}

	var first, last time.Time
	for _, job := range mf.Jobs {
		if job.FailureReason != "" {
			st.FailureReasons[job.FailureReason]++
		}
		if started, err := time.Parse(time.RFC3339, job.StartedAt); err == nil {
			if first.IsZero() || started.Before(first) {
				first = started
			}
		}
		if done, err := time.Parse(time.RFC3339, job.CompletedAt); err == nil && job.StartedAt != "" {
			if done.After(last) {
				last = done
			}
		}
	}
	if !first.IsZero() && last.After(first) {
		st.WallClockSeconds = last.Sub(first).Seconds()
	}
	if len(st.FailureReasons) == 0 {
		st.FailureReasons = nil
	}
	return st
}

// roundCost trims float noise from summed costs.
func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
