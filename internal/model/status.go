package model

import (
	"fmt"
	"time"
)

const (
	StatusPending      = "pending"
	StatusDownloading  = "downloading"
	StatusConverting   = "converting"
	StatusTranscribing = "transcribing"
	StatusFormatting   = "formatting"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusSkipped      = "skipped"
)

const (
	ReasonInvalidURL          = "invalid_url"
	ReasonAccessDenied        = "access_denied"
	ReasonDownloadFailed      = "download_failed"
	ReasonConvertFailed       = "convert_failed"
	ReasonTranscriptionFailed = "transcription_failed"
	ReasonFormatFailed        = "format_failed"
	ReasonBudgetExceeded      = "budget_exceeded"
	ReasonUnknownError        = "unknown_error"
)

var knownReasons = map[string]bool{
	ReasonInvalidURL:          true,
	ReasonAccessDenied:        true,
	ReasonDownloadFailed:      true,
	ReasonConvertFailed:       true,
	ReasonTranscriptionFailed: true,
	ReasonFormatFailed:        true,
	ReasonBudgetExceeded:      true,
	ReasonUnknownError:        true,
}

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusDownloading: true,
		StatusFailed:      true,
		StatusSkipped:     true,
	},
	StatusDownloading: {
		StatusConverting: true,
		StatusFailed:     true,
	},
	StatusConverting: {
		StatusTranscribing: true,
		StatusFailed:       true,
	},
	StatusTranscribing: {
		StatusFormatting: true,
		StatusFailed:     true,
	},
	StatusFormatting: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusFailed: {
		StatusPending: true, // explicit retry reset only
	},
	StatusCompleted: {},
	StatusSkipped:   {},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func IsKnownReason(reason string) bool {
	return knownReasons[reason]
}

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

func IsInProgress(status string) bool {
	switch status {
	case StatusDownloading, StatusConverting, StatusTranscribing, StatusFormatting:
		return true
	default:
		return false
	}
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionJobStatus moves a job along the pipeline. Failure and skip
// transitions go through FailJob and SkipJob so the reason is always set.
func TransitionJobStatus(job *Job, toStatus string, now time.Time) error {
	if toStatus == StatusFailed || toStatus == StatusSkipped {
		return fmt.Errorf("transition to %q requires a reason (job_id=%s)", toStatus, job.ID)
	}
	return transition(job, toStatus, now)
}

func FailJob(job *Job, reason, message string, now time.Time) error {
	if !IsKnownReason(reason) {
		return fmt.Errorf("unknown failure reason %q (job_id=%s)", reason, job.ID)
	}
	if err := transition(job, StatusFailed, now); err != nil {
		return err
	}
	job.FailureReason = reason
	job.ErrorMessage = message
	return nil
}

func SkipJob(job *Job, reason, message string, now time.Time) error {
	if !IsKnownReason(reason) {
		return fmt.Errorf("unknown skip reason %q (job_id=%s)", reason, job.ID)
	}
	if err := transition(job, StatusSkipped, now); err != nil {
		return err
	}
	job.SkipReason = reason
	job.ErrorMessage = message
	return nil
}

// ResetForRetry returns a failed job to pending and counts the attempt.
func ResetForRetry(job *Job) error {
	if err := transition(job, StatusPending, time.Time{}); err != nil {
		return err
	}
	job.RetryCount++
	job.ErrorMessage = ""
	job.CompletedAt = ""
	return nil
}

func transition(job *Job, toStatus string, now time.Time) error {
	from := job.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s url=%s)", from, toStatus, job.ID, job.URL)
	}
	job.Status = toStatus
	if toStatus != StatusFailed {
		job.FailureReason = ""
	}
	if toStatus != StatusSkipped {
		job.SkipReason = ""
	}
	if toStatus != StatusCompleted {
		job.ActualCost = nil
	}
	stamp := now.UTC().Format(time.RFC3339)
	if IsInProgress(toStatus) && job.StartedAt == "" {
		job.StartedAt = stamp
	}
	if IsTerminal(toStatus) {
		job.CompletedAt = stamp
	}
	return nil
}

func CompleteJob(job *Job, actualCost float64, now time.Time) error {
	if err := transition(job, StatusCompleted, now); err != nil {
		return err
	}
	cost := actualCost
	job.ActualCost = &cost
	job.ErrorMessage = ""
	return nil
}
