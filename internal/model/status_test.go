package model

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusPending},
		{StatusPending, StatusDownloading},
		{StatusPending, StatusSkipped},
		{StatusDownloading, StatusConverting},
		{StatusConverting, StatusTranscribing},
		{StatusTranscribing, StatusFormatting},
		{StatusFormatting, StatusCompleted},
		{StatusConverting, StatusFailed},
		{StatusFailed, StatusPending},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusPending, StatusCompleted},
		{StatusDownloading, StatusTranscribing},
		{StatusTranscribing, StatusConverting},
		{StatusCompleted, StatusPending},
		{StatusSkipped, StatusPending},
		{StatusDownloading, StatusSkipped},
		{"not_a_state", StatusPending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJobStatus_BlocksIllegalTransition(t *testing.T) {
	job := Job{ID: "job-1", URL: "https://example.com/v", Status: StatusPending}

	if err := TransitionJobStatus(&job, StatusCompleted, testNow); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if err := TransitionJobStatus(&job, StatusFailed, testNow); err == nil {
		t.Fatalf("expected failed transition without reason to be rejected")
	}
}

func TestTransitionJobStatus_SetsTimestamps(t *testing.T) {
	job := Job{ID: "job-1", Status: StatusPending}

	if err := TransitionJobStatus(&job, StatusDownloading, testNow); err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.StartedAt == "" {
		t.Fatalf("expected started_at on first non-pending transition")
	}
	started := job.StartedAt

	later := testNow.Add(time.Minute)
	if err := TransitionJobStatus(&job, StatusConverting, later); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if job.StartedAt != started {
		t.Fatalf("started_at changed: %s -> %s", started, job.StartedAt)
	}
	if job.CompletedAt != "" {
		t.Fatalf("completed_at set before terminal state")
	}
	if err := FailJob(&job, ReasonConvertFailed, "boom", later); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if job.CompletedAt == "" {
		t.Fatalf("expected completed_at on terminal transition")
	}
}

func TestFailJob_ReasonInvariant(t *testing.T) {
	job := Job{ID: "job-1", Status: StatusPending}
	if err := FailJob(&job, "exploded", "x", testNow); err == nil {
		t.Fatalf("expected unknown reason to be rejected")
	}
	if job.Status != StatusPending {
		t.Fatalf("status changed on rejected failure: %s", job.Status)
	}

	_ = TransitionJobStatus(&job, StatusDownloading, testNow)
	if err := FailJob(&job, ReasonAccessDenied, "private video", testNow); err != nil {
		t.Fatalf("fail job: %v", err)
	}
	if job.Status != StatusFailed || job.FailureReason != ReasonAccessDenied {
		t.Fatalf("unexpected job after failure: %+v", job)
	}

	if err := ResetForRetry(&job); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if job.Status != StatusPending || job.FailureReason != "" || job.ErrorMessage != "" {
		t.Fatalf("expected cleared failure after reset: %+v", job)
	}
	if job.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", job.RetryCount)
	}
}

func TestSkipJob_DoesNotSetFailureReason(t *testing.T) {
	job := Job{ID: "job-1", Status: StatusPending}
	if err := SkipJob(&job, ReasonBudgetExceeded, "skipped due to budget cap", testNow); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if job.FailureReason != "" {
		t.Fatalf("skipped job must not carry failure_reason, got %q", job.FailureReason)
	}
	if job.SkipReason != ReasonBudgetExceeded {
		t.Fatalf("expected skip reason budget_exceeded, got %q", job.SkipReason)
	}
	if err := ResetForRetry(&job); err == nil {
		t.Fatalf("skipped job must not be reset for retry")
	}
}

func TestCompleteJob_ActualCostOnlyWhenCompleted(t *testing.T) {
	job := Job{ID: "job-1", Status: StatusPending}
	for _, st := range []string{StatusDownloading, StatusConverting, StatusTranscribing, StatusFormatting} {
		if err := TransitionJobStatus(&job, st, testNow); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
		if job.ActualCost != nil {
			t.Fatalf("actual cost set while %s", st)
		}
	}
	if err := CompleteJob(&job, 0.25, testNow); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.ActualCost == nil || *job.ActualCost != 0.25 {
		t.Fatalf("expected actual cost 0.25, got %v", job.ActualCost)
	}
}
