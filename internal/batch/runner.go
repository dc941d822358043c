package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/costmodel"
	"solotranscribe/internal/model"
	"solotranscribe/internal/output"
	"solotranscribe/internal/runstore"
	"solotranscribe/internal/transcribe"
)

const maxErrorMessage = 500

// Runner drives one job through download, convert, transcribe and format.
// It never returns an error: every outcome is recorded on the job.
type Runner struct {
	Fetcher     Fetcher
	Converter   Converter
	Transcriber Transcriber
	Formatters  []Formatter
	Costs       costmodel.Model

	TempDir    string
	OutputDir  string
	DeleteTemp bool
	Summarize  bool

	Logger *log.Logger
	Now    func() time.Time
}

// stageFailure is the terminal outcome of a stage that did not advance.
type stageFailure struct {
	reason  string
	message string
}

func (f *stageFailure) Error() string {
	return f.reason + ": " + f.message
}

func fail(reason string, err error) *stageFailure {
	msg := ""
	if err != nil {
		msg = truncate(strings.TrimSpace(err.Error()), maxErrorMessage)
	}
	return &stageFailure{reason: reason, message: msg}
}

// stage performs the work for one in-progress status and names the status
// that follows it.
type stage struct {
	status string
	next   string
	run    func(ctx context.Context, job *model.Job) *stageFailure
}

func (r *Runner) stages() []stage {
	return []stage{
		{status: model.StatusDownloading, next: model.StatusConverting, run: r.download},
		{status: model.StatusConverting, next: model.StatusTranscribing, run: r.convert},
		{status: model.StatusTranscribing, next: model.StatusFormatting, run: r.transcribe},
		{status: model.StatusFormatting, next: model.StatusCompleted, run: r.format},
	}
}

// Run executes the pipeline for a pending job. The job ends completed or
// failed; panics are recovered and recorded as unknown_error.
func (r *Runner) Run(ctx context.Context, job *model.Job) {
	logger := r.logger().With("job", job.ID)
	start := r.now()
	logger.Info("job started", "url", job.URL, "retry", job.RetryCount)

	defer r.finish(job, logger, start)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("job panicked", "panic", rec, "stack", string(debug.Stack()))
			r.markFailed(job, &stageFailure{reason: model.ReasonUnknownError, message: fmt.Sprintf("unexpected error: %v", rec)}, logger)
		}
	}()

	if err := model.TransitionJobStatus(job, model.StatusDownloading, r.now()); err != nil {
		r.markFailed(job, fail(model.ReasonUnknownError, err), logger)
		return
	}
	for _, st := range r.stages() {
		if job.Status != st.status {
			r.markFailed(job, fail(model.ReasonUnknownError, fmt.Errorf("stage %s entered with status %s", st.status, job.Status)), logger)
			return
		}
		logger.Debug("stage", "status", st.status)
		if failure := st.run(ctx, job); failure != nil {
			r.markFailed(job, failure, logger)
			return
		}
		if st.next == model.StatusCompleted {
			if err := model.CompleteJob(job, r.actualCost(job), r.now()); err != nil {
				r.markFailed(job, fail(model.ReasonUnknownError, err), logger)
			}
			return
		}
		if err := model.TransitionJobStatus(job, st.next, r.now()); err != nil {
			r.markFailed(job, fail(model.ReasonUnknownError, err), logger)
			return
		}
	}
}

func (r *Runner) download(ctx context.Context, job *model.Job) *stageFailure {
	meta, err := r.Fetcher.Metadata(ctx, job.URL)
	if err != nil {
		r.logger().Warn("metadata unavailable", "job", job.ID, "err", err)
	} else {
		job.Metadata = &meta
		if meta.Duration > 0 {
			job.EstimatedCost = r.Costs.EstimateCost(meta.Duration)
		}
		if meta.IsLive {
			return &stageFailure{reason: model.ReasonInvalidURL, message: "live streams are not supported"}
		}
		if meta.Private {
			return &stageFailure{reason: model.ReasonAccessDenied, message: "video is private or unavailable"}
		}
	}
	if ctx.Err() != nil {
		return fail(model.ReasonDownloadFailed, ctx.Err())
	}

	path, err := r.Fetcher.Download(ctx, job.URL, job.ID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fail(model.ReasonDownloadFailed, err)
		}
		return fail(ClassifyFetchError(err.Error()), err)
	}
	job.TempVideoPath = path
	return nil
}

func (r *Runner) convert(ctx context.Context, job *model.Job) *stageFailure {
	// yt-dlp names downloads <id>.<ext>, so the audio target carries its own
	// suffix to stay clear of an mp3 source.
	out := filepath.Join(r.TempDir, job.ID+".audio.mp3")
	job.TempAudioPath = out
	res, err := r.Converter.Convert(ctx, job.TempVideoPath, out)
	if res.RemoteJobID != "" {
		job.ConvertJobID = res.RemoteJobID
	}
	if err != nil {
		return fail(model.ReasonConvertFailed, err)
	}
	job.TempAudioPath = res.OutputPath
	if res.DurationSeconds > 0 {
		job.AudioDuration = res.DurationSeconds
	}
	return nil
}

func (r *Runner) transcribe(ctx context.Context, job *model.Job) *stageFailure {
	id, err := r.Transcriber.Submit(ctx, job.TempAudioPath, transcribe.Options{Summarize: r.Summarize})
	if err != nil {
		return fail(model.ReasonTranscriptionFailed, err)
	}
	job.TranscriptID = id
	tr, err := r.Transcriber.Poll(ctx, id)
	if err != nil {
		return fail(model.ReasonTranscriptionFailed, err)
	}
	job.Transcript = &tr
	return nil
}

func (r *Runner) format(ctx context.Context, job *model.Job) *stageFailure {
	dir := output.JobDir(r.OutputDir, job.ID)
	if err := runstore.Mkdir(dir); err != nil {
		return fail(model.ReasonFormatFailed, err)
	}

	// Formatters render the job as it will look once completed.
	projected := *job
	projected.Status = model.StatusCompleted
	cost := r.actualCost(job)
	projected.ActualCost = &cost
	projected.CompletedAt = r.now().UTC().Format(time.RFC3339)

	var written []string
	var problems []string
	for _, f := range r.Formatters {
		path, err := f.Write(&projected, dir)
		if err != nil {
			r.logger().Warn("formatter failed", "job", job.ID, "format", f.Format(), "err", err)
			problems = append(problems, f.Format()+": "+err.Error())
			continue
		}
		written = append(written, path)
	}
	if len(written) == 0 {
		if len(problems) == 0 {
			problems = append(problems, "no output formats requested")
		}
		return &stageFailure{reason: model.ReasonFormatFailed, message: truncate(strings.Join(problems, "; "), maxErrorMessage)}
	}
	job.OutputDir = dir
	job.OutputFiles = written
	return nil
}

// actualCost prices the job from the best known duration, falling back to
// the estimate when no duration was ever observed.
func (r *Runner) actualCost(job *model.Job) float64 {
	if job.Transcript != nil && job.Transcript.AudioDuration > 0 {
		return r.Costs.EstimateCost(job.Transcript.AudioDuration)
	}
	if d := job.KnownDuration(); d > 0 {
		return r.Costs.EstimateCost(d)
	}
	return job.EstimatedCost
}

func (r *Runner) markFailed(job *model.Job, failure *stageFailure, logger *log.Logger) {
	if job.Status == model.StatusFailed || job.Status == model.StatusCompleted {
		return
	}
	if err := model.FailJob(job, failure.reason, failure.message, r.now()); err != nil {
		logger.Error("cannot record failure", "err", err)
		return
	}
	logger.Warn("job failed", "reason", failure.reason, "error", failure.message)
}

func (r *Runner) finish(job *model.Job, logger *log.Logger, start time.Time) {
	if r.DeleteTemp {
		r.releaseTemp(job, logger)
	}
	dir := output.JobDir(r.OutputDir, job.ID)
	if err := runstore.Mkdir(dir); err != nil {
		logger.Warn("cannot create job dir for metadata", "err", err)
	} else if _, err := output.WriteMeta(job, dir); err != nil {
		logger.Warn("cannot write metadata sidecar", "err", err)
	}
	if job.Status == model.StatusCompleted && job.ActualCost != nil {
		logger.Info("job completed", "cost", fmt.Sprintf("$%.4f", *job.ActualCost), "took", r.now().Sub(start).Round(time.Second))
	}
}

func (r *Runner) releaseTemp(job *model.Job, logger *log.Logger) {
	for _, p := range []*string{&job.TempVideoPath, &job.TempAudioPath} {
		if *p == "" {
			continue
		}
		if err := runstore.RemoveIfExists(*p); err != nil {
			logger.Warn("cannot remove temp file", "path", *p, "err", err)
			continue
		}
		*p = ""
	}
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.New(os.Stderr)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
