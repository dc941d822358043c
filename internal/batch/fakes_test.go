package batch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/convert"
	"solotranscribe/internal/costmodel"
	"solotranscribe/internal/model"
	"solotranscribe/internal/output"
	"solotranscribe/internal/transcribe"
)

var testClock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	tempDir     string
	duration    float64
	metaErr     error
	downloadErr error
	live        bool
	ext         string
	metaCalls   int
	downloads   int
	panicOn     string
}

func (f *fakeFetcher) Metadata(_ context.Context, url string) (model.VideoMetadata, error) {
	f.metaCalls++
	if f.metaErr != nil {
		return model.VideoMetadata{}, f.metaErr
	}
	return model.VideoMetadata{Title: "clip " + url, Platform: "YouTube", Duration: f.duration, IsLive: f.live}, nil
}

func (f *fakeFetcher) Download(_ context.Context, url, jobID string) (string, error) {
	f.downloads++
	if f.panicOn != "" && f.panicOn == url {
		panic("fetcher exploded")
	}
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	ext := f.ext
	if ext == "" {
		ext = "mp4"
	}
	path := filepath.Join(f.tempDir, jobID+"."+ext)
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeConverter struct {
	err error
	// partial leaves a file at the output path before returning err.
	partial  bool
	duration float64
	calls    int
	lastIn   string
	lastOut  string
}

func (c *fakeConverter) Name() string { return "fake" }

func (c *fakeConverter) Convert(_ context.Context, inputPath, outputPath string) (convert.Result, error) {
	c.calls++
	c.lastIn, c.lastOut = inputPath, outputPath
	if c.err != nil {
		if c.partial {
			if err := os.WriteFile(outputPath, []byte("garbage"), 0o644); err != nil {
				return convert.Result{}, err
			}
		}
		return convert.Result{}, c.err
	}
	if err := os.WriteFile(outputPath, []byte("audio"), 0o644); err != nil {
		return convert.Result{}, err
	}
	return convert.Result{OutputPath: outputPath, DurationSeconds: c.duration}, nil
}

type fakeTranscriber struct {
	submitErr error
	pollErr   error
	submits   int
	polls     int
	lastOpts  transcribe.Options
}

func (t *fakeTranscriber) Submit(_ context.Context, _ string, opts transcribe.Options) (string, error) {
	t.submits++
	t.lastOpts = opts
	if t.submitErr != nil {
		return "", t.submitErr
	}
	return "tr_1", nil
}

func (t *fakeTranscriber) Poll(_ context.Context, id string) (model.Transcript, error) {
	t.polls++
	if t.pollErr != nil {
		return model.Transcript{}, t.pollErr
	}
	return model.Transcript{
		Text:  "hello there",
		Words: []model.Word{{Text: "hello", Start: 0.1, End: 0.5}, {Text: "there", Start: 0.6, End: 1}},
	}, nil
}

type failingFormatter struct{ name string }

func (f failingFormatter) Format() string { return f.name }

func (f failingFormatter) Write(*model.Job, string) (string, error) {
	return "", errors.New("disk full")
}

type harness struct {
	fetcher     *fakeFetcher
	converter   *fakeConverter
	transcriber *fakeTranscriber
	runner      *Runner
	orch        *Orchestrator
	outDir      string
	tempDir     string
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	outDir := filepath.Join(root, "out")
	tempDir := filepath.Join(root, "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		t.Fatal(err)
	}
	h := &harness{
		fetcher:     &fakeFetcher{tempDir: tempDir, duration: 60},
		converter:   &fakeConverter{},
		transcriber: &fakeTranscriber{},
		outDir:      outDir,
		tempDir:     tempDir,
	}
	costs := costmodel.MustForConverter(costmodel.ConverterFFmpeg)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	h.runner = &Runner{
		Fetcher:     h.fetcher,
		Converter:   h.converter,
		Transcriber: h.transcriber,
		Formatters:  []Formatter{output.TextFormatter{}, output.JSONFormatter{}},
		Costs:       costs,
		TempDir:     tempDir,
		OutputDir:   outDir,
		DeleteTemp:  true,
		Logger:      quietLogger(),
		Now:         now,
	}
	h.orch = &Orchestrator{
		Runner:    h.runner,
		Fetcher:   h.fetcher,
		Costs:     costs,
		OutputDir: outDir,
		Logger:    quietLogger(),
		Now:       now,
	}
	return h
}

func pendingJob(url string) *model.Job {
	return &model.Job{ID: "batch_t_job_001", Index: 1, URL: url, Status: model.StatusPending}
}

func assertInvariants(t *testing.T, mf *model.Manifest) {
	t.Helper()
	for _, job := range mf.Jobs {
		if (job.Status == model.StatusFailed) != (job.FailureReason != "") {
			t.Fatalf("job %s: status %s with failure reason %q", job.ID, job.Status, job.FailureReason)
		}
		if job.ActualCost != nil && job.Status != model.StatusCompleted {
			t.Fatalf("job %s: actual cost set on %s job", job.ID, job.Status)
		}
		if job.Status == model.StatusCompleted && job.ActualCost == nil {
			t.Fatalf("job %s: completed without actual cost", job.ID)
		}
	}
}
