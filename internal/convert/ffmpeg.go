package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Result describes a converted audio file.
type Result struct {
	OutputPath      string
	DurationSeconds float64
	RemoteJobID     string
}

// FFmpeg converts media to MP3 with a local ffmpeg binary.
type FFmpeg struct {
	Binary     string
	Timeout    time.Duration
	Bitrate    string
	SampleRate int
	Logger     *log.Logger
}

func NewFFmpeg(logger *log.Logger) *FFmpeg {
	return &FFmpeg{
		Binary:     "ffmpeg",
		Timeout:    5 * time.Minute,
		Bitrate:    "128k",
		SampleRate: 44100,
		Logger:     logger,
	}
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

func (f *FFmpeg) Args(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", f.Bitrate,
		"-ar", fmt.Sprintf("%d", f.SampleRate),
		"-y",
		outputPath,
	}
}

func (f *FFmpeg) Convert(ctx context.Context, inputPath, outputPath string) (Result, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return Result{}, fmt.Errorf("input media %s: %w", inputPath, err)
	}
	if samePath(inputPath, outputPath) {
		return Result{}, fmt.Errorf("output %s would overwrite the input media", outputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory for %s: %w", outputPath, err)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, f.Args(inputPath, outputPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if f.Logger != nil {
		f.Logger.Debug("ffmpeg convert", "in", inputPath, "out", outputPath)
	}
	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("ffmpeg timed out after %s", f.Timeout)
		}
		return Result{}, fmt.Errorf("ffmpeg failed: %w: %s", err, lastLines(stderr.String(), 5))
	}

	duration, err := MeasureMP3(outputPath)
	if err != nil {
		_ = os.Remove(outputPath)
		return Result{}, fmt.Errorf("ffmpeg produced unusable audio: %w", err)
	}
	return Result{OutputPath: outputPath, DurationSeconds: duration}, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
