package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/httpapi"
)

const FreeConvertBaseURL = "https://api.freeconvert.com/v1"

// FreeConvert converts media to MP3 through the FreeConvert REST API:
// import upload, convert task, poll, then download the output.
type FreeConvert struct {
	backend httpapi.Backend
	http    *http.Client
	logger  *log.Logger

	PollInterval      time.Duration
	PollErrorInterval time.Duration
	Timeout           time.Duration
}

func NewFreeConvert(apiKey string, logger *log.Logger) *FreeConvert {
	return NewFreeConvertWithBackend(httpapi.Config{
		Name:       "freeconvert",
		BaseURL:    FreeConvertBaseURL,
		APIKey:     apiKey,
		AuthScheme: "Bearer",
	}, nil, logger)
}

// NewFreeConvertWithBackend uses client for the unauthenticated upload and
// download URLs the API hands out.
func NewFreeConvertWithBackend(backend httpapi.Backend, client *http.Client, logger *log.Logger) *FreeConvert {
	if client == nil {
		client = httpapi.DefaultHTTPClient
	}
	return &FreeConvert{
		backend:           backend,
		http:              client,
		logger:            logger,
		PollInterval:      10 * time.Second,
		PollErrorInterval: 15 * time.Second,
		Timeout:           10 * time.Minute,
	}
}

func (f *FreeConvert) Name() string { return "freeconvert" }

type importResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type convertRequest struct {
	Input        string         `json:"input"`
	InputFormat  string         `json:"inputformat"`
	OutputFormat string         `json:"outputformat"`
	Options      convertOptions `json:"options"`
}

type convertOptions struct {
	AudioCodec     string `json:"audio_codec"`
	AudioBitrate   string `json:"audio_bitrate"`
	AudioFrequency string `json:"audio_frequency"`
}

type taskResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Output  struct {
		URL string `json:"url"`
	} `json:"output"`
}

func (f *FreeConvert) Convert(ctx context.Context, inputPath, outputPath string) (Result, error) {
	fileID, err := f.upload(ctx, inputPath)
	if err != nil {
		return Result{}, err
	}

	req := convertRequest{
		Input:        fileID,
		InputFormat:  inputFormat(inputPath),
		OutputFormat: "mp3",
		Options:      convertOptions{AudioCodec: "mp3", AudioBitrate: "128", AudioFrequency: "44100"},
	}
	var task taskResponse
	if err := f.backend.Call(ctx, http.MethodPost, "/process/convert", req, &task); err != nil {
		return Result{}, fmt.Errorf("create conversion job: %w", err)
	}
	if task.ID == "" {
		return Result{RemoteJobID: task.ID}, fmt.Errorf("create conversion job: provider returned no id")
	}
	f.debug("conversion job created", "id", task.ID)

	downloadURL, err := f.wait(ctx, task.ID)
	if err != nil {
		return Result{RemoteJobID: task.ID}, err
	}
	if err := f.download(ctx, downloadURL, outputPath); err != nil {
		return Result{RemoteJobID: task.ID}, err
	}

	duration, err := MeasureMP3(outputPath)
	if err != nil {
		_ = os.Remove(outputPath)
		return Result{RemoteJobID: task.ID}, fmt.Errorf("converted audio unusable: %w", err)
	}
	return Result{OutputPath: outputPath, DurationSeconds: duration, RemoteJobID: task.ID}, nil
}

// Ping checks that the API key is accepted.
func (f *FreeConvert) Ping(ctx context.Context) error {
	return f.backend.Call(ctx, http.MethodGet, "/process/tasks?per_page=1", nil, nil)
}

func (f *FreeConvert) upload(ctx context.Context, inputPath string) (string, error) {
	var imp importResponse
	if err := f.backend.Call(ctx, http.MethodPost, "/process/import/upload", nil, &imp); err != nil {
		return "", fmt.Errorf("request upload url: %w", err)
	}
	if imp.URL == "" || imp.ID == "" {
		return "", fmt.Errorf("request upload url: provider returned no upload url")
	}

	src, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open input media %s: %w", inputPath, err)
	}
	defer src.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(inputPath))
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return "", fmt.Errorf("read input media %s: %w", inputPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, imp.URL, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("upload media: status=%d", res.StatusCode)
	}
	f.debug("media uploaded", "file_id", imp.ID)
	return imp.ID, nil
}

func (f *FreeConvert) wait(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(f.Timeout)
	for {
		var task taskResponse
		wait := f.PollInterval
		if err := f.backend.Call(ctx, http.MethodGet, "/process/"+taskID, nil, &task); err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("check conversion %s: %w", taskID, ctx.Err())
			}
			if httpapi.IsAuthError(err) {
				return "", fmt.Errorf("check conversion %s: %w", taskID, err)
			}
			f.warn("conversion status check failed", "id", taskID, "err", err)
			wait = f.PollErrorInterval
		} else {
			switch task.Status {
			case "completed":
				if task.Output.URL == "" {
					return "", fmt.Errorf("conversion %s completed without a download url", taskID)
				}
				return task.Output.URL, nil
			case "failed":
				return "", fmt.Errorf("conversion %s failed: %s", taskID, nonEmpty(task.Message, "unknown error"))
			case "queued", "processing":
				f.debug("conversion in progress", "id", taskID, "status", task.Status)
			default:
				f.warn("unknown conversion status", "id", taskID, "status", task.Status)
			}
		}

		if time.Now().Add(wait).After(deadline) {
			return "", fmt.Errorf("conversion %s timed out after %s", taskID, f.Timeout)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("check conversion %s: %w", taskID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (f *FreeConvert) download(ctx context.Context, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	res, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("download converted audio: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return fmt.Errorf("download converted audio: status=%d", res.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory for %s: %w", outputPath, err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	if _, err := io.Copy(out, res.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(outputPath)
		return fmt.Errorf("write %s: %w", outputPath, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(outputPath)
		return fmt.Errorf("close %s: %w", outputPath, err)
	}
	return nil
}

func inputFormat(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "mp4"
	}
	return ext
}

func (f *FreeConvert) debug(msg string, keyvals ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, keyvals...)
	}
}

func (f *FreeConvert) warn(msg string, keyvals ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, keyvals...)
	}
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
