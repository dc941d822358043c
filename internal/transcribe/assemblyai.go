package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/httpapi"
	"solotranscribe/internal/model"
)

const DefaultBaseURL = "https://api.assemblyai.com"

const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusError      = "error"
)

var ErrPollTimeout = errors.New("transcription polling timed out")

type Options struct {
	Summarize bool
}

// Client submits audio to AssemblyAI and polls transcripts to completion.
type Client struct {
	backend httpapi.Backend
	logger  *log.Logger

	PollInterval      time.Duration
	PollErrorInterval time.Duration
	PollTimeout       time.Duration
}

func NewClient(apiKey string, logger *log.Logger) *Client {
	return NewClientWithBackend(httpapi.Config{
		Name:    "assemblyai",
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
	}, logger)
}

func NewClientWithBackend(backend httpapi.Backend, logger *log.Logger) *Client {
	return &Client{
		backend:           backend,
		logger:            logger,
		PollInterval:      15 * time.Second,
		PollErrorInterval: 20 * time.Second,
		PollTimeout:       30 * time.Minute,
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL      string `json:"audio_url"`
	Summarization bool   `json:"summarization,omitempty"`
	SummaryModel  string `json:"summary_model,omitempty"`
	SummaryType   string `json:"summary_type,omitempty"`
}

type transcriptResponse struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Text          string   `json:"text"`
	Confidence    *float64 `json:"confidence"`
	AudioDuration *float64 `json:"audio_duration"`
	Words         []struct {
		Text       string  `json:"text"`
		Start      int64   `json:"start"`
		End        int64   `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
	Summary string `json:"summary"`
	Error   string `json:"error"`
}

// Submit uploads the audio file and starts a transcript, returning its id.
func (c *Client) Submit(ctx context.Context, audioPath string, opts Options) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio %s: %w", audioPath, err)
	}
	defer f.Close()

	var up uploadResponse
	if err := c.backend.CallRaw(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", f, &up); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if strings.TrimSpace(up.UploadURL) == "" {
		return "", fmt.Errorf("upload audio: provider returned no upload_url")
	}

	req := transcriptRequest{AudioURL: up.UploadURL}
	if opts.Summarize {
		req.Summarization = true
		req.SummaryModel = "informative"
		req.SummaryType = "bullets"
	}
	var created transcriptResponse
	if err := c.backend.Call(ctx, http.MethodPost, "/v2/transcript", req, &created); err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create transcript: provider returned no id")
	}
	c.debug("transcript submitted", "id", created.ID, "status", created.Status)
	return created.ID, nil
}

// Poll waits for a transcript to reach a terminal state. Lookup errors are
// retried after PollErrorInterval until PollTimeout elapses.
func (c *Client) Poll(ctx context.Context, id string) (model.Transcript, error) {
	deadline := time.Now().Add(c.PollTimeout)
	for {
		var tr transcriptResponse
		wait := c.PollInterval
		err := c.backend.Call(ctx, http.MethodGet, "/v2/transcript/"+id, nil, &tr)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return model.Transcript{}, fmt.Errorf("poll transcript %s: %w", id, ctx.Err())
			}
			if httpapi.IsAuthError(err) {
				return model.Transcript{}, fmt.Errorf("poll transcript %s: %w", id, err)
			}
			c.warn("transcript status check failed", "id", id, "err", err)
			wait = c.PollErrorInterval
		case tr.Status == statusCompleted:
			return toTranscript(tr), nil
		case tr.Status == statusError:
			return model.Transcript{}, fmt.Errorf("transcript %s failed: %s", id, nonEmpty(tr.Error, "unknown provider error"))
		case tr.Status == statusQueued || tr.Status == statusProcessing:
			c.debug("transcription in progress", "id", id, "status", tr.Status)
		default:
			c.warn("unknown transcript status", "id", id, "status", tr.Status)
		}

		if time.Now().Add(wait).After(deadline) {
			return model.Transcript{}, fmt.Errorf("%w after %s (id=%s)", ErrPollTimeout, c.PollTimeout, id)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Transcript{}, fmt.Errorf("poll transcript %s: %w", id, ctx.Err())
		case <-timer.C:
		}
	}
}

// Ping checks that the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	return c.backend.Call(ctx, http.MethodGet, "/v2/transcript?limit=1", nil, nil)
}

func toTranscript(tr transcriptResponse) model.Transcript {
	out := model.Transcript{
		Text:    tr.Text,
		Summary: tr.Summary,
		Words:   make([]model.Word, 0, len(tr.Words)),
	}
	if tr.Confidence != nil {
		out.Confidence = *tr.Confidence
	}
	if tr.AudioDuration != nil {
		out.AudioDuration = *tr.AudioDuration
	}
	// provider timings are milliseconds
	for _, w := range tr.Words {
		out.Words = append(out.Words, model.Word{
			Text:       w.Text,
			Start:      float64(w.Start) / 1000,
			End:        float64(w.End) / 1000,
			Confidence: w.Confidence,
		})
	}
	return out
}

func (c *Client) debug(msg string, keyvals ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keyvals...)
	}
}

func (c *Client) warn(msg string, keyvals ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keyvals...)
	}
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
