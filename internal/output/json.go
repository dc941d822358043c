package output

import (
	"fmt"
	"path/filepath"
	"time"

	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

type JSONFormatter struct{}

type jsonDocument struct {
	JobID          string            `json:"job_id"`
	URL            string            `json:"url"`
	Status         string            `json:"status"`
	CreatedAt      string            `json:"created_at,omitempty"`
	CompletedAt    string            `json:"completed_at,omitempty"`
	Metadata       jsonMetadata      `json:"metadata"`
	Transcript     model.Transcript  `json:"transcript"`
	ProcessingInfo processingSection `json:"processing_info"`
	GeneratedAt    string            `json:"generated_at"`
}

type jsonMetadata struct {
	Title      string  `json:"title,omitempty"`
	Platform   string  `json:"platform,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	UploadDate string  `json:"upload_date,omitempty"`
	Uploader   string  `json:"uploader,omitempty"`
	ViewCount  int64   `json:"view_count,omitempty"`
}

type processingSection struct {
	ConvertJobID  string   `json:"convert_job_id,omitempty"`
	TranscriptID  string   `json:"transcript_id,omitempty"`
	RetryCount    int      `json:"retry_count"`
	EstimatedCost float64  `json:"estimated_cost"`
	ActualCost    *float64 `json:"actual_cost"`
}

func (JSONFormatter) Format() string { return FormatJSON }

func (JSONFormatter) Write(job *model.Job, dir string) (string, error) {
	if job.Transcript == nil {
		return "", fmt.Errorf("json transcript for %s: %w", job.ID, ErrNoTranscript)
	}
	doc := jsonDocument{
		JobID:          job.ID,
		URL:            job.URL,
		Status:         job.Status,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
		Transcript:     *job.Transcript,
		ProcessingInfo: processingOf(job),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if m := job.Metadata; m != nil {
		doc.Metadata = jsonMetadata{
			Title:      m.Title,
			Platform:   m.Platform,
			Duration:   m.Duration,
			UploadDate: m.UploadDate,
			Uploader:   m.Uploader,
			ViewCount:  m.ViewCount,
		}
	}

	path := filepath.Join(dir, "transcript.json")
	if err := runstore.WriteJSON(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

func processingOf(job *model.Job) processingSection {
	return processingSection{
		ConvertJobID:  job.ConvertJobID,
		TranscriptID:  job.TranscriptID,
		RetryCount:    job.RetryCount,
		EstimatedCost: job.EstimatedCost,
		ActualCost:    job.ActualCost,
	}
}
