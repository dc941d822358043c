package output

import (
	"path/filepath"

	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

const MetaFileName = "meta.json"

type metaDocument struct {
	JobID       string               `json:"job_id"`
	URL         string               `json:"url"`
	Status      string               `json:"status"`
	CreatedAt   string               `json:"created_at,omitempty"`
	StartedAt   string               `json:"started_at,omitempty"`
	CompletedAt string               `json:"completed_at,omitempty"`
	Metadata    *model.VideoMetadata `json:"video_metadata"`
	Processing  processingSection    `json:"processing"`
	OutputFiles []string             `json:"output_files,omitempty"`
	ErrorInfo   *errorInfo           `json:"error_info"`
}

type errorInfo struct {
	FailureReason string `json:"failure_reason,omitempty"`
	SkipReason    string `json:"skip_reason,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// WriteMeta writes the sidecar for any job state, including failed and
// skipped jobs.
func WriteMeta(job *model.Job, dir string) (string, error) {
	doc := metaDocument{
		JobID:       job.ID,
		URL:         job.URL,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Metadata:    job.Metadata,
		Processing:  processingOf(job),
		OutputFiles: relativeNames(job.OutputFiles),
	}
	if job.FailureReason != "" || job.SkipReason != "" {
		doc.ErrorInfo = &errorInfo{
			FailureReason: job.FailureReason,
			SkipReason:    job.SkipReason,
			ErrorMessage:  job.ErrorMessage,
		}
	}

	path := filepath.Join(dir, MetaFileName)
	if err := runstore.WriteJSON(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

func relativeNames(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}
