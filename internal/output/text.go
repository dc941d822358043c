package output

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

type TextFormatter struct{}

func (TextFormatter) Format() string { return FormatText }

func (TextFormatter) Write(job *model.Job, dir string) (string, error) {
	if job.Transcript == nil || strings.TrimSpace(job.Transcript.Text) == "" {
		return "", fmt.Errorf("text transcript for %s: %w", job.ID, ErrNoTranscript)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transcript for: %s\n", job.URL)
	if title := job.Title(); title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	if platform := job.Platform(); platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", platform)
	}
	if d := job.KnownDuration(); d > 0 {
		fmt.Fprintf(&b, "Duration: %.1f seconds\n", d)
	}
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("\n" + strings.Repeat("=", 50) + "\n\n")
	b.WriteString(job.Transcript.Text)
	b.WriteString("\n")

	path := filepath.Join(dir, "transcript.txt")
	if err := runstore.WriteBytes(path, []byte(b.String())); err != nil {
		return "", err
	}
	return path, nil
}
