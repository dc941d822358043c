package runstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/model"
)

const (
	ManifestFileName = "manifest.json"
	SummaryFileName  = "manifest.csv"
)

var summaryHeader = []string{
	"job_id", "url", "status", "title", "platform", "duration",
	"estimated_cost", "actual_cost", "error_reason", "created_at", "completed_at",
}

func ManifestPath(outDir string) string {
	return filepath.Join(outDir, ManifestFileName)
}

func SummaryPath(outDir string) string {
	return filepath.Join(outDir, SummaryFileName)
}

// SaveManifest recomputes aggregates, then writes the full JSON manifest and
// the CSV summary into outDir. Only the JSON write can fail the call; a CSV
// failure is logged.
func SaveManifest(outDir string, mf *model.Manifest, logger *log.Logger) error {
	model.Recompute(mf)
	mf.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := WriteJSON(ManifestPath(outDir), mf); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	if err := WriteSummaryCSV(SummaryPath(outDir), mf); err != nil && logger != nil {
		logger.Warn("summary csv not written", "path", SummaryPath(outDir), "err", err)
	}
	return nil
}

// LoadManifest reads a manifest and rederives its aggregates.
func LoadManifest(path string) (*model.Manifest, error) {
	var mf model.Manifest
	if err := ReadJSON(path, &mf); err != nil {
		return nil, err
	}
	if mf.ID == "" {
		return nil, fmt.Errorf("manifest %s has no id", path)
	}
	for i := range mf.Jobs {
		if !model.IsKnownStatus(mf.Jobs[i].Status) || mf.Jobs[i].Status == "" {
			return nil, fmt.Errorf("manifest %s: job %s has unknown status %q", path, mf.Jobs[i].ID, mf.Jobs[i].Status)
		}
	}
	model.Recompute(&mf)
	return &mf, nil
}

// ResolveManifestPath accepts a manifest file or the directory holding one.
func ResolveManifestPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat manifest %s: %w", path, err)
	}
	if info.IsDir() {
		return ManifestPath(path), nil
	}
	return path, nil
}

func WriteSummaryCSV(path string, mf *model.Manifest) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	for _, job := range mf.Jobs {
		duration := ""
		if d := job.KnownDuration(); d > 0 {
			duration = strconv.FormatFloat(d, 'f', -1, 64)
		}
		actual := ""
		if job.ActualCost != nil {
			actual = formatCost(*job.ActualCost)
		}
		reason := job.FailureReason
		if reason == "" {
			reason = job.SkipReason
		}
		row := []string{
			job.ID,
			job.URL,
			job.Status,
			job.Title(),
			job.Platform(),
			duration,
			formatCost(job.EstimatedCost),
			actual,
			reason,
			job.CreatedAt,
			job.CompletedAt,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode summary csv: %w", err)
	}
	return WriteBytes(path, buf.Bytes())
}

func formatCost(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// RemoveIfExists deletes a file, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
