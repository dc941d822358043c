package runstore

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"solotranscribe/internal/model"
)

func sampleManifest() *model.Manifest {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mf := model.NewManifest("batch_test", []string{
		"https://www.youtube.com/watch?v=a",
		"https://vimeo.com/1",
		"https://www.tiktok.com/@x/video/2",
	}, model.ManifestOptions{OutputDir: "out", RetryLimit: 3, BudgetCap: 5}, now)

	cost := 0.12
	mf.Jobs[0].Status = model.StatusCompleted
	mf.Jobs[0].ActualCost = &cost
	mf.Jobs[0].EstimatedCost = 0.12
	mf.Jobs[0].Metadata = &model.VideoMetadata{Title: "First, with comma", Platform: "YouTube", Duration: 300}
	mf.Jobs[1].Status = model.StatusFailed
	mf.Jobs[1].FailureReason = model.ReasonAccessDenied
	mf.Jobs[1].ErrorMessage = "private video"
	mf.Jobs[2].Status = model.StatusSkipped
	mf.Jobs[2].SkipReason = model.ReasonBudgetExceeded
	return mf
}

func TestSaveLoadManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	mf := sampleManifest()

	if err := SaveManifest(dir, mf, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadManifest(ManifestPath(dir))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(loaded.Jobs) != len(mf.Jobs) {
		t.Fatalf("job count mismatch: %d vs %d", len(loaded.Jobs), len(mf.Jobs))
	}
	for i := range mf.Jobs {
		if loaded.Jobs[i].ID != mf.Jobs[i].ID || loaded.Jobs[i].Status != mf.Jobs[i].Status {
			t.Fatalf("job %d mismatch: %+v vs %+v", i, loaded.Jobs[i], mf.Jobs[i])
		}
		if loaded.Jobs[i].EstimatedCost != mf.Jobs[i].EstimatedCost {
			t.Fatalf("job %d estimated cost mismatch", i)
		}
	}
	if loaded.Jobs[0].ActualCost == nil || *loaded.Jobs[0].ActualCost != 0.12 {
		t.Fatalf("actual cost lost in round trip: %v", loaded.Jobs[0].ActualCost)
	}
	if loaded.CompletedJobs != 1 || loaded.FailedJobs != 1 || loaded.SkippedJobs != 1 {
		t.Fatalf("unexpected aggregates: %+v", loaded)
	}
}

func TestLoadManifest_RederivesAggregates(t *testing.T) {
	dir := t.TempDir()
	mf := sampleManifest()
	if err := SaveManifest(dir, mf, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	var raw map[string]any
	if err := ReadJSON(ManifestPath(dir), &raw); err != nil {
		t.Fatalf("read raw: %v", err)
	}
	raw["completed_jobs"] = 17
	raw["total_actual_cost"] = 99.5
	if err := WriteJSON(ManifestPath(dir), raw); err != nil {
		t.Fatalf("write tampered: %v", err)
	}

	loaded, err := LoadManifest(ManifestPath(dir))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.CompletedJobs != 1 || loaded.TotalActualCost != 0.12 {
		t.Fatalf("aggregates trusted from disk: completed=%d actual=%v", loaded.CompletedJobs, loaded.TotalActualCost)
	}
}

func TestLoadManifest_RejectsUnknownStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := WriteBytes(path, []byte(`{"id":"b","jobs":[{"id":"j1","status":"exploding"}]}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestWriteSummaryCSV_Columns(t *testing.T) {
	dir := t.TempDir()
	mf := sampleManifest()
	if err := SaveManifest(dir, mf, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := os.Open(SummaryPath(dir))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "job_id" || rows[0][10] != "completed_at" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][3] != "First, with comma" || rows[1][7] != "0.1200" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
	if rows[2][8] != model.ReasonAccessDenied || rows[3][8] != model.ReasonBudgetExceeded {
		t.Fatalf("unexpected reasons: %v / %v", rows[2], rows[3])
	}
}

func TestResolveManifestPath(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveManifestPath(dir)
	if err != nil {
		t.Fatalf("resolve dir: %v", err)
	}
	if got != filepath.Join(dir, ManifestFileName) {
		t.Fatalf("unexpected path %s", got)
	}
	if _, err := ResolveManifestPath(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
