package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

func words(spec ...float64) []model.Word {
	out := []model.Word{}
	for i := 0; i+1 < len(spec); i += 2 {
		out = append(out, model.Word{Text: "w", Start: spec[i], End: spec[i+1]})
	}
	return out
}

func completedJob(tr *model.Transcript) *model.Job {
	cost := 0.05
	return &model.Job{
		ID:         "batch_x_job_001",
		URL:        "https://www.youtube.com/watch?v=abc",
		Status:     model.StatusCompleted,
		ActualCost: &cost,
		Metadata:   &model.VideoMetadata{Title: "A Talk", Platform: "YouTube", Duration: 42},
		Transcript: tr,
	}
}

func TestGroupWords_PartitionsAndCapsDuration(t *testing.T) {
	in := []model.Word{}
	for i := 0; i < 40; i++ {
		start := float64(i) * 0.7
		in = append(in, model.Word{Text: "x", Start: start, End: start + 0.5})
	}

	for _, maxWords := range []int{0, 10} {
		segs := GroupWords(in, 8, maxWords)
		count := 0
		for _, s := range segs {
			if s.End-s.Start > 8 {
				t.Fatalf("segment exceeds 8s: %+v", s)
			}
			n := len(strings.Fields(s.Text))
			if maxWords > 0 && n > maxWords {
				t.Fatalf("segment exceeds %d words: %d", maxWords, n)
			}
			count += n
		}
		if count != len(in) {
			t.Fatalf("maxWords=%d: words not partitioned, got %d want %d", maxWords, count, len(in))
		}
	}
}

func TestGroupWords_SkipsUntimedWords(t *testing.T) {
	in := []model.Word{
		{Text: "a", Start: 0, End: 0.4},
		{Text: "ghost", Start: 1, End: 0},
		{Text: "b", Start: 0.5, End: 0.9},
		{Text: "neg", Start: -1, End: 2},
	}
	segs := GroupWords(in, 8, 10)
	if len(segs) != 1 || segs[0].Text != "a b" {
		t.Fatalf("unexpected segments %+v", segs)
	}
}

func TestGroupWords_WordCapSplits(t *testing.T) {
	segs := GroupWords(words(0, 0.1, 0.2, 0.3, 0.4, 0.5), 8, 2)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
}

func TestCaptionFormatters_Render(t *testing.T) {
	dir := t.TempDir()
	job := completedJob(&model.Transcript{
		Text:  "hello world again",
		Words: []model.Word{{Text: "hello", Start: 0.5, End: 1}, {Text: "world", Start: 1.2, End: 2}, {Text: "again", Start: 3661.25, End: 3662}},
	})

	srtPath, err := NewSRTFormatter().Write(job, dir)
	if err != nil {
		t.Fatalf("srt: %v", err)
	}
	srt, _ := os.ReadFile(srtPath)
	if !strings.Contains(string(srt), "1\n00:00:00,500 --> 00:00:02,000\nhello world") {
		t.Fatalf("unexpected srt:\n%s", srt)
	}
	if !strings.Contains(string(srt), "01:01:01,250 --> 01:01:02,000") {
		t.Fatalf("expected hour formatting:\n%s", srt)
	}

	vttPath, err := NewVTTFormatter().Write(job, dir)
	if err != nil {
		t.Fatalf("vtt: %v", err)
	}
	vtt, _ := os.ReadFile(vttPath)
	if !strings.HasPrefix(string(vtt), "WEBVTT\n\n00:00:00.500 --> 00:00:02.000\n") {
		t.Fatalf("unexpected vtt:\n%s", vtt)
	}
}

func TestCaptionFormatters_FallbackWithoutWords(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("abcdefghij", 15)
	job := completedJob(&model.Transcript{Text: long})
	job.Metadata = nil

	path, err := NewSRTFormatter().Write(job, dir)
	if err != nil {
		t.Fatalf("srt: %v", err)
	}
	data, _ := os.ReadFile(path)
	want := "1\n00:00:00,000 --> 00:01:00,000\n" + long[:100] + "...\n"
	if !strings.HasPrefix(string(data), want) {
		t.Fatalf("unexpected fallback srt:\n%s", data)
	}

	job.Metadata = &model.VideoMetadata{Duration: 42}
	job.Transcript.Text = "short"
	path, err = NewVTTFormatter().Write(job, dir)
	if err != nil {
		t.Fatalf("vtt: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "00:00:00.000 --> 00:00:42.000\nshort\n") {
		t.Fatalf("unexpected fallback vtt:\n%s", data)
	}
}

func TestTextAndJSONFormatters(t *testing.T) {
	dir := t.TempDir()
	job := completedJob(&model.Transcript{Text: "the transcript", Confidence: 0.9, Summary: "- gist"})

	txtPath, err := TextFormatter{}.Write(job, dir)
	if err != nil {
		t.Fatalf("txt: %v", err)
	}
	txt, _ := os.ReadFile(txtPath)
	for _, want := range []string{"Transcript for: https://www.youtube.com/watch?v=abc", "Title: A Talk", "Duration: 42.0 seconds", strings.Repeat("=", 50), "the transcript"} {
		if !strings.Contains(string(txt), want) {
			t.Fatalf("txt missing %q:\n%s", want, txt)
		}
	}

	jsonPath, err := JSONFormatter{}.Write(job, dir)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var doc map[string]any
	if err := runstore.ReadJSON(jsonPath, &doc); err != nil {
		t.Fatalf("read json: %v", err)
	}
	tr := doc["transcript"].(map[string]any)
	if tr["summary"] != "- gist" || doc["job_id"] != job.ID {
		t.Fatalf("unexpected json doc: %v", doc)
	}
	proc := doc["processing_info"].(map[string]any)
	if proc["actual_cost"] != 0.05 {
		t.Fatalf("expected actual cost in processing info, got %v", proc)
	}
}

func TestFormatters_RequireTranscript(t *testing.T) {
	dir := t.TempDir()
	job := completedJob(nil)
	for _, f := range []Formatter{TextFormatter{}, JSONFormatter{}, NewSRTFormatter(), NewVTTFormatter()} {
		if _, err := f.Write(job, dir); err == nil {
			t.Fatalf("%s: expected error without transcript", f.Format())
		}
	}
}

func TestWriteMeta_FailedJob(t *testing.T) {
	dir := t.TempDir()
	job := &model.Job{
		ID:            "batch_x_job_002",
		URL:           "https://vimeo.com/1",
		Status:        model.StatusFailed,
		FailureReason: model.ReasonConvertFailed,
		ErrorMessage:  "ffmpeg failed",
		RetryCount:    1,
	}
	path, err := WriteMeta(job, dir)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if filepath.Base(path) != MetaFileName {
		t.Fatalf("unexpected meta path %s", path)
	}
	var doc map[string]any
	if err := runstore.ReadJSON(path, &doc); err != nil {
		t.Fatal(err)
	}
	info, ok := doc["error_info"].(map[string]any)
	if !ok || info["failure_reason"] != model.ReasonConvertFailed {
		t.Fatalf("expected error info, got %v", doc["error_info"])
	}
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats(" TXT, srt,txt ,vtt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if strings.Join(got, ",") != "txt,srt,vtt" {
		t.Fatalf("unexpected formats %v", got)
	}
	if got, _ := ParseFormats(""); strings.Join(got, ",") != "txt,json" {
		t.Fatalf("expected defaults, got %v", got)
	}
	if _, err := ParseFormats("txt,docx"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
