package ytdlp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func installFakeYTDLP(t *testing.T, script string) {
	t.Helper()
	fakeBin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fakeBin, "yt-dlp"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
}

func TestDetectPlatform(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=abc": "YouTube",
		"https://youtu.be/abc":                "YouTube",
		"https://m.tiktok.com/@u/video/1":     "TikTok",
		"https://x.com/u/status/1":            "X/Twitter",
		"https://vimeo.com/123":               "Vimeo",
		"https://www.linkedin.com/posts/abc":  "LinkedIn",
		"https://notyoutube.com/watch":        "Unknown",
		"not a url":                           "Unknown",
	}
	for in, want := range cases {
		if got := DetectPlatform(in); got != want {
			t.Fatalf("DetectPlatform(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseInfo(t *testing.T) {
	raw := []byte(`{"title":"Talk","duration":321.5,"channel":"Chan","upload_date":"20250101","view_count":42,"description":"` +
		strings.Repeat("d", 600) + `","is_live":false,"availability":"private"}`)
	meta, err := parseInfo(raw, "https://vimeo.com/1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Title != "Talk" || meta.Duration != 321.5 || meta.Uploader != "Chan" || meta.ViewCount != 42 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.Platform != "Vimeo" {
		t.Fatalf("expected platform Vimeo, got %q", meta.Platform)
	}
	if len([]rune(meta.Description)) != maxDescriptionRunes {
		t.Fatalf("expected description truncated to %d runes", maxDescriptionRunes)
	}
	if !meta.Private || meta.IsLive {
		t.Fatalf("unexpected availability flags: %+v", meta)
	}

	live, err := parseInfo([]byte(`{"title":"","live_status":"is_live"}`), "https://youtu.be/x")
	if err != nil {
		t.Fatalf("parse live: %v", err)
	}
	if !live.IsLive || live.Title != "Unknown" {
		t.Fatalf("unexpected live metadata: %+v", live)
	}
}

func TestMetadata_UsesExecutable(t *testing.T) {
	installFakeYTDLP(t, `#!/usr/bin/env bash
set -euo pipefail
echo '{"title":"From fake","duration":12}'
`)
	c := NewClient(t.TempDir(), nil)
	meta, err := c.Metadata(context.Background(), "https://www.youtube.com/watch?v=x")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Title != "From fake" || meta.Duration != 12 || meta.Platform != "YouTube" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestMetadata_SurfacesStderr(t *testing.T) {
	installFakeYTDLP(t, `#!/usr/bin/env bash
echo "ERROR: [youtube] x: Private video. Sign in if you've been granted access" >&2
exit 1
`)
	c := NewClient(t.TempDir(), nil)
	_, err := c.Metadata(context.Background(), "https://www.youtube.com/watch?v=x")
	if err == nil || !strings.Contains(err.Error(), "Private video") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestDownload_ReturnsPrintedPath(t *testing.T) {
	installFakeYTDLP(t, `#!/usr/bin/env bash
set -euo pipefail
dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    -P) dir="$2"; shift 2 ;;
    *) shift ;;
  esac
done
out="$dir/batch_job_001.m4a"
echo "[download] 50.0% of 1.00MiB" >&2
printf 'audio' > "$out"
echo "$out"
`)
	tempDir := t.TempDir()
	c := NewClient(tempDir, nil)
	path, err := c.Download(context.Background(), "https://vimeo.com/1", "batch_job_001")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if path != filepath.Join(tempDir, "batch_job_001.m4a") {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestDownload_FailureRemovesPartials(t *testing.T) {
	tempDir := t.TempDir()
	installFakeYTDLP(t, `#!/usr/bin/env bash
printf 'partial' > "`+tempDir+`/batch_job_002.webm"
echo "ERROR: Unsupported URL: https://example.com" >&2
exit 1
`)
	c := NewClient(tempDir, nil)
	_, err := c.Download(context.Background(), "https://example.com", "batch_job_002")
	if err == nil || !strings.Contains(err.Error(), "Unsupported URL") {
		t.Fatalf("expected unsupported url error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(tempDir, "batch_job_002.webm")); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial download to be removed")
	}
}
