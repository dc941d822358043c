package output

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"solotranscribe/internal/model"
)

const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
)

var DefaultFormats = []string{FormatText, FormatJSON}

var ErrNoTranscript = errors.New("no transcript available")

// Formatter renders one artifact for a completed job into its directory.
type Formatter interface {
	Format() string
	Write(job *model.Job, dir string) (string, error)
}

var registry = map[string]func() Formatter{
	FormatText: func() Formatter { return TextFormatter{} },
	FormatJSON: func() Formatter { return JSONFormatter{} },
	FormatSRT:  func() Formatter { return NewSRTFormatter() },
	FormatVTT:  func() Formatter { return NewVTTFormatter() },
}

func KnownFormats() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParseFormats splits a comma list, validates every name and drops
// duplicates. An empty list yields DefaultFormats.
func ParseFormats(raw string) ([]string, error) {
	seen := map[string]bool{}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		if _, ok := registry[name]; !ok {
			return nil, fmt.Errorf("invalid output format %q (expected one of %s)", name, strings.Join(KnownFormats(), ", "))
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultFormats...), nil
	}
	return out, nil
}

func ForNames(names []string) ([]Formatter, error) {
	out := make([]Formatter, 0, len(names))
	for _, name := range names {
		build, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("invalid output format %q", name)
		}
		out = append(out, build())
	}
	return out, nil
}

// JobDir is the per-job artifact directory under the batch output dir.
func JobDir(outDir, jobID string) string {
	return filepath.Join(outDir, jobID)
}
