package output

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

const (
	DefaultSegmentSeconds   = 8.0
	DefaultSegmentWords     = 10
	fallbackDurationSeconds = 60.0
	fallbackExcerptRunes    = 100
)

type Segment struct {
	Start float64
	End   float64
	Text  string
}

// GroupWords partitions timed words into caption segments. A segment closes
// when the next word would stretch it past maxSeconds, or when it already
// holds maxWords words (0 disables the word cap). Words without a usable
// start and end are dropped.
func GroupWords(words []model.Word, maxSeconds float64, maxWords int) []Segment {
	var segments []Segment
	var current []model.Word
	var start float64

	flush := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, 0, len(current))
		for _, w := range current {
			texts = append(texts, w.Text)
		}
		segments = append(segments, Segment{
			Start: start,
			End:   current[len(current)-1].End,
			Text:  strings.Join(texts, " "),
		})
		current = current[:0]
	}

	for _, w := range words {
		if !usableWord(w) {
			continue
		}
		if len(current) == 0 {
			start = w.Start
			current = append(current, w)
			continue
		}
		if w.End-start > maxSeconds || (maxWords > 0 && len(current) >= maxWords) {
			flush()
			start = w.Start
		}
		current = append(current, w)
	}
	flush()
	return segments
}

func usableWord(w model.Word) bool {
	return w.Start >= 0 && w.End > 0 && w.End >= w.Start
}

// fallbackSegment covers the whole known duration with a transcript excerpt.
func fallbackSegment(job *model.Job) Segment {
	duration := job.KnownDuration()
	if duration <= 0 {
		duration = fallbackDurationSeconds
	}
	text := strings.TrimSpace(job.Transcript.Text)
	if r := []rune(text); len(r) > fallbackExcerptRunes {
		text = string(r[:fallbackExcerptRunes]) + "..."
	}
	return Segment{Start: 0, End: duration, Text: text}
}

// CaptionFormatter renders SRT or VTT cues from grouped words.
type CaptionFormatter struct {
	format     string
	fileName   string
	MaxSeconds float64
	MaxWords   int
}

func NewSRTFormatter() CaptionFormatter {
	return CaptionFormatter{format: FormatSRT, fileName: "captions.srt", MaxSeconds: DefaultSegmentSeconds, MaxWords: DefaultSegmentWords}
}

func NewVTTFormatter() CaptionFormatter {
	return CaptionFormatter{format: FormatVTT, fileName: "captions.vtt", MaxSeconds: DefaultSegmentSeconds}
}

func (f CaptionFormatter) Format() string { return f.format }

func (f CaptionFormatter) Segments(job *model.Job) []Segment {
	segments := GroupWords(job.Transcript.Words, f.MaxSeconds, f.MaxWords)
	if len(segments) == 0 {
		return []Segment{fallbackSegment(job)}
	}
	return segments
}

func (f CaptionFormatter) Write(job *model.Job, dir string) (string, error) {
	if job.Transcript == nil || (strings.TrimSpace(job.Transcript.Text) == "" && len(job.Transcript.Words) == 0) {
		return "", fmt.Errorf("%s captions for %s: %w", f.format, job.ID, ErrNoTranscript)
	}

	var b strings.Builder
	if f.format == FormatVTT {
		b.WriteString("WEBVTT\n\n")
	}
	for i, seg := range f.Segments(job) {
		if f.format == FormatSRT {
			fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTime(seg.Start), srtTime(seg.End), seg.Text)
		} else {
			fmt.Fprintf(&b, "%s --> %s\n%s\n\n", vttTime(seg.Start), vttTime(seg.End), seg.Text)
		}
	}

	path := filepath.Join(dir, f.fileName)
	if err := runstore.WriteBytes(path, []byte(b.String())); err != nil {
		return "", err
	}
	return path, nil
}

func srtTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTime(seconds float64) (h, m, s, ms int64) {
	total := int64(math.Round(math.Max(0, seconds) * 1000))
	ms = total % 1000
	total /= 1000
	s = total % 60
	total /= 60
	m = total % 60
	h = total / 60
	return h, m, s, ms
}
