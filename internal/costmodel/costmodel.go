package costmodel

import (
	"fmt"
	"math"
	"strings"
)

const (
	ConverterFFmpeg      = "ffmpeg"
	ConverterFreeConvert = "freeconvert"

	// DefaultDurationSeconds stands in for media whose length is unknown.
	DefaultDurationSeconds = 120.0
)

// Model prices a job and estimates its wall time from media duration alone.
// The same Model prices dry runs and real jobs.
type Model struct {
	Converter string

	TranscriptionPerSecond float64
	ConversionBase         float64
	ConversionPerSecond    float64

	DownloadSecondsPerMediaSecond float64
	DownloadCapSeconds            float64
	DownloadDefaultSeconds        float64
	MediaMBPerSecond              float64

	ConvertBaseSeconds    float64
	ConvertSecondsPerMB   float64
	ConvertMinSeconds     float64
	ConvertMBPerStep      float64
	TranscribeFactor      float64
	TranscribeBaseSeconds float64
	BufferSeconds         float64
}

func base() Model {
	return Model{
		TranscriptionPerSecond:        0.00037,
		DownloadSecondsPerMediaSecond: 2,
		DownloadCapSeconds:            300,
		DownloadDefaultSeconds:        60,
		MediaMBPerSecond:              0.5,
		TranscribeFactor:              0.33,
		TranscribeBaseSeconds:         30,
		BufferSeconds:                 30,
	}
}

// ForConverter returns the preset for a converter kind.
func ForConverter(kind string) (Model, error) {
	m := base()
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ConverterFFmpeg:
		m.Converter = ConverterFFmpeg
		m.ConvertMinSeconds = 10
		m.ConvertMBPerStep = 100
	case ConverterFreeConvert:
		m.Converter = ConverterFreeConvert
		m.ConversionBase = 0.01
		m.ConversionPerSecond = 0.001
		m.ConvertBaseSeconds = 30
		m.ConvertSecondsPerMB = 1
	default:
		return Model{}, fmt.Errorf("unknown converter %q (expected %s or %s)", kind, ConverterFFmpeg, ConverterFreeConvert)
	}
	return m, nil
}

func MustForConverter(kind string) Model {
	m, err := ForConverter(kind)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Model) EstimateCost(durationSeconds float64) float64 {
	d := math.Max(0, durationSeconds)
	transcription := d * m.TranscriptionPerSecond
	conversion := m.ConversionBase + d*m.ConversionPerSecond
	return round(transcription + conversion)
}

// EstimateTime returns expected wall seconds for download, convert and
// transcribe plus a fixed buffer.
func (m Model) EstimateTime(durationSeconds float64) float64 {
	d := math.Max(0, durationSeconds)
	return m.downloadSeconds(d) + m.convertSeconds(d) + m.transcribeSeconds(d) + m.BufferSeconds
}

func (m Model) downloadSeconds(d float64) float64 {
	if d <= 0 {
		return m.DownloadDefaultSeconds
	}
	return math.Min(d*m.DownloadSecondsPerMediaSecond, m.DownloadCapSeconds)
}

func (m Model) convertSeconds(d float64) float64 {
	sizeMB := d * m.MediaMBPerSecond
	if m.ConvertMBPerStep > 0 {
		// local encode: a fixed slice of time per chunk of input
		return m.ConvertMinSeconds * math.Max(1, sizeMB/m.ConvertMBPerStep)
	}
	return m.ConvertBaseSeconds + sizeMB*m.ConvertSecondsPerMB
}

func (m Model) transcribeSeconds(d float64) float64 {
	return d*m.TranscribeFactor + m.TranscribeBaseSeconds
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
