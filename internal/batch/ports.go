package batch

import (
	"context"

	"solotranscribe/internal/convert"
	"solotranscribe/internal/model"
	"solotranscribe/internal/transcribe"
)

// Fetcher resolves metadata and downloads media for a source URL.
type Fetcher interface {
	Metadata(ctx context.Context, url string) (model.VideoMetadata, error)
	Download(ctx context.Context, url, jobID string) (string, error)
}

// Converter turns fetched media into MP3 audio.
type Converter interface {
	Name() string
	Convert(ctx context.Context, inputPath, outputPath string) (convert.Result, error)
}

// Transcriber submits audio and polls until the remote transcript is final.
type Transcriber interface {
	Submit(ctx context.Context, audioPath string, opts transcribe.Options) (string, error)
	Poll(ctx context.Context, id string) (model.Transcript, error)
}

// Formatter writes one output artifact for a finished job.
type Formatter interface {
	Format() string
	Write(job *model.Job, dir string) (string, error)
}
