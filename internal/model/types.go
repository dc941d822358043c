package model

const SchemaVersion = 1

// Manifest is the canonical per-batch job state file.
type Manifest struct {
	SchemaVersion      int      `json:"schema_version"`
	ID                 string   `json:"id"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
	InputFile          string   `json:"input_file,omitempty"`
	OutputDir          string   `json:"output_dir"`
	OutputFormats      []string `json:"output_formats"`
	Converter          string   `json:"converter,omitempty"`
	Summarize          bool     `json:"summarize,omitempty"`
	RetryLimit         int      `json:"retry_limit"`
	BudgetCap          float64  `json:"budget_cap"`
	TotalJobs          int      `json:"total_jobs"`
	PendingJobs        int      `json:"pending_jobs"`
	InProgressJobs     int      `json:"in_progress_jobs"`
	CompletedJobs      int      `json:"completed_jobs"`
	FailedJobs         int      `json:"failed_jobs"`
	SkippedJobs        int      `json:"skipped_jobs"`
	TotalEstimatedCost float64  `json:"total_estimated_cost"`
	TotalActualCost    float64  `json:"total_actual_cost"`
	Jobs               []Job    `json:"jobs"`
}

type Job struct {
	ID            string         `json:"id"`
	Index         int            `json:"index"`
	URL           string         `json:"url"`
	Status        string         `json:"status"`
	Metadata      *VideoMetadata `json:"video_metadata,omitempty"`
	RetryCount    int            `json:"retry_count"`
	EstimatedCost float64        `json:"estimated_cost"`
	ActualCost    *float64       `json:"actual_cost,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	SkipReason    string         `json:"skip_reason,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     string         `json:"created_at"`
	StartedAt     string         `json:"started_at,omitempty"`
	CompletedAt   string         `json:"completed_at,omitempty"`
	TempVideoPath string         `json:"temp_video_path,omitempty"`
	TempAudioPath string         `json:"temp_audio_path,omitempty"`
	AudioDuration float64        `json:"audio_duration,omitempty"`
	OutputDir     string         `json:"output_dir,omitempty"`
	OutputFiles   []string       `json:"output_files,omitempty"`
	ConvertJobID  string         `json:"convert_job_id,omitempty"`
	TranscriptID  string         `json:"transcript_id,omitempty"`
	Transcript    *Transcript    `json:"transcript,omitempty"`
}

type VideoMetadata struct {
	Title       string  `json:"title"`
	Platform    string  `json:"platform"`
	Duration    float64 `json:"duration"`
	Uploader    string  `json:"uploader,omitempty"`
	UploadDate  string  `json:"upload_date,omitempty"`
	ViewCount   int64   `json:"view_count,omitempty"`
	Description string  `json:"description,omitempty"`
	IsLive      bool    `json:"is_live,omitempty"`
	Private     bool    `json:"private,omitempty"`
}

// Transcript holds provider output. Word timings are seconds.
type Transcript struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence,omitempty"`
	AudioDuration float64 `json:"audio_duration,omitempty"`
	Words         []Word  `json:"words,omitempty"`
	Summary       string  `json:"summary,omitempty"`
}

type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// KnownDuration returns the best known media duration in seconds, or 0.
func (j Job) KnownDuration() float64 {
	if j.Metadata != nil && j.Metadata.Duration > 0 {
		return j.Metadata.Duration
	}
	if j.AudioDuration > 0 {
		return j.AudioDuration
	}
	if j.Transcript != nil && j.Transcript.AudioDuration > 0 {
		return j.Transcript.AudioDuration
	}
	return 0
}

func (j Job) Title() string {
	if j.Metadata == nil {
		return ""
	}
	return j.Metadata.Title
}

func (j Job) Platform() string {
	if j.Metadata == nil {
		return ""
	}
	return j.Metadata.Platform
}
