package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/model"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

const maxDescriptionRunes = 500

// Client fetches metadata and media through the yt-dlp executable.
type Client struct {
	Binary             string
	TempDir            string
	Format             string
	CookiesPath        string
	CookiesFromBrowser string
	ProxyURL           string
	Logger             *log.Logger
}

func NewClient(tempDir string, logger *log.Logger) *Client {
	return &Client{
		Binary:  "yt-dlp",
		TempDir: tempDir,
		Format:  "bestaudio/best",
		Logger:  logger,
	}
}

type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath("yt-dlp"); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

// CheckDependencies reports missing executables. ffmpeg is only required
// when audio is converted locally.
func CheckDependencies(needFFmpeg bool) error {
	report := DependencyStatus()
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if needFFmpeg && !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is required for local audio conversion and was not found on PATH")
	}
	return nil
}

type infoJSON struct {
	Title        string   `json:"title"`
	Duration     *float64 `json:"duration"`
	Uploader     string   `json:"uploader"`
	Channel      string   `json:"channel"`
	UploadDate   string   `json:"upload_date"`
	ViewCount    *int64   `json:"view_count"`
	Description  string   `json:"description"`
	IsLive       *bool    `json:"is_live"`
	LiveStatus   string   `json:"live_status"`
	Availability string   `json:"availability"`
	WebpageURL   string   `json:"webpage_url"`
}

// Metadata resolves video details without downloading media.
func (c *Client) Metadata(ctx context.Context, videoURL string) (model.VideoMetadata, error) {
	if strings.TrimSpace(videoURL) == "" {
		return model.VideoMetadata{}, fmt.Errorf("invalid url: video URL is required")
	}
	args := []string{"-J", "--no-playlist", "--skip-download", "--no-warnings"}
	args = append(args, c.commonArgs()...)
	args = append(args, videoURL)

	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return model.VideoMetadata{}, fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return model.VideoMetadata{}, fmt.Errorf("yt-dlp returned empty output")
	}
	return parseInfo(stdout.Bytes(), videoURL)
}

func parseInfo(raw []byte, videoURL string) (model.VideoMetadata, error) {
	var info infoJSON
	if err := json.Unmarshal(raw, &info); err != nil {
		return model.VideoMetadata{}, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	meta := model.VideoMetadata{
		Title:       strings.TrimSpace(info.Title),
		Platform:    DetectPlatform(videoURL),
		Uploader:    firstNonEmpty(info.Uploader, info.Channel),
		UploadDate:  info.UploadDate,
		Description: truncateRunes(strings.TrimSpace(info.Description), maxDescriptionRunes),
		Private:     strings.EqualFold(info.Availability, "private"),
	}
	if meta.Title == "" {
		meta.Title = "Unknown"
	}
	if info.Duration != nil && *info.Duration > 0 {
		meta.Duration = *info.Duration
	}
	if info.ViewCount != nil {
		meta.ViewCount = *info.ViewCount
	}
	if (info.IsLive != nil && *info.IsLive) || info.LiveStatus == "is_live" {
		meta.IsLive = true
	}
	return meta, nil
}

// Download fetches media for one job into the temp directory and returns
// the final file path.
func (c *Client) Download(ctx context.Context, videoURL, jobID string) (string, error) {
	if strings.TrimSpace(videoURL) == "" {
		return "", fmt.Errorf("invalid url: video URL is required")
	}
	if strings.TrimSpace(jobID) == "" {
		return "", fmt.Errorf("job id is required")
	}
	if err := os.MkdirAll(c.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp directory %s: %w", c.TempDir, err)
	}

	format := c.Format
	if strings.TrimSpace(format) == "" {
		format = "bestaudio/best"
	}
	args := []string{
		"--no-playlist",
		"--newline",
		"--no-part",
		"-f", format,
		"-P", c.TempDir,
		"-o", jobID + ".%(ext)s",
		"--print", "after_move:filepath",
	}
	args = append(args, c.commonArgs()...)
	args = append(args, videoURL)

	var printed []string
	progress := func(stream OutputStream, line string) {
		if stream == StreamStdout && strings.TrimSpace(line) != "" {
			printed = append(printed, strings.TrimSpace(line))
			return
		}
		if c.Logger != nil {
			c.Logger.Debug("yt-dlp", "job", jobID, "line", line)
		}
	}
	if err := c.runCommand(ctx, args, progress); err != nil {
		removePartials(c.TempDir, jobID)
		return "", err
	}

	if n := len(printed); n > 0 {
		if path := printed[n-1]; fileExists(path) {
			return path, nil
		}
	}
	matches, _ := filepath.Glob(filepath.Join(c.TempDir, jobID+".*"))
	for _, m := range matches {
		if fileExists(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("yt-dlp finished but no media file was written for %s", jobID)
}

func (c *Client) binary() string {
	if strings.TrimSpace(c.Binary) == "" {
		return "yt-dlp"
	}
	return c.Binary
}

func (c *Client) commonArgs() []string {
	var args []string
	if strings.TrimSpace(c.CookiesPath) != "" {
		args = append(args, "--cookies", c.CookiesPath)
	}
	if strings.TrimSpace(c.CookiesFromBrowser) != "" {
		args = append(args, "--cookies-from-browser", c.CookiesFromBrowser)
	}
	if strings.TrimSpace(c.ProxyURL) != "" {
		args = append(args, "--proxy", strings.TrimSpace(c.ProxyURL))
	}
	return args
}

func (c *Client) runCommand(ctx context.Context, args []string, progress func(OutputStream, string)) error {
	cmd := exec.CommandContext(ctx, c.binary(), args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var outBuf strings.Builder
	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			if progress != nil {
				progress(stream, line)
			}
			mu.Unlock()
		}
	}

	wg.Add(2)
	go read(StreamStdout, stdoutPipe)
	go read(StreamStderr, stderrPipe)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("yt-dlp interrupted: %w", ctxErr)
		}
		return fmt.Errorf("yt-dlp failed: %w\n%s", err, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	const maxKeep = 8192
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	if len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}

// removePartials drops whatever a failed download left behind.
func removePartials(dir, jobID string) {
	matches, _ := filepath.Glob(filepath.Join(dir, jobID+".*"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
