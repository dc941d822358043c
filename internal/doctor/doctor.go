package doctor

import (
	"context"
	"os"
	"strings"
	"time"

	"solotranscribe/internal/config"
	"solotranscribe/internal/runstore"
	"solotranscribe/internal/ytdlp"
)

// Pinger is implemented by remote service clients that can verify
// credentials cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Config   config.Config
	CheckAPI bool
	// Transcriber and Converter are pinged when CheckAPI is set. A nil
	// Converter means conversion runs locally.
	Transcriber Pinger
	Converter   Pinger
	Timeout     time.Duration
}

type Result struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks"`
}

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Run checks credentials, executables and directories, and optionally
// reaches out to the remote services.
func Run(ctx context.Context, opts Options) Result {
	cfg := opts.Config
	local := !strings.EqualFold(cfg.Converter, "freeconvert")
	checks := make([]Check, 0, 8)

	checks = append(checks, credentialCheck("credential:assemblyai", cfg.AssemblyAIKey, true))
	checks = append(checks, credentialCheck("credential:freeconvert", cfg.FreeConvertKey, !local))

	dep := ytdlp.DependencyStatus()
	checks = append(checks, Check{
		Name:    "dependency:yt-dlp",
		OK:      dep.YTDLPFound,
		Message: dependencyMessage(dep.YTDLPFound, dep.YTDLPPath, "yt-dlp"),
	})
	ffmpegMsg := dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, "ffmpeg")
	if !local && !dep.FFmpegFound {
		ffmpegMsg += " (not required with the freeconvert converter)"
	}
	checks = append(checks, Check{
		Name:    "dependency:ffmpeg",
		OK:      dep.FFmpegFound || !local,
		Message: ffmpegMsg,
	})

	outOK, outMsg := ensureWritableDir(cfg.OutDir)
	checks = append(checks, Check{Name: "directory:out", OK: outOK, Message: outMsg})
	tempOK, tempMsg := ensureWritableDir(cfg.TempDir)
	checks = append(checks, Check{Name: "directory:temp", OK: tempOK, Message: tempMsg})

	if opts.CheckAPI {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		checks = append(checks, pingCheck(ctx, "api:assemblyai", opts.Transcriber, timeout))
		if !local {
			checks = append(checks, pingCheck(ctx, "api:freeconvert", opts.Converter, timeout))
		}
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return Result{OK: ok, Checks: checks}
}

func credentialCheck(name, value string, required bool) Check {
	switch {
	case strings.TrimSpace(value) != "":
		return Check{Name: name, OK: true, Message: "configured"}
	case required:
		return Check{Name: name, OK: false, Message: "missing"}
	default:
		return Check{Name: name, OK: true, Message: "not configured (not required)"}
	}
}

func pingCheck(ctx context.Context, name string, p Pinger, timeout time.Duration) Check {
	if p == nil {
		return Check{Name: name, OK: false, Message: "no client configured"}
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(pctx); err != nil {
		return Check{Name: name, OK: false, Message: err.Error()}
	}
	return Check{Name: name, OK: true, Message: "reachable"}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "solotranscribe-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
