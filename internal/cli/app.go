package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"

	"solotranscribe/internal/batch"
	"solotranscribe/internal/config"
	"solotranscribe/internal/convert"
	"solotranscribe/internal/costmodel"
	"solotranscribe/internal/logging"
	"solotranscribe/internal/output"
	"solotranscribe/internal/transcribe"
	"solotranscribe/internal/ytdlp"
)

// commonFlags are accepted by every command that reads configuration.
type commonFlags struct {
	configPath *string
	envFile    *string
	logLevel   *string
	logFile    *string
	jsonOut    *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "TOML config file (default: ./"+config.DefaultConfigFile+" if present)"),
		envFile:    fs.String("env-file", config.DefaultEnvFile, "dotenv file; never overrides the real environment"),
		logLevel:   fs.String("log-level", "", "log level override: debug|info|warn|error"),
		logFile:    fs.String("log-file", "", "also append logs to this file"),
		jsonOut:    fs.Bool("json", false, "print JSON output"),
	}
}

func (c commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigPath: strings.TrimSpace(*c.configPath),
		EnvFile:    strings.TrimSpace(*c.envFile),
	})
	if err != nil {
		return cfg, err
	}
	if v := strings.TrimSpace(*c.logLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(*c.logFile); v != "" {
		cfg.LogFile = v
	}
	return cfg, nil
}

// app holds what a command builds from its configuration.
type app struct {
	cfg    config.Config
	logger *log.Logger
	closer io.Closer
}

func newApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func (a *app) fetcher() *ytdlp.Client {
	c := ytdlp.NewClient(a.cfg.TempDir, a.logger)
	c.CookiesPath = a.cfg.YTDLPCookies
	c.CookiesFromBrowser = a.cfg.YTDLPCookiesFromBrowser
	c.ProxyURL = a.cfg.YTDLPProxy
	return c
}

func (a *app) transcriber() *transcribe.Client {
	c := transcribe.NewClient(a.cfg.AssemblyAIKey, a.logger)
	c.PollInterval = a.cfg.PollInterval
	c.PollTimeout = a.cfg.PollTimeout
	return c
}

func (a *app) converter() batch.Converter {
	if strings.EqualFold(a.cfg.Converter, costmodel.ConverterFreeConvert) {
		return convert.NewFreeConvert(a.cfg.FreeConvertKey, a.logger)
	}
	return convert.NewFFmpeg(a.logger)
}

func (a *app) costs() costmodel.Model {
	return costmodel.MustForConverter(a.cfg.Converter)
}

// orchestrator wires the real adapters. Commands that only estimate never
// call the converter or transcriber, so credentials are checked by callers
// that process jobs.
func (a *app) orchestrator(formats []string) (*batch.Orchestrator, error) {
	built, err := output.ForNames(formats)
	if err != nil {
		return nil, err
	}
	formatters := make([]batch.Formatter, 0, len(built))
	for _, f := range built {
		formatters = append(formatters, f)
	}

	fetcher := a.fetcher()
	costs := a.costs()
	runner := &batch.Runner{
		Fetcher:     fetcher,
		Converter:   a.converter(),
		Transcriber: a.transcriber(),
		Formatters:  formatters,
		Costs:       costs,
		TempDir:     a.cfg.TempDir,
		OutputDir:   a.cfg.OutDir,
		DeleteTemp:  a.cfg.DeleteTemp,
		Summarize:   a.cfg.Summarize,
		Logger:      a.logger,
	}
	return &batch.Orchestrator{
		Runner:    runner,
		Fetcher:   fetcher,
		Costs:     costs,
		OutputDir: a.cfg.OutDir,
		Logger:    a.logger,
	}, nil
}

// requireProcessing checks everything a run needs before any job starts.
func (a *app) requireProcessing() error {
	if err := a.cfg.RequireCredentials(); err != nil {
		return err
	}
	return ytdlp.CheckDependencies(!strings.EqualFold(a.cfg.Converter, costmodel.ConverterFreeConvert))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
