package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile = "solotranscribe.toml"
	DefaultEnvFile    = ".env"

	DefaultOutDir                      = "./out"
	DefaultTempDir                     = "./temp"
	DefaultBudgetCap                   = 20.0
	DefaultRetryLimit                  = 3
	DefaultConverter                   = "ffmpeg"
	DefaultMaxConcurrentDownloads      = 3
	DefaultMaxConcurrentTranscriptions = 2
	DefaultLogLevel                    = "info"
	DefaultPollInterval                = 15 * time.Second
	DefaultPollTimeout                 = 30 * time.Minute
)

var converters = map[string]bool{"ffmpeg": true, "freeconvert": true}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Config is built once at startup and passed to every component that needs
// it.
type Config struct {
	AssemblyAIKey  string `json:"assemblyai_api_key"`
	FreeConvertKey string `json:"freeconvert_api_key"`

	OutDir     string  `json:"out_dir"`
	TempDir    string  `json:"temp_dir"`
	BudgetCap  float64 `json:"cap_budget_usd"`
	RetryLimit int     `json:"retry_limit"`
	DeleteTemp bool    `json:"delete_temp_on_success"`
	Summarize  bool    `json:"enable_summary"`
	Converter  string  `json:"converter"`

	MaxConcurrentDownloads      int `json:"max_concurrent_downloads"`
	MaxConcurrentTranscriptions int `json:"max_concurrent_transcriptions"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file,omitempty"`

	PollInterval time.Duration `json:"poll_interval"`
	PollTimeout  time.Duration `json:"poll_timeout"`

	YTDLPCookies            string `json:"ytdlp_cookies,omitempty"`
	YTDLPCookiesFromBrowser string `json:"ytdlp_cookies_from_browser,omitempty"`
	YTDLPProxy              string `json:"ytdlp_proxy,omitempty"`

	// Sources lists the layers that contributed values, in order.
	Sources []string `json:"sources"`
}

// fileConfig mirrors Config for TOML decoding. Pointers distinguish unset
// keys from zero values.
type fileConfig struct {
	AssemblyAIKey               *string  `toml:"assemblyai_api_key"`
	FreeConvertKey              *string  `toml:"freeconvert_api_key"`
	OutDir                      *string  `toml:"out_dir"`
	TempDir                     *string  `toml:"temp_dir"`
	BudgetCap                   *float64 `toml:"cap_budget_usd"`
	RetryLimit                  *int     `toml:"retry_limit"`
	DeleteTemp                  *bool    `toml:"delete_temp_on_success"`
	Summarize                   *bool    `toml:"enable_summary"`
	Converter                   *string  `toml:"converter"`
	MaxConcurrentDownloads      *int     `toml:"max_concurrent_downloads"`
	MaxConcurrentTranscriptions *int     `toml:"max_concurrent_transcriptions"`
	LogLevel                    *string  `toml:"log_level"`
	LogFile                     *string  `toml:"log_file"`
	PollInterval                *string  `toml:"poll_interval"`
	PollTimeout                 *string  `toml:"poll_timeout"`
	YTDLPCookies                *string  `toml:"ytdlp_cookies"`
	YTDLPCookiesFromBrowser     *string  `toml:"ytdlp_cookies_from_browser"`
	YTDLPProxy                  *string  `toml:"ytdlp_proxy"`
}

type Options struct {
	// ConfigPath is an explicit TOML file; it must exist. When empty,
	// DefaultConfigFile is read if present.
	ConfigPath string
	// EnvFile defaults to DefaultEnvFile; a missing file is ignored.
	EnvFile string
	// Lookup replaces os.LookupEnv, mainly for tests.
	Lookup func(string) (string, bool)
}

func Defaults() Config {
	return Config{
		OutDir:                      DefaultOutDir,
		TempDir:                     DefaultTempDir,
		BudgetCap:                   DefaultBudgetCap,
		RetryLimit:                  DefaultRetryLimit,
		DeleteTemp:                  true,
		Converter:                   DefaultConverter,
		MaxConcurrentDownloads:      DefaultMaxConcurrentDownloads,
		MaxConcurrentTranscriptions: DefaultMaxConcurrentTranscriptions,
		LogLevel:                    DefaultLogLevel,
		PollInterval:                DefaultPollInterval,
		PollTimeout:                 DefaultPollTimeout,
		Sources:                     []string{"defaults"},
	}
}

// Load layers defaults, the TOML file, the .env file and the process
// environment, in that order. Values in .env never override variables that
// are already set in the environment. CLI flags are applied by the caller.
func Load(opts Options) (Config, error) {
	cfg := Defaults()

	if err := cfg.applyFile(opts.ConfigPath); err != nil {
		return cfg, err
	}

	envFile := strings.TrimSpace(opts.EnvFile)
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	switch {
	case err == nil:
		cfg.Sources = append(cfg.Sources, envFile)
	case errors.Is(err, os.ErrNotExist):
		dotenv = map[string]string{}
	default:
		return cfg, fmt.Errorf("read env file %s: %w", envFile, err)
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(get); err != nil {
		return cfg, err
	}
	cfg.Sources = append(cfg.Sources, "env")
	return cfg, nil
}

func (c *Config) applyFile(explicit string) error {
	path := strings.TrimSpace(explicit)
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return nil
		}
		path = DefaultConfigFile
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	setString(&c.AssemblyAIKey, fc.AssemblyAIKey)
	setString(&c.FreeConvertKey, fc.FreeConvertKey)
	setString(&c.OutDir, fc.OutDir)
	setString(&c.TempDir, fc.TempDir)
	setString(&c.Converter, fc.Converter)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFile, fc.LogFile)
	setString(&c.YTDLPCookies, fc.YTDLPCookies)
	setString(&c.YTDLPCookiesFromBrowser, fc.YTDLPCookiesFromBrowser)
	setString(&c.YTDLPProxy, fc.YTDLPProxy)
	if fc.BudgetCap != nil {
		c.BudgetCap = *fc.BudgetCap
	}
	if fc.RetryLimit != nil {
		c.RetryLimit = *fc.RetryLimit
	}
	if fc.DeleteTemp != nil {
		c.DeleteTemp = *fc.DeleteTemp
	}
	if fc.Summarize != nil {
		c.Summarize = *fc.Summarize
	}
	if fc.MaxConcurrentDownloads != nil {
		c.MaxConcurrentDownloads = *fc.MaxConcurrentDownloads
	}
	if fc.MaxConcurrentTranscriptions != nil {
		c.MaxConcurrentTranscriptions = *fc.MaxConcurrentTranscriptions
	}

	var problems []string
	if fc.PollInterval != nil {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			problems = append(problems, "poll_interval: "+err.Error())
		}
		c.PollInterval = d
	}
	if fc.PollTimeout != nil {
		d, err := time.ParseDuration(*fc.PollTimeout)
		if err != nil {
			problems = append(problems, "poll_timeout: "+err.Error())
		}
		c.PollTimeout = d
	}
	if len(problems) > 0 {
		return fmt.Errorf("config file %s: %s", path, strings.Join(problems, "; "))
	}
	c.Sources = append(c.Sources, path)
	return nil
}

func (c *Config) applyEnv(get func(string) (string, bool)) error {
	var problems []string
	str := func(key string, dst *string) {
		if v, ok := get(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := get(key); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s=%q is not a number", key, v))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := get(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s=%q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := get(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s=%q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s=%q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	str("ASSEMBLYAI_API_KEY", &c.AssemblyAIKey)
	str("FREECONVERT_API_KEY", &c.FreeConvertKey)
	str("OUT_DIR", &c.OutDir)
	str("TEMP_DIR", &c.TempDir)
	float("CAP_BUDGET_USD", &c.BudgetCap)
	integer("RETRY_LIMIT", &c.RetryLimit)
	boolean("DELETE_TEMP_ON_SUCCESS", &c.DeleteTemp)
	boolean("ENABLE_SUMMARY", &c.Summarize)
	str("CONVERTER", &c.Converter)
	integer("MAX_CONCURRENT_DOWNLOADS", &c.MaxConcurrentDownloads)
	integer("MAX_CONCURRENT_TRANSCRIPTIONS", &c.MaxConcurrentTranscriptions)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)
	duration("POLL_INTERVAL", &c.PollInterval)
	duration("POLL_TIMEOUT", &c.PollTimeout)
	str("YTDLP_COOKIES", &c.YTDLPCookies)
	str("YTDLP_COOKIES_FROM_BROWSER", &c.YTDLPCookiesFromBrowser)
	str("YTDLP_PROXY", &c.YTDLPProxy)

	if len(problems) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate reports every invalid setting at once. Credentials are checked
// separately by RequireCredentials since read-only commands do not need
// them.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.OutDir) == "" {
		problems = append(problems, "output directory must not be empty")
	}
	if strings.TrimSpace(c.TempDir) == "" {
		problems = append(problems, "temp directory must not be empty")
	}
	if c.BudgetCap <= 0 {
		problems = append(problems, fmt.Sprintf("budget cap must be positive, got %v", c.BudgetCap))
	}
	if c.RetryLimit < 0 {
		problems = append(problems, fmt.Sprintf("retry limit must not be negative, got %d", c.RetryLimit))
	}
	if !converters[strings.ToLower(c.Converter)] {
		problems = append(problems, fmt.Sprintf("unknown converter %q (use ffmpeg or freeconvert)", c.Converter))
	}
	if c.MaxConcurrentDownloads < 1 {
		problems = append(problems, "max concurrent downloads must be at least 1")
	}
	if c.MaxConcurrentTranscriptions < 1 {
		problems = append(problems, "max concurrent transcriptions must be at least 1")
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.LogLevel))
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	if c.PollTimeout < c.PollInterval {
		problems = append(problems, "poll timeout must not be shorter than the poll interval")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}

// RequireCredentials checks the API keys needed to process jobs.
func (c Config) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.AssemblyAIKey) == "" {
		missing = append(missing, "ASSEMBLYAI_API_KEY")
	}
	if strings.EqualFold(c.Converter, "freeconvert") && strings.TrimSpace(c.FreeConvertKey) == "" {
		missing = append(missing, "FREECONVERT_API_KEY")
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	out.AssemblyAIKey = mask(c.AssemblyAIKey)
	out.FreeConvertKey = mask(c.FreeConvertKey)
	out.YTDLPProxy = maskProxy(c.YTDLPProxy)
	out.Sources = append([]string(nil), c.Sources...)
	return out
}

func mask(secret string) string {
	s := strings.TrimSpace(secret)
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// maskProxy hides credentials embedded in a proxy URL.
func maskProxy(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "****" + raw[at:]
}

func setString(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}
