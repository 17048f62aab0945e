package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ───────── Defaults ─────────

const (
	defaultBaseURL     = "https://api.meetup.com"
	defaultLat         = "32.955294"
	defaultLon         = "-117.100140"
	defaultRadiusMiles = 30
	defaultPageSize    = 200 // server-side maximum per response
	defaultAttempts    = 3
	defaultRetryDelay  = 10 * time.Second
	defaultResetMargin = 100 * time.Millisecond
	defaultTimeWindow  = ",1m" // past limited server-side to 1 month; cap upcoming at 1 month too
	defaultOut         = "events.csv"
	defaultHTTPTimeout = 20 * time.Second
)

// ───────── Config ─────────

type config struct {
	apiKey  string
	baseURL string

	lat         string
	lon         string
	radiusMiles int

	pageSize    int
	attempts    int
	retryDelay  time.Duration
	resetMargin time.Duration
	timeWindow  string
	httpTimeout time.Duration

	out     string
	adapter string // meetup|mock

	metricsAddr string
	userAgent   string
}

// fileConfig mirrors config for the optional YAML file. Durations are
// yaml.v2 integers (nanoseconds), matching how the rest of our jobs encode
// them.
type fileConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Search  struct {
		Lat         string `yaml:"lat"`
		Lon         string `yaml:"lon"`
		RadiusMiles int    `yaml:"radius_miles"`
	} `yaml:"search"`
	PageSize int `yaml:"page_size"`
	Retry    struct {
		Attempts int           `yaml:"attempts"`
		Delay    time.Duration `yaml:"delay"`
	} `yaml:"retry"`
	ResetMargin time.Duration `yaml:"ratelimit_margin"`
	TimeWindow  string        `yaml:"time_window"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	Out         string        `yaml:"out"`
	Adapter     string        `yaml:"adapter"`
	MetricsAddr string        `yaml:"metrics_addr"`
	UserAgent   string        `yaml:"user_agent"`
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// configPathFromArgs pre-scans the arguments for -config so the YAML file can
// seed flag defaults before flag parsing runs.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		for _, prefix := range []string{"-config=", "--config="} {
			if strings.HasPrefix(a, prefix) {
				return strings.TrimPrefix(a, prefix)
			}
		}
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// loadConfig resolves configuration with precedence flag > env > yaml file >
// built-in default. The file path comes from -config or the CONFIG env var
// and is optional.
func loadConfig(args []string) (config, error) {
	path := configPathFromArgs(args)
	if path == "" {
		path = envString("CONFIG", "")
	}

	var fc fileConfig
	if path != "" {
		var err error
		fc, err = loadFileConfig(path)
		if err != nil {
			return config{}, err
		}
	}

	base := config{
		apiKey:      fc.APIKey,
		baseURL:     fileOr(fc.BaseURL, defaultBaseURL),
		lat:         fileOr(fc.Search.Lat, defaultLat),
		lon:         fileOr(fc.Search.Lon, defaultLon),
		radiusMiles: fileOrInt(fc.Search.RadiusMiles, defaultRadiusMiles),
		pageSize:    fileOrInt(fc.PageSize, defaultPageSize),
		attempts:    fileOrInt(fc.Retry.Attempts, defaultAttempts),
		retryDelay:  fileOrDur(fc.Retry.Delay, defaultRetryDelay),
		resetMargin: fileOrDur(fc.ResetMargin, defaultResetMargin),
		timeWindow:  fileOr(fc.TimeWindow, defaultTimeWindow),
		httpTimeout: fileOrDur(fc.HTTPTimeout, defaultHTTPTimeout),
		out:         fileOr(fc.Out, defaultOut),
		adapter:     fileOr(fc.Adapter, "meetup"),
		metricsAddr: fc.MetricsAddr,
		userAgent:   fileOr(fc.UserAgent, "meetup-data-mining/1.0"),
	}

	var cfg config
	fs := flag.NewFlagSet("meetup-data-mining", flag.ContinueOnError)
	fs.String("config", path, "Path to optional YAML config file. Env: CONFIG")

	fs.StringVar(&cfg.apiKey, "api-key", envString("MEETUP_API_KEY", base.apiKey), "Meetup API key (query-string auth). Env: MEETUP_API_KEY")
	fs.StringVar(&cfg.baseURL, "base-url", envString("MEETUP_BASE_URL", base.baseURL), "API base URL. Env: MEETUP_BASE_URL")
	fs.StringVar(&cfg.lat, "lat", envString("SEARCH_LAT", base.lat), "Search latitude. Env: SEARCH_LAT")
	fs.StringVar(&cfg.lon, "lon", envString("SEARCH_LON", base.lon), "Search longitude. Env: SEARCH_LON")
	fs.IntVar(&cfg.radiusMiles, "radius", envInt("RADIUS_MILES", base.radiusMiles), "Search radius in miles. Env: RADIUS_MILES")
	fs.IntVar(&cfg.pageSize, "page-size", envInt("PAGE_SIZE", base.pageSize), "Events per page request (server max 200). Env: PAGE_SIZE")
	fs.IntVar(&cfg.attempts, "attempts", envInt("RETRY_ATTEMPTS", base.attempts), "Attempts per page request before giving up. Env: RETRY_ATTEMPTS")
	fs.DurationVar(&cfg.retryDelay, "retry-delay", envDuration("RETRY_DELAY", base.retryDelay), "Delay before retrying after a 500. Env: RETRY_DELAY")
	fs.DurationVar(&cfg.resetMargin, "reset-margin", envDuration("RATE_RESET_MARGIN", base.resetMargin), "Safety margin added to rate-limit reset waits. Env: RATE_RESET_MARGIN")
	fs.StringVar(&cfg.timeWindow, "time-window", envString("TIME_WINDOW", base.timeWindow), "Events time filter passed to the API. Env: TIME_WINDOW")
	fs.DurationVar(&cfg.httpTimeout, "http-timeout", envDuration("HTTP_TIMEOUT", base.httpTimeout), "Per-request HTTP timeout. Env: HTTP_TIMEOUT")
	fs.StringVar(&cfg.out, "out", envString("OUT_CSV", base.out), "Output CSV path. Env: OUT_CSV")
	fs.StringVar(&cfg.adapter, "adapter", envString("EVENTS_ADAPTER", base.adapter), "Adapter: meetup|mock. Env: EVENTS_ADAPTER")
	fs.StringVar(&cfg.metricsAddr, "metrics", envString("METRICS_ADDR", base.metricsAddr), "Serve /metrics and /debug/pprof/* on this address, e.g. :6060. Env: METRICS_ADDR")
	fs.StringVar(&cfg.userAgent, "user-agent", envString("HTTP_USER_AGENT", base.userAgent), "HTTP User-Agent. Env: HTTP_USER_AGENT")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.pageSize <= 0 {
		cfg.pageSize = defaultPageSize
	}
	if cfg.attempts <= 0 {
		cfg.attempts = 1
	}
	if cfg.out == "" {
		return config{}, fmt.Errorf("output path must not be empty")
	}
	return cfg, nil
}

func fileOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func fileOrInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func fileOrDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
