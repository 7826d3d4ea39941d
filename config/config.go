package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Gate      GateConfig
	Retry     RetryConfig
	Validator ValidatorConfig
	Cleaner   CleanerConfig
	Scheduler SchedulerConfig
	Output    OutputConfig
	Media     MediaConfig
	LLM       LLMConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the connection to the shared browser.
type BrowserConfig struct {
	// DebugURL is the remote debugging endpoint of the local browser.
	// Accepts a bare port ("9333"), "host:port" or a ws:// URL.
	DebugURL string // default: "9333"

	// LaunchFallback launches a private browser when DebugURL is unreachable.
	LaunchFallback bool // default: true

	// Headless applies to launched browsers only.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is used by launched browsers and by the HTTP fetcher.
	Proxy string

	// Stealth injects the evasion script into every new document.
	Stealth bool // default: true

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true

	// BlockedResourceTypes lists resource types to block for article tasks.
	// Video tasks never block Media.
	// default: ["Image", "Font"]
	BlockedResourceTypes []string

	// NavigationTimeout bounds a single navigate call.
	NavigationTimeout time.Duration // default: 30s

	// ActionTimeout bounds a single planner action.
	ActionTimeout time.Duration // default: 10s
}

// GateConfig controls the Session Gate and browser handle health.
type GateConfig struct {
	// Capacity is the number of tasks that may hold the browser at once.
	Capacity int // default: 1

	// RetireErrScore retires a session handle whose error score reaches it.
	RetireErrScore float64 // default: 3

	// RetireUses retires a session handle after this many holds.
	RetireUses int // default: 50

	// RetireAge retires a session handle older than this.
	RetireAge time.Duration // default: 50m
}

// RetryConfig controls the Retry/Fallback Controller.
type RetryConfig struct {
	ArticleMaxAttempts int // default: 2
	VideoMaxAttempts   int // default: 3

	// Backoff is the wait before attempt i+1; the last entry repeats.
	Backoff []time.Duration // default: [2s, 5s, 10s]

	// SettleBase is the DOM settle wait of the first attempt; it grows
	// linearly with the attempt number.
	SettleBase time.Duration // default: 500ms
}

// ValidatorConfig controls content-quality rules.
type ValidatorConfig struct {
	// MinLength is the minimum article length in characters.
	MinLength int // default: 300

	// ErrorMarkers are substrings that mark a blocked or error page.
	ErrorMarkers []string

	// MarkerWindow limits the marker scan to the first N characters.
	// 0 scans the whole content.
	MarkerWindow int // default: 2000

	// MinStreamBytes rejects streams whose known size is smaller.
	MinStreamBytes int64 // default: 100KB

	// BlockPageDistance is the simhash distance under which content is
	// considered a known block page.
	BlockPageDistance int // default: 3
}

// CleanerConfig controls HTML to markdown conversion.
type CleanerConfig struct {
	// Mode picks main-content extraction for rendered pages:
	// "auto", "readability" or "pruning". Snapshots always use readability.
	Mode string // default: "auto"
}

// SchedulerConfig controls batch fan-out.
type SchedulerConfig struct {
	// Concurrency bounds task parallelism (not browser parallelism).
	Concurrency int // default: 3

	// StartsPerSecond paces task starts; 0 disables pacing.
	StartsPerSecond float64 // default: 0

	// TaskTimeout bounds one task including gate waiting.
	TaskTimeout time.Duration // default: 10m
}

// OutputConfig controls where retrieved items are written.
type OutputConfig struct {
	ArticlesDir string // default: "articles"
	VideosDir   string // default: "videos"
}

// MediaConfig controls stream download and muxing.
type MediaConfig struct {
	FFmpegBin       string        // default: "ffmpeg"
	DownloadTimeout time.Duration // default: 5m
}

// LLMConfig configures the OpenAI-compatible model used by the planner
// and the downstream pipelines.
type LLMConfig struct {
	BaseURL string // default: "https://api.openai.com/v1"
	APIKey  string
	Model   string // default: "gpt-4o-mini"

	// Planner enables the LLM planner for video interactions.
	Planner bool // default: false
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// WebhookConfig controls batch completion notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultErrorMarkers are the blocked-page indicators checked by default.
var DefaultErrorMarkers = []string{
	"Access denied",
	"That’s an error.",
	"The requested URL was not found",
	"Just a moment...",
	"Enable JavaScript and cookies to continue",
	"Subscribe to continue reading",
	"Create an account to read the full story",
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("RETRIEVER_HOST", "127.0.0.1"),
			Port: envIntOr("RETRIEVER_PORT", 8080),
			Mode: envOr("RETRIEVER_MODE", "release"),
		},
		Browser: BrowserConfig{
			DebugURL:       envOr("RETRIEVER_DEBUG_URL", "9333"),
			LaunchFallback: envBoolOr("RETRIEVER_LAUNCH_FALLBACK", true),
			Headless:       envBoolOr("RETRIEVER_HEADLESS", true),
			NoSandbox:      envBoolOr("RETRIEVER_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("RETRIEVER_BROWSER_BIN"),
			Proxy:          os.Getenv("RETRIEVER_PROXY"),
			Stealth:        envBoolOr("RETRIEVER_STEALTH", true),
			BlockAds:       envBoolOr("RETRIEVER_BLOCK_ADS", true),
			BlockedResourceTypes: envSliceOr("RETRIEVER_BLOCKED_RESOURCES", []string{
				"Image", "Font",
			}),
			NavigationTimeout: envDurationOr("RETRIEVER_NAV_TIMEOUT", 30*time.Second),
			ActionTimeout:     envDurationOr("RETRIEVER_ACTION_TIMEOUT", 10*time.Second),
		},
		Gate: GateConfig{
			Capacity:       envIntOr("RETRIEVER_GATE_CAPACITY", 1),
			RetireErrScore: envFloatOr("RETRIEVER_RETIRE_ERR_SCORE", 3.0),
			RetireUses:     envIntOr("RETRIEVER_RETIRE_USES", 50),
			RetireAge:      envDurationOr("RETRIEVER_RETIRE_AGE", 50*time.Minute),
		},
		Retry: RetryConfig{
			ArticleMaxAttempts: envIntOr("RETRIEVER_ARTICLE_ATTEMPTS", 2),
			VideoMaxAttempts:   envIntOr("RETRIEVER_VIDEO_ATTEMPTS", 3),
			Backoff:            envDurationSliceOr("RETRIEVER_BACKOFF", []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}),
			SettleBase:         envDurationOr("RETRIEVER_SETTLE_BASE", 500*time.Millisecond),
		},
		Validator: ValidatorConfig{
			MinLength:         envIntOr("RETRIEVER_MIN_LENGTH", 300),
			ErrorMarkers:      envSliceOr("RETRIEVER_ERROR_MARKERS", DefaultErrorMarkers),
			MarkerWindow:      envIntOr("RETRIEVER_MARKER_WINDOW", 2000),
			MinStreamBytes:    int64(envIntOr("RETRIEVER_MIN_STREAM_BYTES", 100*1024)),
			BlockPageDistance: envIntOr("RETRIEVER_BLOCK_PAGE_DISTANCE", 3),
		},
		Cleaner: CleanerConfig{
			Mode: envOr("RETRIEVER_CLEAN_MODE", "auto"),
		},
		Scheduler: SchedulerConfig{
			Concurrency:     envIntOr("RETRIEVER_CONCURRENCY", 3),
			StartsPerSecond: envFloatOr("RETRIEVER_STARTS_PER_SECOND", 0),
			TaskTimeout:     envDurationOr("RETRIEVER_TASK_TIMEOUT", 10*time.Minute),
		},
		Output: OutputConfig{
			ArticlesDir: envOr("RETRIEVER_ARTICLES_DIR", "articles"),
			VideosDir:   envOr("RETRIEVER_VIDEOS_DIR", "videos"),
		},
		Media: MediaConfig{
			FFmpegBin:       envOr("RETRIEVER_FFMPEG_BIN", "ffmpeg"),
			DownloadTimeout: envDurationOr("RETRIEVER_DOWNLOAD_TIMEOUT", 5*time.Minute),
		},
		LLM: LLMConfig{
			BaseURL: envOr("RETRIEVER_LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("RETRIEVER_LLM_API_KEY"),
			Model:   envOr("RETRIEVER_LLM_MODEL", "gpt-4o-mini"),
			Planner: envBoolOr("RETRIEVER_LLM_PLANNER", false),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("RETRIEVER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("RETRIEVER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("RETRIEVER_RATE_RPS", 5.0),
			Burst:             envIntOr("RETRIEVER_RATE_BURST", 10),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("RETRIEVER_WEBHOOK_URL"),
			Secret: os.Getenv("RETRIEVER_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("RETRIEVER_LOG_LEVEL", "info"),
			Format: envOr("RETRIEVER_LOG_FORMAT", "json"),
		},
	}
}

// MaxAttempts returns the attempt bound for a task kind.
func (r RetryConfig) MaxAttempts(kind string) int {
	n := r.ArticleMaxAttempts
	if kind == "video" {
		n = r.VideoMaxAttempts
	}
	if n < 1 {
		n = 1
	}
	return n
}

// BackoffFor returns the wait before the attempt following attempt n (1-based).
func (r RetryConfig) BackoffFor(n int) time.Duration {
	if len(r.Backoff) == 0 || n < 1 {
		return 0
	}
	if n > len(r.Backoff) {
		return r.Backoff[len(r.Backoff)-1]
	}
	return r.Backoff[n-1]
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
