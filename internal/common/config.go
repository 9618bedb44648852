package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Portal      PortalConfig    `toml:"portal"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	LLM         LLMConfig       `toml:"llm"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	Embeddings  EmbeddingConfig `toml:"embeddings"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// PortalConfig contains credentials and browser settings for the bidding portal
type PortalConfig struct {
	BaseURL      string `toml:"base_url" validate:"required,url"`
	LoginPath    string `toml:"login_path"`    // Login form path (default: "/users/login")
	HomePath     string `toml:"home_path"`     // Authenticated landing path used as session probe (default: "/users/home")
	Email        string `toml:"email" validate:"required"`
	Password     string `toml:"password" validate:"required"`
	UserAgent    string `toml:"user_agent"`    // Fixed UA; rotating agents trips the portal's new-device check
	Headless     bool   `toml:"headless"`      // Run Chrome headless (default: true)
	DebugDir     string `toml:"debug_dir"`     // Directory for failure screenshots/HTML snapshots
	DebugCapture bool   `toml:"debug_capture"` // Capture diagnostics on auth/crawl failure
}

// CrawlerConfig contains search, pagination, and download settings
type CrawlerConfig struct {
	MaxPages          int           `toml:"max_pages"`          // Safety cap on pagination (default: 50)
	NavigationTimeout time.Duration `toml:"navigation_timeout"` // Page navigation timeout
	DownloadTimeout   time.Duration `toml:"download_timeout"`   // Per-document download timeout (shorter than navigation)
	RequestDelay      time.Duration `toml:"request_delay"`      // Minimum delay between requests to same domain
	RandomDelay       time.Duration `toml:"random_delay"`       // Random delay jitter to add
	MaxRetries        int           `toml:"max_retries"`        // Retry attempts per navigation/download
	LoginRetries      int           `toml:"login_retries"`      // Retry attempts for the auth flow
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude" (default: "gemini")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // Model for extraction (default: "gemini-2.5-flash")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.1 for extraction)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // Model for extraction (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.1 for extraction)
}

// EmbeddingConfig contains embedding model configuration
type EmbeddingConfig struct {
	Model      string `toml:"model"`      // Embedding model identifier (default: "gemini-embedding-001")
	Dimensions int    `toml:"dimensions"` // Output dimensionality (default: 768)
}

// PipelineConfig contains extraction pipeline settings
type PipelineConfig struct {
	RunTimeout      time.Duration `toml:"run_timeout"`       // Run-level deadline; in-flight case finishes, run logs "timeout"
	StageRetries    int           `toml:"stage_retries"`     // Network retry attempts per extraction stage
	MaxInputRunes   int           `toml:"max_input_runes"`   // Concatenated document budget before truncation
	OperatingRanks  []string      `toml:"operating_ranks"`   // Qualification ranks the operating firm holds
	SearchCondition []string      `toml:"search_conditions"` // Default search conditions when none given on CLI
}

// SchedulerConfig contains cron scheduling configuration
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron expression (default: "0 0 6 * * *")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in bidscout.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Portal: PortalConfig{
			LoginPath: "/users/login",
			HomePath:  "/users/home",
			// Fixed desktop UA; the portal flags unfamiliar fingerprints as new devices
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headless:     true,
			DebugDir:     "./logs/debug",
			DebugCapture: true,
		},
		Crawler: CrawlerConfig{
			MaxPages:          50,
			NavigationTimeout: 30 * time.Second,
			DownloadTimeout:   20 * time.Second,
			RequestDelay:      1 * time.Second,
			RandomDelay:       500 * time.Millisecond,
			MaxRetries:        3,
			LoginRetries:      3,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.5-flash",
			Timeout:     "5m",
			Temperature: 0.1,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.1,
		},
		Embeddings: EmbeddingConfig{
			Model:      "gemini-embedding-001",
			Dimensions: 768,
		},
		Pipeline: PipelineConfig{
			RunTimeout:     2 * time.Hour,
			StageRetries:   3,
			MaxInputRunes:  30000,
			OperatingRanks: []string{"D"},
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 0 6 * * *",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// Validate checks required fields once flags and env have been applied.
// Portal credentials are only required when a crawl will actually run.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c.Portal); err != nil {
		return fmt.Errorf("invalid portal configuration: %w", err)
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be greater than 0, got %d", c.Crawler.MaxPages)
	}
	if c.Pipeline.MaxInputRunes <= 0 {
		return fmt.Errorf("pipeline.max_input_runes must be greater than 0, got %d", c.Pipeline.MaxInputRunes)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BIDSCOUT_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if badgerPath := os.Getenv("BIDSCOUT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("BIDSCOUT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("BIDSCOUT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if baseURL := os.Getenv("BIDSCOUT_PORTAL_BASE_URL"); baseURL != "" {
		config.Portal.BaseURL = baseURL
	}
	if email := os.Getenv("BIDSCOUT_PORTAL_EMAIL"); email != "" {
		config.Portal.Email = email
	}
	if password := os.Getenv("BIDSCOUT_PORTAL_PASSWORD"); password != "" {
		config.Portal.Password = password
	}
	if headless := os.Getenv("BIDSCOUT_PORTAL_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Portal.Headless = h
		}
	}

	if maxPages := os.Getenv("BIDSCOUT_CRAWLER_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Crawler.MaxPages = mp
		}
	}

	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if provider := os.Getenv("BIDSCOUT_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	if timeout := os.Getenv("BIDSCOUT_RUN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Pipeline.RunTimeout = d
		}
	}
}
