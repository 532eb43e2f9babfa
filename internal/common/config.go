package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	Flow        FlowConfig      `toml:"flow"`
	Render      RenderConfig    `toml:"render"`
	Janitor     JanitorConfig   `toml:"janitor"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger      BadgerConfig `toml:"badger"`
	ProfilesDir string       `toml:"profiles_dir" validate:"required"` // Persisted auth-state snapshots, one subdir per profile
	SessionsDir string       `toml:"sessions_dir" validate:"required"` // Task-scoped session workspaces, purged by the janitor
	OutputDir   string       `toml:"output_dir" validate:"required"`   // Rendered artifacts, scoped by project/scene
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      time.Duration `toml:"poll_interval"` // How often workers poll for pending tasks
	Concurrency       int           `toml:"concurrency" validate:"gt=0"`
	VisibilityTimeout time.Duration `toml:"visibility_timeout"` // Lease duration before a claimed task is redelivered
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// BrowserConfig controls how chromedp contexts are launched
type BrowserConfig struct {
	Headless       bool          `toml:"headless"`
	UserAgent      string        `toml:"user_agent"`
	WindowWidth    int           `toml:"window_width"`
	WindowHeight   int           `toml:"window_height"`
	NoSandbox      bool          `toml:"no_sandbox"`
	StartupTimeout time.Duration `toml:"startup_timeout"` // Budget for the about:blank smoke test on context creation
}

// FlowConfig holds everything specific to the target generative-video UI.
// Selectors drift with the target UI and are deliberately configuration,
// not code.
type FlowConfig struct {
	URL                 string          `toml:"url" validate:"required,url"`
	NavigationTimeout   time.Duration   `toml:"navigation_timeout"`
	CompletionTimeout   time.Duration   `toml:"completion_timeout"`   // Total budget for AwaitCompletion
	PollInterval        time.Duration   `toml:"poll_interval"`        // Completion poll cadence
	TriggerGracePeriod  time.Duration   `toml:"trigger_grace_period"` // Error signals inside this window after trigger are ignored
	ErrorSettleDelay    time.Duration   `toml:"error_settle_delay"`   // Candidate errors must survive this re-check delay
	CreditSettleWindow  time.Duration   `toml:"credit_settle_window"` // Wait for async credit/quota UI before error checks
	CreditReloadRetries int             `toml:"credit_reload_retries"`
	LoginWaitTimeout    time.Duration   `toml:"login_wait_timeout"` // Interactive-mode wait for out-of-band login
	NavRetries          int             `toml:"nav_retries" validate:"gt=0"`
	MinAuthCookies      int             `toml:"min_auth_cookies" validate:"gte=0"`
	MinErrorLength      int             `toml:"min_error_length" validate:"gt=0"`
	Selectors           SelectorsConfig `toml:"selectors"`
}

// SelectorsConfig is the swappable selector knowledge for the target UI.
// Each field is a comma-separated fallback chain, most specific first.
type SelectorsConfig struct {
	PromptInput      string `toml:"prompt_input"`
	GenerateButton   string `toml:"generate_button"`
	NewProjectButton string `toml:"new_project_button"`
	HomeAffordance   string `toml:"home_affordance"`
	GalleryIndicator string `toml:"gallery_indicator"`
	EditorIndicator  string `toml:"editor_indicator"`
	VideoElement     string `toml:"video_element"`
	DownloadButton   string `toml:"download_button"`
	ErrorDialog      string `toml:"error_dialog"`
	DialogClose      string `toml:"dialog_close"`
	LoadingIndicator string `toml:"loading_indicator"`
}

type RenderConfig struct {
	SoftBudget        time.Duration `toml:"soft_budget"`         // Graceful terminal-status write happens inside this
	HardBudget        time.Duration `toml:"hard_budget"`         // Forced termination; keep >= 2x completion timeout
	NavStabilizePause time.Duration `toml:"nav_stabilize_pause"` // Pause after page recreation before retrying
	DownloadTimeout   time.Duration `toml:"download_timeout"`
	DownloadRetries   int           `toml:"download_retries"`
}

type JanitorConfig struct {
	Enabled          bool          `toml:"enabled"`
	Schedule         string        `toml:"schedule"`          // Cron schedule format
	SessionRetention time.Duration `toml:"session_retention"` // Workspaces older than this are purged
}

type WebSocketConfig struct {
	StatusThrottle time.Duration `toml:"status_throttle"` // Min interval between broadcast status events per hub
}

// NewDefaultConfig returns configuration defaults validated against the
// live target UI. Selector chains mirror what the UI actually renders today;
// override them in the config file when the UI drifts.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/veoflow",
				ResetOnStartup: false,
			},
			ProfilesDir: "./data/profiles",
			SessionsDir: "./data/sessions",
			OutputDir:   "./output",
		},
		Queue: QueueConfig{
			PollInterval:      1 * time.Second,
			Concurrency:       2,
			VisibilityTimeout: 15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Browser: BrowserConfig{
			Headless:       true,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:    1920,
			WindowHeight:   1080,
			NoSandbox:      false,
			StartupTimeout: 30 * time.Second,
		},
		Flow: FlowConfig{
			URL:                 "https://labs.google/fx/tools/flow/",
			NavigationTimeout:   60 * time.Second,
			CompletionTimeout:   5 * time.Minute,
			PollInterval:        2 * time.Second,
			TriggerGracePeriod:  10 * time.Second,
			ErrorSettleDelay:    2 * time.Second,
			CreditSettleWindow:  10 * time.Second,
			CreditReloadRetries: 2,
			LoginWaitTimeout:    60 * time.Second,
			NavRetries:          5,
			MinAuthCookies:      1,
			MinErrorLength:      10,
			Selectors:           DefaultSelectors(),
		},
		Render: RenderConfig{
			SoftBudget:        9 * time.Minute,
			HardBudget:        10 * time.Minute,
			NavStabilizePause: 2 * time.Second,
			DownloadTimeout:   60 * time.Second,
			DownloadRetries:   3,
		},
		Janitor: JanitorConfig{
			Enabled:          true,
			Schedule:         "@every 30m",
			SessionRetention: 2 * time.Hour,
		},
		WebSocket: WebSocketConfig{
			StatusThrottle: 500 * time.Millisecond,
		},
	}
}

// DefaultSelectors returns the selector chains observed on the current
// target UI, including its localized button labels.
func DefaultSelectors() SelectorsConfig {
	return SelectorsConfig{
		PromptInput:      "textarea[placeholder*='prompt'],textarea,[contenteditable='true'],[role='textbox']",
		GenerateButton:   "button[aria-label*='Generate'],button[type='submit'],button[class*='generate'],button[class*='submit']",
		NewProjectButton: "button[aria-label*='New project'],button[aria-label*='Dự án mới'],button[class*='new'],button[class*='create']",
		HomeAffordance:   "a[href*='/tools/flow'],[aria-label*='Home'],[aria-label*='Gallery']",
		GalleryIndicator: "[class*='gallery'],[class*='thumbnail'],[class*='grid'] [class*='card'],img[alt*='project']",
		EditorIndicator:  "textarea,[contenteditable='true'],[role='textbox']",
		VideoElement:     "video",
		DownloadButton:   "a[download],[aria-label*='Download'],[aria-label*='Tải xuống'],button[class*='download']",
		ErrorDialog:      "[role='dialog'],[role='alertdialog'],[role='alert'],[aria-live='assertive']",
		DialogClose:      "button[aria-label*='Close'],button[aria-label*='Đóng'],button[class*='close']",
		LoadingIndicator: "[class*='loading'],[class*='spinner'],[aria-busy='true']",
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path loads defaults plus environment overrides.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VEOFLOW_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("VEOFLOW_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VEOFLOW_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("VEOFLOW_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("VEOFLOW_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if url := os.Getenv("VEOFLOW_FLOW_URL"); url != "" {
		config.Flow.URL = url
	}
	if headless := os.Getenv("VEOFLOW_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}
	if concurrency := os.Getenv("VEOFLOW_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			config.Queue.Concurrency = c
		}
	}
}

// ApplyFlagOverrides applies CLI flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints on the configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Render.HardBudget < c.Render.SoftBudget {
		return fmt.Errorf("invalid configuration: render hard_budget %s is below soft_budget %s", c.Render.HardBudget, c.Render.SoftBudget)
	}
	if c.Render.HardBudget < 2*c.Flow.CompletionTimeout {
		return fmt.Errorf("invalid configuration: render hard_budget %s leaves no headroom over completion_timeout %s", c.Render.HardBudget, c.Flow.CompletionTimeout)
	}
	return nil
}

// IsProduction returns true when the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
