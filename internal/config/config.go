package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"chatrelay/pkg/types"
)

// Store backends for the message log
const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Store     *StoreConfig     `json:"store"`
	Chat      *ChatConfig      `json:"chat"`
	AI        *AIConfig        `json:"ai"`
	Logging   *LoggingConfig   `json:"logging"`
	Telemetry *TelemetryConfig `json:"telemetry"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// FUNCTIONAL DISCOVERY: BufferSize is the per-connection outbound queue; a full
// queue drops the frame for that client only
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// StoreConfig selects where the message log lives
type StoreConfig struct {
	Backend    string `json:"backend"`
	BadgerPath string `json:"badger_path"`
}

// ChatConfig tunes the real-time coordination layer
type ChatConfig struct {
	TypingExpiry time.Duration `json:"typing_expiry"`
	RateLimit    int           `json:"rate_limit"`
	RateWindow   time.Duration `json:"rate_window"`
}

// ProviderConfig is one AI backend block
type ProviderConfig struct {
	Enabled      bool          `json:"enabled"`
	APIKey       string        `json:"api_key"`
	BaseURL      string        `json:"base_url"`
	Deployment   string        `json:"deployment"`
	APIVersion   string        `json:"api_version"`
	Model        string        `json:"model"`
	MaxTokens    int           `json:"max_tokens"`
	Temperature  float64       `json:"temperature"`
	SystemPrompt string        `json:"system_prompt"`
	Timeout      time.Duration `json:"timeout"`
}

// AIConfig holds gateway-wide settings plus one block per provider
type AIConfig struct {
	DefaultProvider    types.Provider `json:"default_provider"`
	MaxContextMessages int            `json:"max_context_messages"`
	RetryAttempts      int            `json:"retry_attempts"`
	RetryDelay         time.Duration  `json:"retry_delay"`

	OpenAI      ProviderConfig `json:"openai"`
	AzureOpenAI ProviderConfig `json:"azure_openai"`
	Anthropic   ProviderConfig `json:"anthropic"`
	Mock        ProviderConfig `json:"mock"`
}

// Provider returns the block for a provider
func (a *AIConfig) Provider(provider types.Provider) ProviderConfig {
	switch provider {
	case types.ProviderOpenAI:
		return a.OpenAI
	case types.ProviderAzureOpenAI:
		return a.AzureOpenAI
	case types.ProviderAnthropic:
		return a.Anthropic
	default:
		return a.Mock
	}
}

// LoggingConfig drives the slog handler and the rotating file writer
type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// TelemetryConfig enables OpenTelemetry stdout exporters
type TelemetryConfig struct {
	Enabled        bool          `json:"enabled"`
	ServiceName    string        `json:"service_name"`
	TraceFile      string        `json:"trace_file"`
	MetricFile     string        `json:"metric_file"`
	MetricInterval time.Duration `json:"metric_interval"`
}

const defaultSystemPrompt = "You are a helpful AI assistant."

// FUNCTIONAL DISCOVERY: Production-ready defaults; provider blocks start enabled
// without keys so an unconfigured deployment falls back to the mock bot
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./chatrelay.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Store: &StoreConfig{
			Backend:    StoreSQLite,
			BadgerPath: "./chatrelay-messages",
		},
		Chat: &ChatConfig{
			TypingExpiry: 5 * time.Second,
			RateLimit:    100,
			RateWindow:   time.Minute,
		},
		AI: &AIConfig{
			DefaultProvider:    types.ProviderOpenAI,
			MaxContextMessages: 10,
			RetryAttempts:      3,
			RetryDelay:         time.Second,
			OpenAI: ProviderConfig{
				Enabled:      true,
				BaseURL:      "https://api.openai.com/v1",
				Model:        "gpt-3.5-turbo",
				MaxTokens:    1000,
				Temperature:  0.7,
				SystemPrompt: defaultSystemPrompt,
				Timeout:      60 * time.Second,
			},
			AzureOpenAI: ProviderConfig{
				Enabled:      true,
				APIVersion:   "2024-02-01",
				Model:        "gpt-3.5-turbo",
				MaxTokens:    1000,
				Temperature:  0.7,
				SystemPrompt: defaultSystemPrompt,
				Timeout:      60 * time.Second,
			},
			Anthropic: ProviderConfig{
				Enabled:     true,
				BaseURL:     "https://api.anthropic.com/v1",
				Model:       "claude-3-sonnet-20240229",
				MaxTokens:   4000,
				Temperature: 0.7,
				Timeout:     30 * time.Second,
			},
			Mock: ProviderConfig{
				Enabled:     true,
				Model:       "simple-bot-v1",
				MaxTokens:   150,
				Temperature: 0.7,
			},
		},
		Logging: &LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Telemetry: &TelemetryConfig{
			ServiceName:    "chatrelay",
			MetricInterval: 30 * time.Second,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// All problems are reported together
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil || c.Store == nil ||
		c.Chat == nil || c.AI == nil || c.Logging == nil || c.Telemetry == nil {
		return ErrMissingSection
	}

	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Database.Path != "", "database path cannot be empty")
	check(c.Database.Timeout > 0, "database timeout must be positive")

	check(c.HTTP.Port > 0 && c.HTTP.Port <= 65535, "HTTP port must be between 1 and 65535")
	check(c.HTTP.ReadTimeout > 0, "HTTP read timeout must be positive")
	check(c.HTTP.WriteTimeout > 0, "HTTP write timeout must be positive")
	check(c.HTTP.Host != "", "HTTP host cannot be empty")

	check(c.WebSocket.PingInterval > 0, "WebSocket ping interval must be positive")
	check(c.WebSocket.ReadTimeout > 0, "WebSocket read timeout must be positive")
	check(c.WebSocket.WriteTimeout > 0, "WebSocket write timeout must be positive")
	check(c.WebSocket.BufferSize > 0, "WebSocket buffer size must be positive")
	check(c.WebSocket.PingInterval < c.WebSocket.ReadTimeout, "WebSocket ping interval must be shorter than read timeout")

	check(c.Store.Backend == StoreSQLite || c.Store.Backend == StoreBadger, "store backend must be sqlite or badger")
	check(c.Store.Backend != StoreBadger || c.Store.BadgerPath != "", "badger path cannot be empty")

	check(c.Chat.TypingExpiry > 0, "typing expiry must be positive")
	check(c.Chat.RateLimit > 0, "rate limit must be positive")
	check(c.Chat.RateWindow > 0, "rate window must be positive")

	check(c.AI.DefaultProvider.IsValid(), "default AI provider is invalid")
	check(c.AI.MaxContextMessages > 0, "max context messages must be positive")
	check(c.AI.RetryAttempts > 0, "retry attempts must be positive")
	check(c.AI.RetryDelay >= 0, "retry delay cannot be negative")

	check(c.Logging.MaxSizeMB > 0, "log max size must be positive")
	check(c.Telemetry.MetricInterval > 0, "metric interval must be positive")
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// envConfig is the flat environment view of Config
// FUNCTIONAL DISCOVERY: go-env leaves untouched fields alone, so the struct is
// prefilled from the current config and only set variables override
type envConfig struct {
	DatabasePath    string        `env:"CHATRELAY_DATABASE_PATH"`
	DatabaseTimeout time.Duration `env:"CHATRELAY_DATABASE_TIMEOUT"`

	HTTPHost         string        `env:"CHATRELAY_HTTP_HOST"`
	HTTPPort         int           `env:"CHATRELAY_HTTP_PORT"`
	HTTPReadTimeout  time.Duration `env:"CHATRELAY_HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout time.Duration `env:"CHATRELAY_HTTP_WRITE_TIMEOUT"`

	WSPingInterval time.Duration `env:"CHATRELAY_WEBSOCKET_PING_INTERVAL"`
	WSReadTimeout  time.Duration `env:"CHATRELAY_WEBSOCKET_READ_TIMEOUT"`
	WSWriteTimeout time.Duration `env:"CHATRELAY_WEBSOCKET_WRITE_TIMEOUT"`
	WSBufferSize   int           `env:"CHATRELAY_WEBSOCKET_BUFFER_SIZE"`

	StoreBackend string `env:"CHATRELAY_STORE_BACKEND"`
	BadgerPath   string `env:"CHATRELAY_BADGER_PATH"`

	TypingExpiry time.Duration `env:"CHATRELAY_TYPING_EXPIRY"`
	RateLimit    int           `env:"CHATRELAY_RATE_LIMIT"`
	RateWindow   time.Duration `env:"CHATRELAY_RATE_WINDOW"`

	DefaultProvider    string        `env:"CHATRELAY_AI_DEFAULT_PROVIDER"`
	MaxContextMessages int           `env:"CHATRELAY_AI_MAX_CONTEXT_MESSAGES"`
	RetryAttempts      int           `env:"CHATRELAY_AI_RETRY_ATTEMPTS"`
	RetryDelay         time.Duration `env:"CHATRELAY_AI_RETRY_DELAY"`

	OpenAIEnabled bool   `env:"CHATRELAY_OPENAI_ENABLED"`
	OpenAIKey     string `env:"CHATRELAY_OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"CHATRELAY_OPENAI_BASE_URL"`
	OpenAIModel   string `env:"CHATRELAY_OPENAI_MODEL"`

	AzureEnabled    bool   `env:"CHATRELAY_AZURE_OPENAI_ENABLED"`
	AzureKey        string `env:"CHATRELAY_AZURE_OPENAI_API_KEY"`
	AzureEndpoint   string `env:"CHATRELAY_AZURE_OPENAI_ENDPOINT"`
	AzureDeployment string `env:"CHATRELAY_AZURE_OPENAI_DEPLOYMENT"`
	AzureAPIVersion string `env:"CHATRELAY_AZURE_OPENAI_API_VERSION"`

	AnthropicEnabled bool   `env:"CHATRELAY_ANTHROPIC_ENABLED"`
	AnthropicKey     string `env:"CHATRELAY_ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `env:"CHATRELAY_ANTHROPIC_BASE_URL"`
	AnthropicModel   string `env:"CHATRELAY_ANTHROPIC_MODEL"`

	LogLevel string `env:"CHATRELAY_LOG_LEVEL"`
	LogFile  string `env:"CHATRELAY_LOG_FILE"`

	TelemetryEnabled bool   `env:"CHATRELAY_TELEMETRY_ENABLED"`
	TraceFile        string `env:"CHATRELAY_TRACE_FILE"`
	MetricFile       string `env:"CHATRELAY_METRIC_FILE"`
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// A .env file in the working directory is loaded first when present
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	e := envConfig{
		DatabasePath:       cfg.Database.Path,
		DatabaseTimeout:    cfg.Database.Timeout,
		HTTPHost:           cfg.HTTP.Host,
		HTTPPort:           cfg.HTTP.Port,
		HTTPReadTimeout:    cfg.HTTP.ReadTimeout,
		HTTPWriteTimeout:   cfg.HTTP.WriteTimeout,
		WSPingInterval:     cfg.WebSocket.PingInterval,
		WSReadTimeout:      cfg.WebSocket.ReadTimeout,
		WSWriteTimeout:     cfg.WebSocket.WriteTimeout,
		WSBufferSize:       cfg.WebSocket.BufferSize,
		StoreBackend:       cfg.Store.Backend,
		BadgerPath:         cfg.Store.BadgerPath,
		TypingExpiry:       cfg.Chat.TypingExpiry,
		RateLimit:          cfg.Chat.RateLimit,
		RateWindow:         cfg.Chat.RateWindow,
		DefaultProvider:    cfg.AI.DefaultProvider.String(),
		MaxContextMessages: cfg.AI.MaxContextMessages,
		RetryAttempts:      cfg.AI.RetryAttempts,
		RetryDelay:         cfg.AI.RetryDelay,
		OpenAIEnabled:      cfg.AI.OpenAI.Enabled,
		OpenAIKey:          cfg.AI.OpenAI.APIKey,
		OpenAIBaseURL:      cfg.AI.OpenAI.BaseURL,
		OpenAIModel:        cfg.AI.OpenAI.Model,
		AzureEnabled:       cfg.AI.AzureOpenAI.Enabled,
		AzureKey:           cfg.AI.AzureOpenAI.APIKey,
		AzureEndpoint:      cfg.AI.AzureOpenAI.BaseURL,
		AzureDeployment:    cfg.AI.AzureOpenAI.Deployment,
		AzureAPIVersion:    cfg.AI.AzureOpenAI.APIVersion,
		AnthropicEnabled:   cfg.AI.Anthropic.Enabled,
		AnthropicKey:       cfg.AI.Anthropic.APIKey,
		AnthropicBaseURL:   cfg.AI.Anthropic.BaseURL,
		AnthropicModel:     cfg.AI.Anthropic.Model,
		LogLevel:           cfg.Logging.Level,
		LogFile:            cfg.Logging.File,
		TelemetryEnabled:   cfg.Telemetry.Enabled,
		TraceFile:          cfg.Telemetry.TraceFile,
		MetricFile:         cfg.Telemetry.MetricFile,
	}

	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvironment, err)
	}

	provider, err := types.ParseProvider(e.DefaultProvider)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvironment, err)
	}

	cfg.Database.Path, cfg.Database.Timeout = e.DatabasePath, e.DatabaseTimeout
	cfg.HTTP.Host, cfg.HTTP.Port = e.HTTPHost, e.HTTPPort
	cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout = e.HTTPReadTimeout, e.HTTPWriteTimeout
	cfg.WebSocket.PingInterval, cfg.WebSocket.BufferSize = e.WSPingInterval, e.WSBufferSize
	cfg.WebSocket.ReadTimeout, cfg.WebSocket.WriteTimeout = e.WSReadTimeout, e.WSWriteTimeout
	cfg.Store.Backend, cfg.Store.BadgerPath = strings.ToLower(e.StoreBackend), e.BadgerPath
	cfg.Chat.TypingExpiry, cfg.Chat.RateLimit, cfg.Chat.RateWindow = e.TypingExpiry, e.RateLimit, e.RateWindow

	cfg.AI.DefaultProvider = provider
	cfg.AI.MaxContextMessages = e.MaxContextMessages
	cfg.AI.RetryAttempts, cfg.AI.RetryDelay = e.RetryAttempts, e.RetryDelay
	cfg.AI.OpenAI.Enabled, cfg.AI.OpenAI.APIKey = e.OpenAIEnabled, e.OpenAIKey
	cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model = e.OpenAIBaseURL, e.OpenAIModel
	cfg.AI.AzureOpenAI.Enabled, cfg.AI.AzureOpenAI.APIKey = e.AzureEnabled, e.AzureKey
	cfg.AI.AzureOpenAI.BaseURL, cfg.AI.AzureOpenAI.Deployment = e.AzureEndpoint, e.AzureDeployment
	cfg.AI.AzureOpenAI.APIVersion = e.AzureAPIVersion
	cfg.AI.Anthropic.Enabled, cfg.AI.Anthropic.APIKey = e.AnthropicEnabled, e.AnthropicKey
	cfg.AI.Anthropic.BaseURL, cfg.AI.Anthropic.Model = e.AnthropicBaseURL, e.AnthropicModel

	cfg.Logging.Level, cfg.Logging.File = e.LogLevel, e.LogFile
	cfg.Telemetry.Enabled = e.TelemetryEnabled
	cfg.Telemetry.TraceFile, cfg.Telemetry.MetricFile = e.TraceFile, e.MetricFile
	return nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings;
// zero values mean "keep the current setting"
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Store     *StoreConfig         `json:"store"`
	Chat      *ChatConfigFile      `json:"chat"`
	AI        *AIConfigFile        `json:"ai"`
	Logging   *LoggingConfigFile   `json:"logging"`
	Telemetry *TelemetryConfigFile `json:"telemetry"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type ChatConfigFile struct {
	TypingExpiry string `json:"typing_expiry"`
	RateLimit    int    `json:"rate_limit"`
	RateWindow   string `json:"rate_window"`
}

type AIConfigFile struct {
	DefaultProvider    *types.Provider     `json:"default_provider"`
	MaxContextMessages int                 `json:"max_context_messages"`
	RetryAttempts      int                 `json:"retry_attempts"`
	RetryDelay         string              `json:"retry_delay"`
	OpenAI             *ProviderConfigFile `json:"openai"`
	AzureOpenAI        *ProviderConfigFile `json:"azure_openai"`
	Anthropic          *ProviderConfigFile `json:"anthropic"`
	Mock               *ProviderConfigFile `json:"mock"`
}

type ProviderConfigFile struct {
	Enabled      *bool    `json:"enabled"`
	APIKey       string   `json:"api_key"`
	BaseURL      string   `json:"base_url"`
	Deployment   string   `json:"deployment"`
	APIVersion   string   `json:"api_version"`
	Model        string   `json:"model"`
	MaxTokens    int      `json:"max_tokens"`
	Temperature  *float64 `json:"temperature"`
	SystemPrompt string   `json:"system_prompt"`
	Timeout      string   `json:"timeout"`
}

type LoggingConfigFile struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   *bool  `json:"compress"`
}

type TelemetryConfigFile struct {
	Enabled        *bool  `json:"enabled"`
	ServiceName    string `json:"service_name"`
	TraceFile      string `json:"trace_file"`
	MetricFile     string `json:"metric_file"`
	MetricInterval string `json:"metric_interval"`
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment scenarios
// JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, filepath); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	d := durationParser{}

	if f := file.Database; f != nil {
		setString(&cfg.Database.Path, f.Path)
		d.parse("database.timeout", f.Timeout, &cfg.Database.Timeout)
	}
	if f := file.HTTP; f != nil {
		setInt(&cfg.HTTP.Port, f.Port)
		setString(&cfg.HTTP.Host, f.Host)
		d.parse("http.read_timeout", f.ReadTimeout, &cfg.HTTP.ReadTimeout)
		d.parse("http.write_timeout", f.WriteTimeout, &cfg.HTTP.WriteTimeout)
	}
	if f := file.WebSocket; f != nil {
		setInt(&cfg.WebSocket.BufferSize, f.BufferSize)
		d.parse("websocket.ping_interval", f.PingInterval, &cfg.WebSocket.PingInterval)
		d.parse("websocket.read_timeout", f.ReadTimeout, &cfg.WebSocket.ReadTimeout)
		d.parse("websocket.write_timeout", f.WriteTimeout, &cfg.WebSocket.WriteTimeout)
	}
	if f := file.Store; f != nil {
		setString(&cfg.Store.Backend, strings.ToLower(f.Backend))
		setString(&cfg.Store.BadgerPath, f.BadgerPath)
	}
	if f := file.Chat; f != nil {
		setInt(&cfg.Chat.RateLimit, f.RateLimit)
		d.parse("chat.typing_expiry", f.TypingExpiry, &cfg.Chat.TypingExpiry)
		d.parse("chat.rate_window", f.RateWindow, &cfg.Chat.RateWindow)
	}
	if f := file.AI; f != nil {
		if f.DefaultProvider != nil {
			cfg.AI.DefaultProvider = *f.DefaultProvider
		}
		setInt(&cfg.AI.MaxContextMessages, f.MaxContextMessages)
		setInt(&cfg.AI.RetryAttempts, f.RetryAttempts)
		d.parse("ai.retry_delay", f.RetryDelay, &cfg.AI.RetryDelay)
		d.provider("ai.openai", f.OpenAI, &cfg.AI.OpenAI)
		d.provider("ai.azure_openai", f.AzureOpenAI, &cfg.AI.AzureOpenAI)
		d.provider("ai.anthropic", f.Anthropic, &cfg.AI.Anthropic)
		d.provider("ai.mock", f.Mock, &cfg.AI.Mock)
	}
	if f := file.Logging; f != nil {
		setString(&cfg.Logging.Level, f.Level)
		setString(&cfg.Logging.File, f.File)
		setInt(&cfg.Logging.MaxSizeMB, f.MaxSizeMB)
		setInt(&cfg.Logging.MaxBackups, f.MaxBackups)
		setInt(&cfg.Logging.MaxAgeDays, f.MaxAgeDays)
		if f.Compress != nil {
			cfg.Logging.Compress = *f.Compress
		}
	}
	if f := file.Telemetry; f != nil {
		if f.Enabled != nil {
			cfg.Telemetry.Enabled = *f.Enabled
		}
		setString(&cfg.Telemetry.ServiceName, f.ServiceName)
		setString(&cfg.Telemetry.TraceFile, f.TraceFile)
		setString(&cfg.Telemetry.MetricFile, f.MetricFile)
		d.parse("telemetry.metric_interval", f.MetricInterval, &cfg.Telemetry.MetricInterval)
	}

	if d.err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, d.err)
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// The environment is applied over defaults, then the file over both.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if filepath != "" {
		if err := applyFile(cfg, filepath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durationParser collects the first parse failure across many fields
type durationParser struct {
	err error
}

func (d *durationParser) parse(field, value string, dst *time.Duration) {
	if value == "" || d.err != nil {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("%s: %w", field, err)
		return
	}
	*dst = parsed
}

func (d *durationParser) provider(field string, f *ProviderConfigFile, dst *ProviderConfig) {
	if f == nil {
		return
	}
	if f.Enabled != nil {
		dst.Enabled = *f.Enabled
	}
	if f.Temperature != nil {
		dst.Temperature = *f.Temperature
	}
	setString(&dst.APIKey, f.APIKey)
	setString(&dst.BaseURL, f.BaseURL)
	setString(&dst.Deployment, f.Deployment)
	setString(&dst.APIVersion, f.APIVersion)
	setString(&dst.Model, f.Model)
	setString(&dst.SystemPrompt, f.SystemPrompt)
	setInt(&dst.MaxTokens, f.MaxTokens)
	d.parse(field+".timeout", f.Timeout, &dst.Timeout)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}
