package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/tario-you/pollevbot/internal/models"
)

// Config represents the application configuration
type Config struct {
	Host    string        `toml:"host" validate:"required"`
	Login   LoginConfig   `toml:"login"`
	Watch   WatchConfig   `toml:"watch"`
	Respond RespondConfig `toml:"respond"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// LoginConfig selects how the session is established. Exactly one
// mode is active per run.
type LoginConfig struct {
	Mode     string `toml:"mode" validate:"oneof=cookies token login"` // "cookies", "token" or "login"
	Cookies  string `toml:"cookies"`                                   // semicolon-delimited key=value list
	Token    string `toml:"token"`                                     // pre-captured firehose token
	Username string `toml:"username"`
	Password string `toml:"password"`
	Type     string `toml:"type" validate:"omitempty,oneof=native sso"` // login handshake: "native" or "sso"
}

// WatchConfig bounds the long-poll loop
type WatchConfig struct {
	WaitBudget time.Duration `toml:"wait_budget"` // server-side wait before "no update" (default 25s)
	Grace      time.Duration `toml:"grace"`       // client timeout margin on top of the wait budget
	Lifetime   time.Duration `toml:"lifetime"`    // stop cleanly after this long; 0 = run forever
}

// RespondConfig controls response submission
type RespondConfig struct {
	OpenWait  time.Duration `toml:"open_wait"`  // delay before answering an open poll
	MinOption int           `toml:"min_option"` // lowest selectable option index (inclusive, 0-based)
	MaxOption int           `toml:"max_option"` // option index bound (exclusive); 0 = no bound
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path string `toml:"path"` // Database directory path
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// The wait budget mirrors the provider's firehose hold time; the
// grace margin keeps the client timeout above the server's.
func NewDefaultConfig() *Config {
	return &Config{
		Login: LoginConfig{
			Mode: "cookies",
			Type: "native",
		},
		Watch: WatchConfig{
			WaitBudget: 25 * time.Second,
			Grace:      5 * time.Second,
			Lifetime:   0,
		},
		Respond: RespondConfig{
			OpenWait:  5 * time.Second,
			MinOption: 0,
			MaxOption: 0,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI flags.
// Later files override earlier files.
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

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("POLLEVBOT_HOST"); v != "" {
		config.Host = v
	}
	if v := os.Getenv("POLLEVBOT_LOGIN_MODE"); v != "" {
		config.Login.Mode = v
	}
	if v := os.Getenv("POLLEVBOT_COOKIES"); v != "" {
		config.Login.Cookies = v
	}
	if v := os.Getenv("POLLEVBOT_TOKEN"); v != "" {
		config.Login.Token = v
	}
	if v := os.Getenv("POLLEVBOT_USERNAME"); v != "" {
		config.Login.Username = v
	}
	if v := os.Getenv("POLLEVBOT_PASSWORD"); v != "" {
		config.Login.Password = v
	}
	if v := os.Getenv("POLLEVBOT_LOGIN_TYPE"); v != "" {
		config.Login.Type = v
	}
	if v := os.Getenv("POLLEVBOT_DATA_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("POLLEVBOT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("POLLEVBOT_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Watch.Lifetime = d
		}
	}
	if v := os.Getenv("POLLEVBOT_MIN_OPTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Respond.MinOption = n
		}
	}
	if v := os.Getenv("POLLEVBOT_MAX_OPTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Respond.MaxOption = n
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, host, mode, cookies, token string) {
	if host != "" {
		config.Host = host
	}
	if mode != "" {
		config.Login.Mode = mode
	}
	if cookies != "" {
		config.Login.Cookies = cookies
	}
	if token != "" {
		config.Login.Token = token
	}
}

// Validate checks the resolved configuration, including that the
// active login mode is fully populated.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Credential(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Watch.WaitBudget <= 0 {
		return fmt.Errorf("invalid configuration: watch.wait_budget must be positive")
	}
	if c.Watch.Grace < 0 {
		return fmt.Errorf("invalid configuration: watch.grace must not be negative")
	}
	return nil
}

// Credential builds the SessionCredential for the configured login
// mode.
func (c *Config) Credential() (models.SessionCredential, error) {
	var cred models.SessionCredential

	switch c.Login.Mode {
	case "cookies":
		cred = models.SessionCredential{
			Kind:    models.CredentialCookies,
			Cookies: models.ParseCookiePairs(c.Login.Cookies),
		}
	case "token":
		cred = models.SessionCredential{
			Kind:  models.CredentialToken,
			Token: c.Login.Token,
		}
	case "login":
		cred = models.SessionCredential{
			Kind:      models.CredentialLogin,
			Username:  c.Login.Username,
			Password:  c.Login.Password,
			LoginType: models.LoginType(c.Login.Type),
		}
	default:
		return cred, fmt.Errorf("unknown login mode %q", c.Login.Mode)
	}

	if err := cred.Validate(); err != nil {
		return cred, err
	}
	return cred, nil
}
