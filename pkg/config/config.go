package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	// DirName is the per-user configuration directory under $HOME.
	DirName = ".rterm"

	DefaultEndpoint = "http://localhost:8787"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Secure   SecureConfig   `mapstructure:"secure"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Store    StoreConfig    `mapstructure:"store"`
}

type ServerConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	// EventsURL is derived from Endpoint when empty.
	EventsURL string `mapstructure:"events_url"`
	// H2C uses HTTP/2 without TLS for RPCs.
	H2C bool `mapstructure:"h2c"`
}

type AuthConfig struct {
	Token string `mapstructure:"token"`
}

type TerminalConfig struct {
	Cols int `mapstructure:"cols"`
	Rows int `mapstructure:"rows"`
	// ChunkSize fixes the input chunk size; 0 derives it from the encoder.
	ChunkSize   int           `mapstructure:"chunk_size"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Welcome     string        `mapstructure:"welcome"`
}

type SecureConfig struct {
	// Mode is "rsa" or "none".
	Mode string `mapstructure:"mode"`
}

type MetricsConfig struct {
	// Listen enables a Prometheus /metrics endpoint on this address.
	Listen string `mapstructure:"listen"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures logging behavior
type LogConfig struct {
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

// ConfigureZerolog sets the global zerolog level from the log configuration.
func (c *LogConfig) ConfigureZerolog() {
	level := zerolog.InfoLevel
	if c.Debug {
		level = zerolog.DebugLevel
	} else {
		switch strings.ToLower(c.Level) {
		case "trace":
			level = zerolog.TraceLevel
		case "debug":
			level = zerolog.DebugLevel
		case "warn", "warning":
			level = zerolog.WarnLevel
		case "error":
			level = zerolog.ErrorLevel
		case "fatal":
			level = zerolog.FatalLevel
		case "panic":
			level = zerolog.PanicLevel
		}
	}
	zerolog.SetGlobalLevel(level)
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/" + DirName)
	viper.AddConfigPath("/etc/rterm/")

	// Environment variable overrides, e.g. RTERM_SERVER_ENDPOINT
	viper.SetEnvPrefix("RTERM")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Nested keys are only picked up from the environment once bound
	for _, key := range []string{
		"server.endpoint",
		"server.events_url",
		"server.h2c",
		"auth.token",
		"terminal.chunk_size",
		"terminal.call_timeout",
		"secure.mode",
		"log.level",
		"log.debug",
		"metrics.listen",
		"store.path",
	} {
		_ = viper.BindEnv(key)
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.endpoint", DefaultEndpoint)
	viper.SetDefault("terminal.cols", 80)
	viper.SetDefault("terminal.rows", 25)
	viper.SetDefault("secure.mode", "rsa")
	viper.SetDefault("log.level", "info")
}

func (c *Config) Save() error {
	configDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, "config.yaml")
	viper.SetConfigFile(configFile)

	viper.Set("server.endpoint", c.Server.Endpoint)
	viper.Set("server.events_url", c.Server.EventsURL)
	viper.Set("server.h2c", c.Server.H2C)
	viper.Set("auth.token", c.Auth.Token)
	viper.Set("secure.mode", c.Secure.Mode)

	return viper.WriteConfig()
}

// Dir returns $HOME/.rterm.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// StorePath returns the terminal registry file, defaulting to
// $HOME/.rterm/terminals.yaml.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "terminals.yaml"), nil
}

// EventsURLOrDefault returns the websocket URL of the server event stream. Unless set
// explicitly it is the endpoint with a ws/wss scheme and an /events path.
func (c *ServerConfig) EventsURLOrDefault() (string, error) {
	if c.EventsURL != "" {
		return c.EventsURL, nil
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid server endpoint %q: %w", c.Endpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server endpoint scheme %q (expected http or https)", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events"
	return u.String(), nil
}
