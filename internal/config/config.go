package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paularlott/cli"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL               = "http://localhost:8000/api/v1"
	DefaultWSURL                = "ws://localhost:8000/ws"
	DefaultRequestTimeout       = 30 * time.Second
	DefaultReconnectInitial     = time.Second
	DefaultReconnectMax         = 30 * time.Second
	DefaultDecodeAlertThreshold = 10
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "console"
)

var DefaultDataDir = filepath.Join(".", "data")

type Config struct {
	APIURL               string          `yaml:"api_url"`
	WSURL                string          `yaml:"ws_url"`
	DataDir              string          `yaml:"data_dir"`
	RequestTimeout       time.Duration   `yaml:"request_timeout"`
	Reconnect            ReconnectConfig `yaml:"reconnect"`
	DecodeAlertThreshold int             `yaml:"decode_alert_threshold"`
	Log                  LogConfig       `yaml:"log"`
}

type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:         DefaultAPIURL,
		WSURL:          DefaultWSURL,
		DataDir:        DefaultDataDir,
		RequestTimeout: DefaultRequestTimeout,
		Reconnect: ReconnectConfig{
			InitialDelay: DefaultReconnectInitial,
			MaxDelay:     DefaultReconnectMax,
		},
		DecodeAlertThreshold: DefaultDecodeAlertThreshold,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Overrides holds values given on the command line or in the environment.
// Empty strings and zero ints mean "not set".
type Overrides struct {
	ConfigFile           string
	APIURL               string
	WSURL                string
	DataDir              string
	RequestTimeout       string
	ReconnectInitial     string
	ReconnectMax         string
	DecodeAlertThreshold int
	LogLevel             string
	LogFormat            string
}

var flags Overrides

// GetFlags returns the flags shared by every command that talks to the API.
// Defaults are applied by Load, not by the flags, so a config file can sit
// between the two.
func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Usage:    "Path to a YAML config file",
			EnvVars:  []string{"NETPULSE_CONFIG"},
			AssignTo: &flags.ConfigFile,
		},
		&cli.StringFlag{
			Name:     "api-url",
			Usage:    "REST API base URL (default " + DefaultAPIURL + ")",
			EnvVars:  []string{"NETPULSE_API_URL"},
			AssignTo: &flags.APIURL,
		},
		&cli.StringFlag{
			Name:     "ws-url",
			Usage:    "Push channel URL (default " + DefaultWSURL + ")",
			EnvVars:  []string{"NETPULSE_WS_URL"},
			AssignTo: &flags.WSURL,
		},
		&cli.StringFlag{
			Name:     "data-dir",
			Usage:    "Data directory path (default " + DefaultDataDir + ")",
			EnvVars:  []string{"NETPULSE_DATA_DIR"},
			AssignTo: &flags.DataDir,
		},
		&cli.StringFlag{
			Name:     "timeout",
			Usage:    "Per-request timeout, e.g. 30s",
			EnvVars:  []string{"NETPULSE_TIMEOUT"},
			AssignTo: &flags.RequestTimeout,
		},
		&cli.StringFlag{
			Name:     "reconnect-initial",
			Usage:    "First reconnect delay, e.g. 1s",
			EnvVars:  []string{"NETPULSE_RECONNECT_INITIAL"},
			AssignTo: &flags.ReconnectInitial,
		},
		&cli.StringFlag{
			Name:     "reconnect-max",
			Usage:    "Reconnect delay cap, e.g. 30s",
			EnvVars:  []string{"NETPULSE_RECONNECT_MAX"},
			AssignTo: &flags.ReconnectMax,
		},
		&cli.IntFlag{
			Name:     "decode-alert",
			Usage:    "Warn after this many consecutive undecodable push frames",
			EnvVars:  []string{"NETPULSE_DECODE_ALERT"},
			AssignTo: &flags.DecodeAlertThreshold,
		},
		&cli.StringFlag{
			Name:     "log-level",
			Usage:    "Log level (trace, debug, info, warn, error)",
			EnvVars:  []string{"NETPULSE_LOG_LEVEL"},
			AssignTo: &flags.LogLevel,
		},
		&cli.StringFlag{
			Name:     "log-format",
			Usage:    "Log format (console, json)",
			EnvVars:  []string{"NETPULSE_LOG_FORMAT"},
			AssignTo: &flags.LogFormat,
		},
	}
}

// Load builds the configuration from defaults, the config file and the
// parsed flags, in that order of precedence.
func Load() (*Config, error) {
	return Resolve(flags)
}

// Resolve applies o on top of the defaults and the file named by
// o.ConfigFile, then validates the result.
func Resolve(o Overrides) (*Config, error) {
	cfg := Default()
	if o.ConfigFile != "" {
		if err := cfg.LoadFile(o.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Apply(o); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys missing from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Apply(o Overrides) error {
	setString(&c.APIURL, o.APIURL)
	setString(&c.WSURL, o.WSURL)
	setString(&c.DataDir, o.DataDir)
	setString(&c.Log.Level, o.LogLevel)
	setString(&c.Log.Format, o.LogFormat)
	if o.DecodeAlertThreshold != 0 {
		c.DecodeAlertThreshold = o.DecodeAlertThreshold
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeout", o.RequestTimeout, &c.RequestTimeout},
		{"reconnect-initial", o.ReconnectInitial, &c.Reconnect.InitialDelay},
		{"reconnect-max", o.ReconnectMax, &c.Reconnect.MaxDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if err := validateURL("api_url", c.APIURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("ws_url", c.WSURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.Reconnect.InitialDelay <= 0 {
		errs = append(errs, errors.New("reconnect.initial_delay must be positive"))
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, errors.New("reconnect.max_delay must not be less than initial_delay"))
	}
	if c.DecodeAlertThreshold <= 0 {
		errs = append(errs, errors.New("decode_alert_threshold must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func validateURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q has no host", name, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s", name, strings.Join(schemes, ", "))
}
