package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/lance13c/cdplink/internal/logging"
)

// Drivers understood by the browser package.
const (
	DriverChromeDP   = "chromedp"
	DriverPlaywright = "playwright"
)

const (
	DefaultEndpoint  = "http://localhost:21222"
	DefaultLocalPort = 21222
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Config represents the complete cdplink configuration
type Config struct {
	// Endpoint is the remote-debugging base URL, e.g. http://localhost:21222
	Endpoint string         `yaml:"endpoint" envconfig:"BROWSER_WS_ENDPOINT"`
	Driver   string         `yaml:"driver" envconfig:"CDPLINK_DRIVER"`
	Retry    RetryConfig    `yaml:"retry" envconfig:"CDPLINK_RETRY"`
	Probe    ProbeConfig    `yaml:"probe" envconfig:"CDPLINK_PROBE"`
	Local    LocalConfig    `yaml:"local" envconfig:"CDPLINK_LOCAL"`
	Page     PageConfig     `yaml:"page" envconfig:"CDPLINK_PAGE"`
	Log      logging.Config `yaml:"log" envconfig:"CDPLINK_LOG"`
}

// RetryConfig controls the connect retry loop
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	BaseWait    time.Duration `yaml:"base_wait" envconfig:"BASE_WAIT"`
}

// ProbeConfig controls the /json/version metadata request
type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// LocalConfig describes the locally supervised browser
type LocalConfig struct {
	Port                  int           `yaml:"port" envconfig:"PORT"`
	ExecutablePath        string        `yaml:"executable_path" envconfig:"EXECUTABLE_PATH"`
	ProfileDir            string        `yaml:"profile_dir" envconfig:"PROFILE_DIR"` // relative to the working directory
	UserAgent             string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	StartURL              string        `yaml:"start_url" envconfig:"START_URL"`
	ProbeInterval         time.Duration `yaml:"probe_interval" envconfig:"PROBE_INTERVAL"`
	ProbeAttempts         int           `yaml:"probe_attempts" envconfig:"PROBE_ATTEMPTS"`
	TerminatePollInterval time.Duration `yaml:"terminate_poll_interval" envconfig:"TERMINATE_POLL_INTERVAL"`
}

// PageConfig holds page session defaults
type PageConfig struct {
	SettleDelay       time.Duration `yaml:"settle_delay" envconfig:"SETTLE_DELAY"`
	ViewportWidth     int           `yaml:"viewport_width" envconfig:"VIEWPORT_WIDTH"`
	ViewportHeight    int           `yaml:"viewport_height" envconfig:"VIEWPORT_HEIGHT"`
	LoginPollInterval time.Duration `yaml:"login_poll_interval" envconfig:"LOGIN_POLL_INTERVAL"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Driver:   DriverChromeDP,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseWait:    2 * time.Second,
		},
		Probe: ProbeConfig{
			Timeout: 5 * time.Second,
		},
		Local: LocalConfig{
			Port:                  DefaultLocalPort,
			ProfileDir:            "chrome-profile",
			UserAgent:             DefaultUserAgent,
			StartURL:              "about:blank",
			ProbeInterval:         time.Second,
			ProbeAttempts:         30,
			TerminatePollInterval: 500 * time.Millisecond,
		},
		Page: PageConfig{
			SettleDelay:       time.Second,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			LoginPollInterval: 2 * time.Second,
		},
		Log: logging.Config{
			Level: "info",
		},
	}
}

// Validate checks the configuration for obvious mistakes
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", c.Endpoint)
	}

	switch c.Driver {
	case DriverChromeDP, DriverPlaywright:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseWait <= 0 {
		return fmt.Errorf("retry.base_wait must be positive")
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}

	if c.Local.Port <= 0 || c.Local.Port > 65535 {
		return fmt.Errorf("local.port out of range: %d", c.Local.Port)
	}
	if c.Local.ProbeAttempts < 1 {
		return fmt.Errorf("local.probe_attempts must be at least 1")
	}
	if c.Local.ProbeInterval <= 0 || c.Local.TerminatePollInterval <= 0 {
		return fmt.Errorf("local poll intervals must be positive")
	}

	if c.Page.LoginPollInterval <= 0 {
		return fmt.Errorf("page.login_poll_interval must be positive")
	}
	if c.Page.SettleDelay < 0 {
		return fmt.Errorf("page.settle_delay must not be negative")
	}
	return nil
}

// LocalEndpoint is the debugging address of the supervised local browser.
func (c *Config) LocalEndpoint() string {
	return fmt.Sprintf("http://localhost:%d", c.Local.Port)
}
