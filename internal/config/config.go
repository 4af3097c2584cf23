// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Signup  SignupConfig  `mapstructure:"signup" yaml:"signup"`
	Captcha CaptchaConfig `mapstructure:"captcha" yaml:"captcha"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// Optional rotating file sink.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MailConfig describes the disposable-mailbox relay.
type MailConfig struct {
	APIBase string `mapstructure:"api_base" yaml:"api_base"`
	// AdminKey is sent as X-API-Key on the public endpoints and as
	// x-admin-auth on the admin fallback endpoints.
	AdminKey string   `mapstructure:"admin_key" yaml:"admin_key"`
	Domains  []string `mapstructure:"domains" yaml:"domains"`
	// SourceSentinel identifies the signup sender on the admin "all mail"
	// feed (e.g. the verification sender address).
	SourceSentinel string `mapstructure:"source_sentinel" yaml:"source_sentinel"`
	// The relay is commonly deployed behind a self-signed certificate.
	AllowSelfSigned bool          `mapstructure:"allow_self_signed" yaml:"allow_self_signed"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	CodeTimeout     time.Duration `mapstructure:"code_timeout" yaml:"code_timeout"`
}

// BrowserConfig controls the Chromium instance driven per attempt.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	Args         []string `mapstructure:"args" yaml:"args"`
	LoginURL     string   `mapstructure:"login_url" yaml:"login_url"`
	WorkspaceURL string   `mapstructure:"workspace_url" yaml:"workspace_url"`
}

// SignupConfig bounds the individual stages of one signup attempt.
type SignupConfig struct {
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	NamePollTimeout  time.Duration `mapstructure:"name_poll_timeout" yaml:"name_poll_timeout"`
	WorkspaceTimeout time.Duration `mapstructure:"workspace_timeout" yaml:"workspace_timeout"`
	ExtractTimeout   time.Duration `mapstructure:"extract_timeout" yaml:"extract_timeout"`
	MaxCrashRetries  int           `mapstructure:"max_crash_retries" yaml:"max_crash_retries"`
	TypeAttempts     int           `mapstructure:"type_attempts" yaml:"type_attempts"`
}

// CaptchaConfig describes the external reCAPTCHA scoring service. It is only
// used on the degraded-trust refresh path, never by the core signup flow.
type CaptchaConfig struct {
	APIBase      string        `mapstructure:"api_base" yaml:"api_base"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	SiteKey      string        `mapstructure:"site_key" yaml:"site_key"`
	SiteURL      string        `mapstructure:"site_url" yaml:"site_url"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StoreConfig locates the harvested-credential file.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults registers the default values on the given viper instance.
// Values mirror the production deployment of the signup target.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "bizmint")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	// Registered empty so environment overrides are visible to Unmarshal.
	v.SetDefault("mail.api_base", "")
	v.SetDefault("mail.admin_key", "")
	v.SetDefault("browser.login_url", "")

	v.SetDefault("mail.allow_self_signed", true)
	v.SetDefault("mail.request_timeout", 30*time.Second)
	v.SetDefault("mail.poll_interval", 2*time.Second)
	v.SetDefault("mail.code_timeout", 60*time.Second)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.workspace_url", "https://business.gemini.google/")

	v.SetDefault("signup.attempt_timeout", 90*time.Second)
	v.SetDefault("signup.name_poll_timeout", 30*time.Second)
	v.SetDefault("signup.workspace_timeout", 30*time.Second)
	v.SetDefault("signup.extract_timeout", 15*time.Second)
	v.SetDefault("signup.max_crash_retries", 3)
	v.SetDefault("signup.type_attempts", 3)

	v.SetDefault("captcha.api_base", "https://api.yescaptcha.com")
	v.SetDefault("captcha.site_key", "6Ld8dCcrAAAAAFVbDMVZy8aNRwCjakBVaDEdRUH8")
	v.SetDefault("captcha.site_url", "https://accountverification.business.gemini.google")
	v.SetDefault("captcha.poll_interval", 3*time.Second)
	v.SetDefault("captcha.timeout", 60*time.Second)

	v.SetDefault("store.path", "data/accounts.json")
}

// Validate enforces the hard preconditions. A missing mail relay or admin key
// means no attempt can ever succeed, so we fail fast instead of burning a
// browser session per attempt.
func (c *Config) Validate() error {
	if c.Mail.APIBase == "" {
		return fmt.Errorf("configuration missing: mail.api_base is required")
	}
	if c.Mail.AdminKey == "" {
		return fmt.Errorf("configuration missing: mail.admin_key is required")
	}
	if c.Browser.LoginURL == "" {
		return fmt.Errorf("configuration missing: browser.login_url is required")
	}
	return nil
}
