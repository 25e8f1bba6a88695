package config

import (
	"net/url"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/ngld/knossos/packages/buildmatrix/pkg/publish"
)

// DefaultFile is loaded from the working directory if it exists.
const DefaultFile = "buildmatrix.toml"

// Config describes all configuration options
type Config struct {
	File        string        `toml:"file" usage:"Matrix definition to load instead of searching for matrix.star / matrix.yml"`
	Root        string        `toml:"root" default:"." usage:"Directory the working directories are created in"`
	Prefix      string        `toml:"prefix" default:"build-" usage:"Prefix for working directory names"`
	StepTimeout time.Duration `toml:"step_timeout" default:"0s" usage:"Limit for a single configure or compile step (0 disables)"`
	Verbose     bool          `toml:"verbose" default:"false" usage:"Stream builder output instead of only showing it for failed cases"`
	Report      string        `toml:"report" usage:"Write a JSON report to this path"`
	Archive     string        `toml:"archive" usage:"Collect the logs of failed cases into this .tar.xz file"`
	LogPatterns []string      `toml:"log_patterns" default:"meson-logs/**" usage:"Files to archive for failed cases"`
	Debug       bool          `toml:"debug" default:"false" usage:"Include stack traces in error messages"`

	Builder struct {
		Setup   string `toml:"setup" usage:"Configure command; receives $MATRIX_BUILD_DIR and the case flags as arguments"`
		Compile string `toml:"compile" usage:"Compile command; receives $MATRIX_BUILD_DIR"`
		Dir     string `toml:"dir" usage:"Source directory the commands run in"`
	} `toml:"builder"`

	Log struct {
		Level   string `toml:"level" default:"info"`
		JSON    bool   `toml:"json" default:"false" usage:"Output JSONND instead of pretty console messages"`
		NoColor bool   `toml:"no_color" default:"false" usage:"Disable coloured output"`
	} `toml:"log"`

	Upload struct {
		Provider  string `toml:"provider" usage:"Upload provider for the report and log archive (empty disables uploads)"`
		Endpoint  string `toml:"endpoint" usage:"Storage endpoint; an http:// prefix disables TLS"`
		AccessKey string `toml:"access_key"`
		SecretKey string `toml:"secret_key"`
		Bucket    string `toml:"bucket"`
		Region    string `toml:"region" default:"us-east-1"`
		Prefix    string `toml:"prefix" usage:"Key prefix for uploaded files"`
	} `toml:"upload"`

	Webhook struct {
		URL       string        `toml:"url" usage:"Endpoint which receives the JSON report (empty disables)"`
		AuthType  string        `toml:"auth_type" default:"none" usage:"none, bearer or api-key"`
		AuthToken string        `toml:"auth_token"`
		Timeout   time.Duration `toml:"timeout" default:"30s" usage:"Overall timeout including retries"`
		Retries   int           `toml:"retries" default:"3"`
	} `toml:"webhook"`
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. Without
// files, DefaultFile is used. Command line flags are left to cobra.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "BUILDMATRIX",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load is a shorthand for Loader followed by Load and Validate.
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.StepTimeout < 0 {
		return eris.Errorf(`Invalid value for step_timeout: %s (must not be negative)`, cfg.StepTimeout)
	}

	if cfg.Upload.Provider != "" {
		if _, ok := publish.Registry[cfg.Upload.Provider]; !ok {
			return eris.Errorf(`Invalid value for upload.provider: %s (must be one of %v)`, cfg.Upload.Provider, publish.ProviderNames())
		}

		if cfg.Upload.Endpoint == "" || cfg.Upload.Bucket == "" {
			return eris.New(`upload.endpoint and upload.bucket are required when upload.provider is set`)
		}
	}

	if cfg.Webhook.URL != "" {
		parsed, err := url.Parse(cfg.Webhook.URL)
		if err != nil {
			return eris.Wrapf(err, `Invalid value for webhook.url`)
		}

		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return eris.Errorf(`Invalid value for webhook.url: %s (must be an http or https URL)`, cfg.Webhook.URL)
		}
	}

	switch cfg.Webhook.AuthType {
	case "none":
	case "bearer", "api-key":
		if cfg.Webhook.URL != "" && cfg.Webhook.AuthToken == "" {
			return eris.Errorf(`webhook.auth_token is required for webhook.auth_type %s`, cfg.Webhook.AuthType)
		}
	default:
		return eris.Errorf(`Invalid value for webhook.auth_type: %s (must be one of none, bearer or api-key)`, cfg.Webhook.AuthType)
	}

	if cfg.Webhook.Retries < 0 {
		return eris.Errorf(`Invalid value for webhook.retries: %d (must not be negative)`, cfg.Webhook.Retries)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// SetLogLevel validates and applies a log level given on the command line.
func (cfg *Config) SetLogLevel(level string) error {
	if _, ok := logLevels[level]; !ok {
		return eris.Errorf(`Invalid log level: %s`, level)
	}

	cfg.Log.Level = level
	return nil
}

// ProviderConfig returns the settings for publish.Provider.Configure.
func (cfg *Config) ProviderConfig() map[string]interface{} {
	return map[string]interface{}{
		"endpoint":   cfg.Upload.Endpoint,
		"access_key": cfg.Upload.AccessKey,
		"secret_key": cfg.Upload.SecretKey,
		"bucket":     cfg.Upload.Bucket,
		"region":     cfg.Upload.Region,
		"prefix":     cfg.Upload.Prefix,
	}
}

// Publisher builds the publisher described by the upload and webhook sections. It returns nil
// if neither is configured.
func (cfg *Config) Publisher() (*publish.Publisher, error) {
	publisher := &publish.Publisher{}

	if cfg.Upload.Provider != "" {
		provider, err := publish.NewProvider(cfg.Upload.Provider)
		if err != nil {
			return nil, err
		}

		if err = provider.Configure(cfg.ProviderConfig()); err != nil {
			return nil, err
		}
		publisher.Provider = provider
	}

	if cfg.Webhook.URL != "" {
		retry := publish.DefaultRetryConfig()
		retry.MaxRetries = cfg.Webhook.Retries

		publisher.Webhook = publish.NewWebhook(&publish.WebhookConfig{
			URL:       cfg.Webhook.URL,
			Timeout:   cfg.Webhook.Timeout,
			AuthType:  cfg.Webhook.AuthType,
			AuthToken: cfg.Webhook.AuthToken,
		}, retry)
	}

	if !publisher.Enabled() {
		return nil, nil
	}
	return publisher, nil
}
