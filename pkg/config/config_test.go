package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{Root: ".", Prefix: "build-"}
	cfg.Log.Level = "info"
	cfg.Webhook.AuthType = "none"
	cfg.Webhook.Retries = 3
	return cfg
}

func TestLoad_UsesDefaults_When_FileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))

	require.NoError(t, err)
	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, "build-", cfg.Prefix)
	assert.Equal(t, time.Duration(0), cfg.StepTimeout)
	assert.Equal(t, []string{"meson-logs/**"}, cfg.LogPatterns)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.Equal(t, "none", cfg.Webhook.AuthType)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "us-east-1", cfg.Upload.Region)
}

func TestLoad_ReadsTOMLAndEnvironment_When_Present(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildmatrix.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
prefix = "ci-"
step_timeout = "10m"
report = "out/report.json"

[builder]
setup = "cmake -B \"$MATRIX_BUILD_DIR\" \"$@\""

[log]
level = "debug"

[webhook]
url = "https://ci.example.com/hook"
auth_type = "bearer"
auth_token = "from-file"
`), 0o644))

	t.Setenv("BUILDMATRIX_WEBHOOK_AUTH_TOKEN", "from-env")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "ci-", cfg.Prefix)
	assert.Equal(t, 10*time.Minute, cfg.StepTimeout)
	assert.Equal(t, "out/report.json", cfg.Report)
	assert.Equal(t, `cmake -B "$MATRIX_BUILD_DIR" "$@"`, cfg.Builder.Setup)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	assert.Equal(t, "from-env", cfg.Webhook.AuthToken)
}

func TestValidate_RejectsBadValues_When_Checked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{name: "log level", modify: func(c *Config) { c.Log.Level = "loud" }, want: "log.level"},
		{name: "negative timeout", modify: func(c *Config) { c.StepTimeout = -time.Second }, want: "step_timeout"},
		{name: "unknown provider", modify: func(c *Config) { c.Upload.Provider = "ftp" }, want: "upload.provider"},
		{name: "provider without bucket", modify: func(c *Config) {
			c.Upload.Provider = "minio"
			c.Upload.Endpoint = "localhost:9000"
		}, want: "upload.bucket"},
		{name: "webhook scheme", modify: func(c *Config) { c.Webhook.URL = "ftp://example.com" }, want: "webhook.url"},
		{name: "auth type", modify: func(c *Config) { c.Webhook.AuthType = "basic" }, want: "webhook.auth_type"},
		{name: "missing token", modify: func(c *Config) {
			c.Webhook.URL = "https://example.com"
			c.Webhook.AuthType = "bearer"
		}, want: "webhook.auth_token"},
		{name: "negative retries", modify: func(c *Config) { c.Webhook.Retries = -1 }, want: "webhook.retries"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPublisher_ReflectsSections_When_Configured(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	publisher, err := cfg.Publisher()
	require.NoError(t, err)
	assert.Nil(t, publisher)

	cfg.Upload.Provider = "minio"
	cfg.Upload.Endpoint = "http://localhost:9000"
	cfg.Upload.AccessKey = "key"
	cfg.Upload.SecretKey = "secret"
	cfg.Upload.Bucket = "ci"
	cfg.Webhook.URL = "https://example.com/hook"

	require.NoError(t, cfg.Validate())
	publisher, err = cfg.Publisher()
	require.NoError(t, err)
	require.NotNil(t, publisher)
	assert.Equal(t, "minio", publisher.Provider.Name())
	assert.NotNil(t, publisher.Webhook)
}

func TestSetLogLevel_When_Called(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, cfg.SetLogLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel())
	assert.Error(t, cfg.SetLogLevel("chatty"))
}
