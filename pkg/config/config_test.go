package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/apicap/pkg/capture"
	"github.com/getmockd/apicap/pkg/logging"
)

var allEnv = []string{
	EnvTargetDomains, EnvExcludePaths, EnvBaseURL, EnvMaxBodyBytes, EnvCADir,
	EnvLogLevel, EnvLogFormat, EnvLogFile, EnvClientName,
}

// isolate points the global config and data dirs at temp dirs, runs the test
// from an empty working directory and clears APICAP_* variables.
func isolate(t *testing.T) (cwd, globalDir string) {
	t.Helper()
	root := t.TempDir()
	cwd = filepath.Join(root, "work")
	globalDir = filepath.Join(root, "config", GlobalConfigDir)
	require.NoError(t, os.MkdirAll(cwd, 0o755))
	require.NoError(t, os.MkdirAll(globalDir, 0o755))

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	for _, name := range allEnv {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	t.Chdir(cwd)
	return cwd, globalDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	cfg := NewDefault()

	assert.Equal(t, capture.DefaultTargetDomains, cfg.TargetDomains)
	assert.Equal(t, capture.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, filepath.Join("/data", "apicap", "ca"), cfg.CADir)
	assert.Equal(t, "AuraClient", cfg.ClientName)
	assert.EqualValues(t, 10*1024*1024, cfg.MaxBodyBytes)
	assert.Equal(t, SourceDefault, cfg.Source("baseUrl"))
	require.NoError(t, cfg.Validate())

	cfg.TargetDomains[0] = "changed"
	assert.Equal(t, "aura.build", capture.DefaultTargetDomains[0], "defaults must not alias the package value")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no domains", func(c *Config) { c.TargetDomains = nil }, "at least one domain"},
		{"domain with path", func(c *Config) { c.TargetDomains = []string{"aura.build/api"} }, "not a host name"},
		{"relative base url", func(c *Config) { c.BaseURL = "/api" }, "absolute http(s) URL"},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, ""},
		{"zero body size", func(c *Config) { c.MaxBodyBytes = 0 }, "maxBodyBytes 0 is out of range"},
		{"huge body size", func(c *Config) { c.MaxBodyBytes = 1 << 40 }, "out of range"},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, `logLevel "trace"`},
		{"level any case", func(c *Config) { c.LogLevel = "DEBUG" }, ""},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, `logFormat "xml"`},
		{"bad client name", func(c *Config) { c.ClientName = "my-client" }, "not a valid TypeScript identifier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAll_Precedence(t *testing.T) {
	cwd, globalDir := isolate(t)

	writeFile(t, filepath.Join(globalDir, "config.yaml"), `
targetDomains: [example.test]
logLevel: warn
clientName: GlobalClient
maxBodyBytes: 2048
`)
	writeFile(t, filepath.Join(cwd, ".apicaprc.yaml"), `
logLevel: debug
excludePaths:
  - /api/health
`)
	t.Setenv(EnvClientName, "EnvClient")

	cfg, err := LoadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"example.test"}, cfg.TargetDomains)
	assert.Equal(t, SourceGlobal, cfg.Source("targetDomains"))
	assert.EqualValues(t, 2048, cfg.MaxBodyBytes)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, SourceLocal, cfg.Source("logLevel"))
	assert.Equal(t, []string{"/api/health"}, cfg.ExcludePaths)
	assert.Equal(t, "EnvClient", cfg.ClientName)
	assert.Equal(t, SourceEnv, cfg.Source("clientName"))
	assert.Equal(t, capture.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, SourceDefault, cfg.Source("baseUrl"))
}

func TestLoadAll_DotEnv(t *testing.T) {
	cwd, _ := isolate(t)
	writeFile(t, filepath.Join(cwd, ".env"), "APICAP_TARGET_DOMAINS=a.test, b.test\nAPICAP_LOG_FORMAT=json\n")
	t.Setenv(EnvLogFormat, "text")

	cfg, err := LoadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"a.test", "b.test"}, cfg.TargetDomains)
	assert.Equal(t, SourceEnv, cfg.Source("targetDomains"))
	assert.Equal(t, "text", cfg.LogFormat, "variables already set win over .env")
}

func TestLoadAll_Errors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		cwd, _ := isolate(t)
		writeFile(t, filepath.Join(cwd, ".apicaprc.yaml"), "logLevel: info\nport: 9000\n")

		_, err := LoadAll()
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 2, cerr.Line)
		assert.Contains(t, err.Error(), `unknown setting "port"`)
		assert.Contains(t, err.Error(), "(line 2, column 1)")
	})

	t.Run("wrong type", func(t *testing.T) {
		cwd, _ := isolate(t)
		writeFile(t, filepath.Join(cwd, ".apicaprc.yml"), "maxBodyBytes: lots\n")

		_, err := LoadAll()
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Path, ".apicaprc.yml")
	})

	t.Run("not a mapping", func(t *testing.T) {
		_, globalDir := isolate(t)
		writeFile(t, filepath.Join(globalDir, "config.yml"), "- a\n- b\n")

		_, err := LoadAll()
		assert.ErrorContains(t, err, "expected a mapping")
	})

	t.Run("bad env integer", func(t *testing.T) {
		isolate(t)
		t.Setenv(EnvMaxBodyBytes, "10MB")

		_, err := LoadAll()
		assert.ErrorContains(t, err, EnvMaxBodyBytes)
	})

	t.Run("invalid value", func(t *testing.T) {
		cwd, _ := isolate(t)
		writeFile(t, filepath.Join(cwd, ".apicaprc.yaml"), "targetDomains: []\n")

		_, err := LoadAll()
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestLoadConfigFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	target := NewDefault()
	MergeConfig(target, cfg, SourceLocal)
	assert.Equal(t, NewDefault().TargetDomains, target.TargetDomains)
	assert.Equal(t, SourceDefault, target.Source("logLevel"))
}

func TestMergeConfig_Programmatic(t *testing.T) {
	target := NewDefault()
	MergeConfig(target, &Config{LogFile: "/tmp/apicap.log"}, SourceLocal)

	assert.Equal(t, "/tmp/apicap.log", target.LogFile)
	assert.Equal(t, SourceLocal, target.Source("logFile"))
	assert.Equal(t, DefaultLogLevel, target.LogLevel)
	assert.Equal(t, SourceDefault, target.Source("logLevel"))
	assert.NotEmpty(t, target.TargetDomains)

	MergeConfig(target, nil, SourceEnv)
	assert.Equal(t, "/tmp/apicap.log", target.LogFile)
}

func TestLoggingConfig(t *testing.T) {
	cfg := NewDefault()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "JSON"
	cfg.LogFile = "apicap.log"

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.Equal(t, "apicap.log", lc.File)
}
