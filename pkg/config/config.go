package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/getmockd/apicap/pkg/capture"
	"github.com/getmockd/apicap/pkg/clientgen"
	"github.com/getmockd/apicap/pkg/logging"
	"github.com/getmockd/apicap/pkg/proxy"
)

// Config is the complete apicap configuration.
type Config struct {
	// Capture scope
	TargetDomains []string `yaml:"targetDomains,omitempty" json:"targetDomains,omitempty"`
	ExcludePaths  []string `yaml:"excludePaths,omitempty" json:"excludePaths,omitempty"`
	BaseURL       string   `yaml:"baseUrl" json:"baseUrl"`
	MaxBodyBytes  int64    `yaml:"maxBodyBytes" json:"maxBodyBytes"`

	// HTTPS interception
	CADir string `yaml:"caDir" json:"caDir"`

	// Logging
	LogLevel  string `yaml:"logLevel" json:"logLevel"`
	LogFormat string `yaml:"logFormat" json:"logFormat"`
	LogFile   string `yaml:"logFile,omitempty" json:"logFile,omitempty"`

	// Client generation
	ClientName string `yaml:"clientName" json:"clientName"`

	// Sources tracks where each value came from, keyed by YAML name.
	Sources map[string]string `yaml:"-" json:"-"`

	// setFields holds the keys present in a loaded file.
	setFields map[string]bool
}

// Value origins recorded in Config.Sources.
const (
	SourceDefault = "default"
	SourceEnv     = "env"
	SourceGlobal  = "global"
	SourceLocal   = "local"
)

// Defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	// MaxBodyBytesLimit is the largest accepted maxBodyBytes (1 GiB).
	MaxBodyBytesLimit = 1 << 30
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// DefaultCADir returns where the interception CA lives by default:
// $XDG_DATA_HOME/apicap/ca (or ~/.local/share/apicap/ca).
func DefaultCADir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, GlobalConfigDir, "ca")
}

// NewDefault returns a Config holding default values.
func NewDefault() *Config {
	cfg := &Config{
		TargetDomains: slices.Clone(capture.DefaultTargetDomains),
		BaseURL:       capture.DefaultBaseURL,
		MaxBodyBytes:  proxy.DefaultMaxBodySize,
		CADir:         DefaultCADir(),
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
		ClientName:    clientgen.DefaultClassName,
		Sources:       make(map[string]string),
	}
	for _, key := range []string{
		"targetDomains", "excludePaths", "baseUrl", "maxBodyBytes",
		"caDir", "logLevel", "logFormat", "logFile", "clientName",
	} {
		cfg.Sources[key] = SourceDefault
	}
	return cfg
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if len(c.TargetDomains) == 0 {
		return fmt.Errorf("targetDomains must list at least one domain")
	}
	for _, d := range c.TargetDomains {
		if strings.TrimSpace(d) == "" || strings.ContainsAny(d, "/ ") {
			return fmt.Errorf("targetDomains entry %q is not a host name", d)
		}
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("baseUrl %q must be an absolute http(s) URL", c.BaseURL)
		}
	}
	if c.MaxBodyBytes < 1 || c.MaxBodyBytes > MaxBodyBytesLimit {
		return fmt.Errorf("maxBodyBytes %d is out of range (1-%d)", c.MaxBodyBytes, MaxBodyBytesLimit)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("logLevel %q is invalid (use debug, info, warn or error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("logFormat %q is invalid (use text or json)", c.LogFormat)
	}
	if !identifierRe.MatchString(c.ClientName) {
		return fmt.Errorf("clientName %q is not a valid TypeScript identifier", c.ClientName)
	}
	return nil
}

// LoggingConfig maps the logging keys onto a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.LogLevel)
	lc.Format = logging.ParseFormat(c.LogFormat)
	lc.File = c.LogFile
	return lc
}

// Source reports where key's value came from.
func (c *Config) Source(key string) string {
	if s, ok := c.Sources[key]; ok {
		return s
	}
	return SourceDefault
}
