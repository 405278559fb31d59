package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvTargetDomains = "APICAP_TARGET_DOMAINS"
	EnvExcludePaths  = "APICAP_EXCLUDE_PATHS"
	EnvBaseURL       = "APICAP_BASE_URL"
	EnvMaxBodyBytes  = "APICAP_MAX_BODY_BYTES"
	EnvCADir         = "APICAP_CA_DIR"
	EnvLogLevel      = "APICAP_LOG_LEVEL"
	EnvLogFormat     = "APICAP_LOG_FORMAT"
	EnvLogFile       = "APICAP_LOG_FILE"
	EnvClientName    = "APICAP_CLIENT_NAME"
)

// LoadEnvConfig applies the environment variables that are set. List values
// are comma separated.
func LoadEnvConfig(cfg *Config) error {
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}

	if v := os.Getenv(EnvTargetDomains); v != "" {
		cfg.TargetDomains = splitList(v)
		cfg.Sources["targetDomains"] = SourceEnv
	}
	if v := os.Getenv(EnvExcludePaths); v != "" {
		cfg.ExcludePaths = splitList(v)
		cfg.Sources["excludePaths"] = SourceEnv
	}
	if v := os.Getenv(EnvMaxBodyBytes); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return &ConfigError{Path: EnvMaxBodyBytes, Message: "expected an integer, got " + strconv.Quote(v)}
		}
		cfg.MaxBodyBytes = n
		cfg.Sources["maxBodyBytes"] = SourceEnv
	}

	for _, s := range []struct {
		env, key string
		dst      *string
	}{
		{EnvBaseURL, "baseUrl", &cfg.BaseURL},
		{EnvCADir, "caDir", &cfg.CADir},
		{EnvLogLevel, "logLevel", &cfg.LogLevel},
		{EnvLogFormat, "logFormat", &cfg.LogFormat},
		{EnvLogFile, "logFile", &cfg.LogFile},
		{EnvClientName, "clientName", &cfg.ClientName},
	} {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
			cfg.Sources[s.key] = SourceEnv
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
