package config

import "slices"

// MergeConfig merges source into target and records sourceType for every
// value taken. A file-loaded source contributes exactly the keys it set, so
// an explicit empty list clears a default. A programmatic source contributes
// its non-zero values.
func MergeConfig(target, source *Config, sourceType string) {
	if source == nil {
		return
	}
	if target.Sources == nil {
		target.Sources = make(map[string]string)
	}

	if isSet(source, "targetDomains", len(source.TargetDomains) > 0) {
		target.TargetDomains = slices.Clone(source.TargetDomains)
		target.Sources["targetDomains"] = sourceType
	}
	if isSet(source, "excludePaths", len(source.ExcludePaths) > 0) {
		target.ExcludePaths = slices.Clone(source.ExcludePaths)
		target.Sources["excludePaths"] = sourceType
	}
	if isSet(source, "maxBodyBytes", source.MaxBodyBytes != 0) {
		target.MaxBodyBytes = source.MaxBodyBytes
		target.Sources["maxBodyBytes"] = sourceType
	}

	for _, s := range []struct {
		key      string
		src, dst *string
	}{
		{"baseUrl", &source.BaseURL, &target.BaseURL},
		{"caDir", &source.CADir, &target.CADir},
		{"logLevel", &source.LogLevel, &target.LogLevel},
		{"logFormat", &source.LogFormat, &target.LogFormat},
		{"logFile", &source.LogFile, &target.LogFile},
		{"clientName", &source.ClientName, &target.ClientName},
	} {
		if isSet(source, s.key, *s.src != "") {
			*s.dst = *s.src
			target.Sources[s.key] = sourceType
		}
	}
}

// isSet reports whether key was given in source. Without file information the
// caller's non-zero check decides.
func isSet(source *Config, key string, nonZero bool) bool {
	if source.setFields != nil {
		return source.setFields[key]
	}
	return nonZero
}
