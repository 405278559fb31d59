// Package config provides configuration types and loading for the apicap CLI.
//
// Values are layered with the following precedence (highest to lowest):
//
//  1. Environment variables (APICAP_* prefix, optionally from a .env file)
//  2. Local config file (.apicaprc.yaml in the current directory)
//  3. Global config file ($XDG_CONFIG_HOME/apicap/config.yaml)
//  4. Default values
//
// The listening port and the capture file are command-line flags only and
// are not part of this package. Config.Sources records where each value came
// from so that misconfigurations can be traced.
package config
