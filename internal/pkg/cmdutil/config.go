// Package cmdutil provides shared utilities for CLI command implementations.
package cmdutil

import (
	"fmt"

	"github.com/spf13/viper"
)

// GetStringConfig returns the config value for key, or flagValue if the flag was not set.
// Flag values take precedence over config file values.
func GetStringConfig(key, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(key)
}

// GetStringSliceConfig returns flagValue if it is non-empty, otherwise the
// config value for key.
func GetStringSliceConfig(key string, flagValue []string) []string {
	if len(flagValue) > 0 {
		return flagValue
	}
	if configValue := viper.GetStringSlice(key); len(configValue) > 0 {
		return configValue
	}
	return flagValue
}

// GetIntConfig returns the config value for key, or flagValue if unset.
func GetIntConfig(key string, flagValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return flagValue
}

// GetBoolConfig returns the config value for key, or flagValue if unset.
func GetBoolConfig(key string, flagValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return flagValue
}

// GetFloat64Config returns the config value for key, or flagValue if unset.
func GetFloat64Config(key string, flagValue float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return flagValue
}

// ParseSizeString parses a size string (e.g. "100M", "1G") and returns bytes.
func ParseSizeString(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	lastChar := s[len(s)-1]
	var multiplier int64 = 1

	switch lastChar {
	case 'K', 'k':
		multiplier = 1024
		s = s[:len(s)-1]
	case 'M', 'm':
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	case 'G', 'g':
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}

	var value int64
	if _, err := fmt.Sscanf(s, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	return value * multiplier, nil
}
