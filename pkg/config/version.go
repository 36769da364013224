package config

import (
	"fmt"
	"strings"
)

// CurrentVersion is the configuration format written by this release.
// Files with the same major version are accepted.
const CurrentVersion = "1.0"

// VersionInfo is the first pass over a config file
type VersionInfo struct {
	Version string `yaml:"version"`
}

func major(v string) string {
	m, _, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	return m
}

// IsCompatible reports whether a file version can be parsed
func IsCompatible(version string) bool {
	return version != "" && major(version) == major(CurrentVersion)
}

// ValidateVersion rejects files written for another major version
func ValidateVersion(fileVersion string) error {
	if fileVersion == "" {
		return fmt.Errorf("configuration file missing 'version' field, expected %s", CurrentVersion)
	}
	if !IsCompatible(fileVersion) {
		return fmt.Errorf("incompatible configuration version: %s (supported: %s.x)", fileVersion, major(CurrentVersion))
	}
	return nil
}
