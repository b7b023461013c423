// conf/utils.go various util functions for configuration package
package conf

import (
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/tphakala/xferwatch/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file only that directory is
// returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", AppName),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", AppName),
			filepath.Join("/etc", AppName),
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, ConfigFileName)); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// DefaultConfigFile is where `config init` writes when no path is given.
func DefaultConfigFile() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}
	if runtime.GOOS == osWindows {
		return filepath.Join(homeDir, "AppData", "Roaming", AppName, ConfigFileName), nil
	}
	return filepath.Join(homeDir, ".config", AppName, ConfigFileName), nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
