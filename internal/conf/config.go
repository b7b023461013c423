// conf/config.go
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/xferwatch/internal/notification"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig defines a rotating log file.
type LogConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Path     string `mapstructure:"path" yaml:"path"`
	Rotation string `mapstructure:"rotation" yaml:"rotation"` // daily, weekly or size
	MaxSize  int    `mapstructure:"maxsize" yaml:"maxsize"`   // megabytes, used with size rotation
	Compress bool   `mapstructure:"compress" yaml:"compress"`
}

// MainSettings holds process wide settings.
type MainSettings struct {
	Name     string    `mapstructure:"name" yaml:"name"`
	LogLevel string    `mapstructure:"loglevel" yaml:"loglevel"` // debug, info, warn, error
	JSONLogs bool      `mapstructure:"jsonlogs" yaml:"jsonlogs"`
	Log      LogConfig `mapstructure:"log" yaml:"log"`
}

// TransferSettings describes the transfer job being watched.
type TransferSettings struct {
	ProcessName  string        `mapstructure:"processname" yaml:"processname"`   // name of the transfer process, e.g. rsync
	Destination  string        `mapstructure:"destination" yaml:"destination"`   // directory the transfer writes into
	ExpectedSize string        `mapstructure:"expectedsize" yaml:"expectedsize"` // final size, e.g. "120 GB"; empty when unknown
	PollInterval time.Duration `mapstructure:"pollinterval" yaml:"pollinterval"`
	ProgressStep float64       `mapstructure:"progressstep" yaml:"progressstep"` // percent between progress notifications
	StallTimeout time.Duration `mapstructure:"stalltimeout" yaml:"stalltimeout"`
	DiskWarning  float64       `mapstructure:"diskwarning" yaml:"diskwarning"` // destination filesystem usage percent
}

// NotificationSettings configures the notification engine and its providers.
type NotificationSettings struct {
	MinInterval    time.Duration             `mapstructure:"mininterval" yaml:"mininterval"`
	ValidatorTTL   time.Duration             `mapstructure:"validatorttl" yaml:"validatorttl"`
	CleanupTimeout time.Duration             `mapstructure:"cleanuptimeout" yaml:"cleanuptimeout"`
	Tags           []string                  `mapstructure:"tags" yaml:"tags"`
	Log            LogConfig                 `mapstructure:"log" yaml:"log"`
	Providers      map[string]map[string]any `mapstructure:"providers" yaml:"providers"`
}

// ServerSettings configures the status server.
type ServerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Settings contains all configuration options for xferwatch.
type Settings struct {
	Debug        bool                 `mapstructure:"debug" yaml:"debug"`
	Main         MainSettings         `mapstructure:"main" yaml:"main"`
	Transfer     TransferSettings     `mapstructure:"transfer" yaml:"transfer"`
	Notification NotificationSettings `mapstructure:"notification" yaml:"notification"`
	Server       ServerSettings       `mapstructure:"server" yaml:"server"`
	Sentry       SentrySettings       `mapstructure:"sentry" yaml:"sentry"`

	// ConfigFile is the file the settings were read from, empty when running
	// on defaults only.
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// decodeHook lets durations be written as seconds or as Go duration strings
// and lists as comma separated strings, which is what env variables carry.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		notification.SecondsToDurationHook,
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Load reads configFile, or config.yaml from the default search paths when
// configFile is empty, applies environment overrides and validates the result.
// A missing config file is not an error when no explicit file was requested.
func Load(configFile string) (*Settings, error) {
	v, err := initViper(configFile)
	if err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// initViper builds a viper instance with defaults, environment bindings and
// the config file.
func initViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		// Bad env values are reported but do not stop startup; the
		// settings validation below rejects values that cannot work.
		GetLogger().Warn("environment configuration issues", "error", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Info("no config file found, using defaults", "search_paths", configPaths)
			return v, nil
		}
		return nil, fmt.Errorf("fatal error reading config file: %w", err)
	}
	return v, nil
}

// DefaultConfig returns the annotated default configuration file.
func DefaultConfig() ([]byte, error) {
	return fs.ReadFile(configFiles, ConfigFileName)
}

// WriteDefaultConfig writes the default configuration to path. An existing
// file is only replaced when force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := DefaultConfig()
	if err != nil {
		return fmt.Errorf("error reading default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	return writeFileAtomic(path, data)
}

// GetSettings returns the settings loaded last, nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// MarshalYAML renders settings the way they would be written to disk.
// Durations are written as duration strings so Load reads them back as is.
func MarshalYAML(settings *Settings) ([]byte, error) {
	return yaml.Marshal(yamlValue(reflect.ValueOf(settings)))
}

// yamlValue converts v into plain maps and slices keyed by yaml tag names,
// rendering time.Duration with String. yaml.v3 would otherwise write
// nanosecond integers, which the seconds decode hook reads back wrong.
func yamlValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	if v.Type() == reflect.TypeFor[time.Duration]() {
		return time.Duration(v.Int()).String()
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return yamlValue(v.Elem())
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		for i := range v.NumField() {
			field := v.Type().Field(i)
			name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
			if name == "-" || !field.IsExported() {
				continue
			}
			if name == "" {
				name = strings.ToLower(field.Name)
			}
			out[name] = yamlValue(v.Field(i))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = yamlValue(iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := range v.Len() {
			out[i] = yamlValue(v.Index(i))
		}
		return out
	default:
		return v.Interface()
	}
}

// SaveYAMLConfig writes settings to configPath atomically. Comments and
// ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := MarshalYAML(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return writeFileAtomic(configPath, yamlData)
}

func writeFileAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempFileName, path); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// ProviderConfigs returns the raw config map of every configured provider
// keyed by provider id. The maps are ready for Registry.RegisterConfig.
func (s *Settings) ProviderConfigs() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.Notification.Providers))
	for id, cfg := range s.Notification.Providers {
		if cfg == nil {
			cfg = map[string]any{}
		}
		out[id] = cfg
	}
	return out
}
