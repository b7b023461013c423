package notification

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tphakala/xferwatch/internal/errors"
)

// ProviderConfig is the decoded configuration of one provider. Engine keys
// are typed; adapter specific keys stay in Options.
type ProviderConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	RateLimit     int            `mapstructure:"rate_limit"`
	RatePeriod    time.Duration  `mapstructure:"rate_period"`
	RetryAttempts int            `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration  `mapstructure:"retry_delay"`
	Tags          []string       `mapstructure:"tags"`
	Options       map[string]any `mapstructure:",remain"`
}

// DefaultConfigMap returns the engine defaults in raw map form, the base every
// provider config is merged onto.
func DefaultConfigMap() map[string]any {
	return map[string]any{
		KeyEnabled:       true,
		KeyRateLimit:     30,
		KeyRatePeriod:    60,
		KeyRetryAttempts: 3,
		KeyRetryDelay:    1.0,
		KeyTags:          []string{},
	}
}

// Option returns an adapter specific option as a string.
func (c ProviderConfig) Option(key string) string {
	switch v := c.Options[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// OptionInt returns an adapter specific integer option, or def when absent
// or not numeric.
func (c ProviderConfig) OptionInt(key string, def int) int {
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// HasTag reports whether the config carries tag.
func (c ProviderConfig) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// retryPolicy derives the retry policy described by the config.
func (c ProviderConfig) retryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:         c.RetryAttempts,
		BaseDelay:        c.RetryDelay,
		MaxDelay:         MaxRetryDelay,
		DisableThreshold: DefaultDisableThreshold,
	}
}

// DecodeProviderConfig merges raw onto the engine defaults and decodes the
// result. Durations accept seconds as numbers or Go duration strings.
func DecodeProviderConfig(raw map[string]any) (ProviderConfig, error) {
	merged := deepMerge(DefaultConfigMap(), raw)

	var cfg ProviderConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       SecondsToDurationHook,
	})
	if err != nil {
		return ProviderConfig{}, err
	}
	if err := decoder.Decode(merged); err != nil {
		return ProviderConfig{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return cfg, nil
}

// SecondsToDurationHook lets configs say `rate_period: 60` or
// `retry_delay: 0.5` meaning seconds, as well as "1m30s".
func SecondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeFor[time.Duration]() {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case float32:
		return time.Duration(float64(v) * float64(time.Second)), nil
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
		return time.ParseDuration(v)
	}
	return data, nil
}

// ValidateProviderConfig decodes raw and checks the engine level keys.
// Adapter keys are left to the adapter validators.
func ValidateProviderConfig(raw map[string]any) error {
	cfg, err := DecodeProviderConfig(raw)
	if err != nil {
		return err
	}
	return validateProviderConfig(cfg)
}

// validateProviderConfig enforces the engine level constraints shared by all
// providers.
func validateProviderConfig(cfg ProviderConfig) error {
	switch {
	case cfg.RateLimit < 1:
		return errors.Newf("rate_limit must be at least 1, got %d", cfg.RateLimit).
			Component(componentName).Category(errors.CategoryValidation).Build()
	case cfg.RatePeriod <= 0:
		return errors.Newf("rate_period must be positive, got %s", cfg.RatePeriod).
			Component(componentName).Category(errors.CategoryValidation).Build()
	case cfg.RetryAttempts < 0 || cfg.RetryAttempts > 10:
		return errors.Newf("retry_attempts must be between 0 and 10, got %d", cfg.RetryAttempts).
			Component(componentName).Category(errors.CategoryValidation).Build()
	case cfg.RetryDelay < 0 || cfg.RetryDelay > MaxRetryDelay:
		return errors.Newf("retry_delay must be between 0 and %s, got %s", MaxRetryDelay, cfg.RetryDelay).
			Component(componentName).Category(errors.CategoryValidation).Build()
	}
	return nil
}

// deepMerge returns a new map with src merged onto dst. Nested maps merge
// recursively, every other value in src replaces the one in dst. Neither
// input is modified.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = deepCopyValue(v)
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = deepMerge(dstMap, srcMap)
			continue
		}
		out[k] = deepCopyValue(v)
	}
	return out
}
