// Package pushproviders holds the concrete delivery adapters: Discord and
// Telegram bots, generic webhooks, shoutrrr URLs, MQTT and local scripts.
// Each adapter implements notification.Provider; rate limiting, retries and
// state tracking stay in the engine.
package pushproviders

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/xferwatch/internal/httpclient"
	"github.com/tphakala/xferwatch/internal/logging"
	"github.com/tphakala/xferwatch/internal/notification"
)

var (
	logOnce sync.Once
	pkgLog  *slog.Logger
)

func getLogger() *slog.Logger {
	logOnce.Do(func() {
		pkgLog = logging.ForService("pushproviders")
	})
	return pkgLog
}

// Option customises an adapter at construction.
type Option func(*adapterOptions)

type adapterOptions struct {
	transport http.RoundTripper
}

// WithTransport routes the adapter's HTTP traffic through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *adapterOptions) { o.transport = rt }
}

func applyOptions(opts []Option) adapterOptions {
	var o adapterOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// httpOptions are the transport keys shared by the HTTP based adapters.
type httpOptions struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	TransportRetries  int           `mapstructure:"transport_retries"`
	MaxRetryWait      time.Duration `mapstructure:"max_retry_wait"`
}

func defaultHTTPOptions() httpOptions {
	return httpOptions{
		Timeout:           10 * time.Second,
		RequestsPerSecond: 1,
		TransportRetries:  1,
		MaxRetryWait:      10 * time.Second,
	}
}

func decodeHTTPOptions(cfg notification.ProviderConfig) (httpOptions, error) {
	o := defaultHTTPOptions()
	if err := decodeOptions(cfg, &o); err != nil {
		return o, err
	}
	if o.TransportRetries < 0 || o.TransportRetries > 5 {
		return o, fmt.Errorf("transport_retries must be between 0 and 5, got %d", o.TransportRetries)
	}
	return o, nil
}

func (o httpOptions) client(transport http.RoundTripper) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Timeout:           o.Timeout,
		RequestsPerSecond: o.RequestsPerSecond,
		Burst:             1,
		Transport:         transport,
	})
}

// decodeOptions decodes the adapter specific keys of cfg into out. Durations
// accept seconds or Go duration strings.
func decodeOptions(cfg notification.ProviderConfig, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			notification.SecondsToDurationHook,
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(cfg.Options)
}

func requireHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", field)
	}
	return nil
}

var titleCaser = cases.Title(language.English)

// heading is the short title shown above a message, e.g. "Progress" or the
// metadata "title" when given.
func heading(msg *notification.Message) string {
	if t := msg.MetadataString("title"); t != "" {
		return t
	}
	return titleCaser.String(strings.ToLower(string(msg.Type())))
}

// metadataLines renders metadata as sorted "key: value" lines, skipping the
// title that is already shown.
func metadataLines(msg *notification.Message) []string {
	md := msg.Metadata()
	keys := slices.Sorted(maps.Keys(md))
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "title" || k == "priority" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %v", k, md[k]))
	}
	return lines
}

// truncate shortens s to at most limit runes, marking the cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}
