package pushproviders

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/xferwatch/internal/notification"
)

type shoutrrrOptions struct {
	URLs    []string      `mapstructure:"urls"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (o shoutrrrOptions) all() []string {
	out := make([]string, 0, len(o.URLs)+1)
	if o.URL != "" {
		out = append(out, o.URL)
	}
	for _, u := range o.URLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func decodeShoutrrrOptions(cfg notification.ProviderConfig) (shoutrrrOptions, error) {
	o := shoutrrrOptions{Timeout: 10 * time.Second}
	err := decodeOptions(cfg, &o)
	return o, err
}

// newSender builds a shoutrrr router for urls. Errors are scrubbed because
// shoutrrr echoes URLs, which carry tokens.
func newSender(urls []string, timeout time.Duration) (*router.ServiceRouter, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one of url or urls is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.New(scrubURLs(err.Error(), urls))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))
	return sender, nil
}

// ShoutrrrValidator parses every URL through shoutrrr's router.
var ShoutrrrValidator = notification.ChainValidators("shoutrrr", func(cfg notification.ProviderConfig) error {
	o, err := decodeShoutrrrOptions(cfg)
	if err != nil {
		return err
	}
	_, err = newSender(o.all(), o.Timeout)
	return err
})

// Shoutrrr delivers through any service URL shoutrrr understands, such as
// discord://, telegram:// or slack://.
type Shoutrrr struct {
	name   string
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrr builds the adapter and its router.
func NewShoutrrr(name string, cfg notification.ProviderConfig) (*Shoutrrr, error) {
	o, err := decodeShoutrrrOptions(cfg)
	if err != nil {
		return nil, err
	}
	sender, err := newSender(o.all(), o.Timeout)
	if err != nil {
		return nil, err
	}
	return &Shoutrrr{name: name, urls: o.all(), sender: sender}, nil
}

func (s *Shoutrrr) Name() string { return s.name }

func (s *Shoutrrr) Connect(context.Context) error { return nil }

func (s *Shoutrrr) Disconnect(context.Context) error { return nil }

// Send passes the message to every configured service. The router applies
// its own timeout, so ctx is only checked up front.
func (s *Shoutrrr) Send(ctx context.Context, msg *notification.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := types.Params{}
	params.SetTitle(heading(msg))

	body := msg.Text()
	if lines := metadataLines(msg); len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}

	var errs []error
	for _, err := range s.sender.Send(body, &params) {
		if err != nil {
			errs = append(errs, errors.New(scrubURLs(err.Error(), s.urls)))
		}
	}
	if len(errs) > 0 {
		return notification.NewTransportError(s.name, fmt.Errorf("%d of %d services failed: %w", len(errs), len(s.urls), errors.Join(errs...)))
	}
	return nil
}

// scrubURLs replaces the secret part of each URL found in s.
func scrubURLs(s string, urls []string) string {
	for _, u := range urls {
		scheme, rest, ok := strings.Cut(u, "://")
		if !ok || rest == "" {
			continue
		}
		s = strings.ReplaceAll(s, u, scheme+"://<redacted>")
		s = strings.ReplaceAll(s, rest, "<redacted>")
	}
	return s
}
