package pushproviders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/tphakala/xferwatch/internal/httpclient"
	"github.com/tphakala/xferwatch/internal/notification"
)

// Webhook auth types.
const (
	authNone   = "none"
	authBearer = "bearer"
	authBasic  = "basic"
	authCustom = "custom"
)

type webhookAuth struct {
	Type   string `mapstructure:"type"`
	Token  string `mapstructure:"token"`
	User   string `mapstructure:"user"`
	Pass   string `mapstructure:"pass"`
	Header string `mapstructure:"header"`
	Value  string `mapstructure:"value"`
}

type webhookOptions struct {
	http httpOptions

	URL     string            `mapstructure:"url"`
	URLs    []string          `mapstructure:"urls"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
	Auth    webhookAuth       `mapstructure:"auth"`
}

// endpoints returns url followed by urls, without duplicates.
func (o webhookOptions) endpoints() []string {
	var out []string
	for _, u := range append([]string{o.URL}, o.URLs...) {
		u = strings.TrimSpace(u)
		if u != "" && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

// WebhookPayload is the JSON document posted to every endpoint.
type WebhookPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Level     string         `json:"level"`
	Priority  string         `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Text      string         `json:"text"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// Webhook posts JSON to one or more HTTP endpoints. Endpoints are tried in
// order and the first success wins.
type Webhook struct {
	name   string
	opts   webhookOptions
	client *httpclient.Client
}

func decodeWebhookOptions(cfg notification.ProviderConfig) (webhookOptions, error) {
	o := webhookOptions{Method: http.MethodPost}
	var err error
	if o.http, err = decodeHTTPOptions(cfg); err != nil {
		return o, err
	}
	err = decodeOptions(cfg, &o)
	o.Method = strings.ToUpper(strings.TrimSpace(o.Method))
	o.Auth.Type = strings.ToLower(strings.TrimSpace(o.Auth.Type))
	if o.Auth.Type == "" {
		o.Auth.Type = authNone
	}
	return o, err
}

// NewWebhook builds the adapter.
func NewWebhook(name string, cfg notification.ProviderConfig, opts ...Option) (*Webhook, error) {
	o, err := decodeWebhookOptions(cfg)
	if err != nil {
		return nil, err
	}
	ao := applyOptions(opts)
	return &Webhook{name: name, opts: o, client: o.http.client(ao.transport)}, nil
}

// WebhookValidator checks endpoints, method and auth settings.
var WebhookValidator = notification.ChainValidators("webhook", func(cfg notification.ProviderConfig) error {
	o, err := decodeWebhookOptions(cfg)
	if err != nil {
		return err
	}
	endpoints := o.endpoints()
	if len(endpoints) == 0 {
		return errors.New("at least one of url or urls is required")
	}
	for i, u := range endpoints {
		if err := requireHTTPURL(fmt.Sprintf("endpoint %d", i), u); err != nil {
			return err
		}
	}
	switch o.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fmt.Errorf("method must be POST, PUT or PATCH, got %s", o.Method)
	}
	return validateAuth(o.Auth)
})

func validateAuth(a webhookAuth) error {
	switch a.Type {
	case authNone:
		return nil
	case authBearer:
		if a.Token == "" {
			return errors.New("bearer auth requires token")
		}
	case authBasic:
		if a.User == "" || a.Pass == "" {
			return errors.New("basic auth requires user and pass")
		}
	case authCustom:
		if a.Header == "" || strings.ContainsAny(a.Header, "\r\n:") {
			return errors.New("custom auth requires a valid header name")
		}
		if a.Value == "" || strings.ContainsAny(a.Value, "\r\n") {
			return errors.New("custom auth requires a single line value")
		}
	default:
		return fmt.Errorf("unsupported auth type %q", a.Type)
	}
	return nil
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Connect(context.Context) error { return nil }

func (w *Webhook) Disconnect(context.Context) error {
	w.client.Close()
	return nil
}

func (w *Webhook) headers() http.Header {
	h := http.Header{}
	for k, v := range w.opts.Headers {
		h.Set(k, v)
	}
	switch w.opts.Auth.Type {
	case authBearer:
		h.Set("Authorization", "Bearer "+w.opts.Auth.Token)
	case authBasic:
		req := &http.Request{Header: h}
		req.SetBasicAuth(w.opts.Auth.User, w.opts.Auth.Pass)
	case authCustom:
		h.Set(w.opts.Auth.Header, w.opts.Auth.Value)
	}
	return h
}

// Send tries every endpoint until one accepts the payload. Cancellation stops
// the walk immediately. When every endpoint fails, the last endpoint's error
// is returned so its status and retry hint reach the engine.
func (w *Webhook) Send(ctx context.Context, msg *notification.Message) error {
	payload := WebhookPayload{
		ID:        msg.ID(),
		Type:      string(msg.Type()),
		Level:     string(msg.Level()),
		Priority:  string(msg.Priority()),
		Title:     heading(msg),
		Message:   msg.Text(),
		Text:      html2text.HTML2Text(msg.Text()),
		Timestamp: msg.CreatedAt().UTC().Format(time.RFC3339),
		Metadata:  msg.Metadata(),
	}
	header := w.headers()

	var lastErr error
	for i, endpoint := range w.opts.endpoints() {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := doWithRetry(ctx, w.name, w.opts.http, func(ctx context.Context) (*httpclient.Response, error) {
			return w.client.SendJSON(ctx, w.opts.Method, endpoint, payload, header)
		})
		if err == nil {
			return nil
		}
		if notification.IsCancellation(err) && ctx.Err() != nil {
			return ctx.Err()
		}
		getLogger().Debug("webhook endpoint failed", "provider", w.name, "endpoint", i, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		return permanent(w.name, errors.New("no webhook endpoints configured"))
	}
	return lastErr
}
