package pushproviders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/k3a/html2text"

	"github.com/tphakala/xferwatch/internal/httpclient"
	"github.com/tphakala/xferwatch/internal/notification"
)

const (
	telegramAPI        = "https://api.telegram.org"
	telegramMaxMessage = 4096
	parseModeHTML      = "HTML"
)

type telegramOptions struct {
	http httpOptions

	BotToken            string `mapstructure:"bot_token"`
	ChatID              string `mapstructure:"chat_id"`
	APIBase             string `mapstructure:"api_base"`
	ParseMode           string `mapstructure:"parse_mode"`
	DisableNotification bool   `mapstructure:"disable_notification"`
}

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Telegram sends messages through the Bot API sendMessage method.
type Telegram struct {
	name   string
	opts   telegramOptions
	client *httpclient.Client
}

func decodeTelegramOptions(cfg notification.ProviderConfig) (telegramOptions, error) {
	o := telegramOptions{APIBase: telegramAPI, ParseMode: parseModeHTML}
	var err error
	if o.http, err = decodeHTTPOptions(cfg); err != nil {
		return o, err
	}
	err = decodeOptions(cfg, &o)
	o.APIBase = strings.TrimRight(o.APIBase, "/")
	return o, err
}

// NewTelegram builds the adapter.
func NewTelegram(name string, cfg notification.ProviderConfig, opts ...Option) (*Telegram, error) {
	o, err := decodeTelegramOptions(cfg)
	if err != nil {
		return nil, err
	}
	ao := applyOptions(opts)
	return &Telegram{name: name, opts: o, client: o.http.client(ao.transport)}, nil
}

// TelegramValidator checks token, chat id and API base.
var TelegramValidator = notification.ChainValidators("telegram", func(cfg notification.ProviderConfig) error {
	o, err := decodeTelegramOptions(cfg)
	if err != nil {
		return err
	}
	switch {
	case o.BotToken == "":
		return errors.New("bot_token is required")
	case !strings.Contains(o.BotToken, ":"):
		return errors.New("bot_token must look like <id>:<secret>")
	case o.ChatID == "":
		return errors.New("chat_id is required")
	}
	return requireHTTPURL("api_base", o.APIBase)
})

func (tg *Telegram) Name() string { return tg.name }

func (tg *Telegram) Connect(context.Context) error { return nil }

func (tg *Telegram) Disconnect(context.Context) error {
	tg.client.Close()
	return nil
}

func (tg *Telegram) endpoint() string {
	return fmt.Sprintf("%s/bot%s/sendMessage", tg.opts.APIBase, tg.opts.BotToken)
}

// Send delivers the message. When Telegram rejects the markup the message is
// resent once as plain text.
func (tg *Telegram) Send(ctx context.Context, msg *notification.Message) error {
	req := telegramRequest{
		ChatID:                tg.opts.ChatID,
		Text:                  truncate(tg.render(msg), telegramMaxMessage),
		ParseMode:             tg.opts.ParseMode,
		DisableWebPagePreview: true,
		DisableNotification:   tg.opts.DisableNotification,
	}

	err := tg.post(ctx, req)
	if err == nil || req.ParseMode == "" || !isEntityParseError(err) {
		return err
	}

	getLogger().Warn("telegram rejected markup, resending as plain text", "provider", tg.name)
	req.ParseMode = ""
	req.Text = truncate(html2text.HTML2Text(tg.render(msg)), telegramMaxMessage)
	return tg.post(ctx, req)
}

func (tg *Telegram) post(ctx context.Context, req telegramRequest) error {
	resp, err := doWithRetry(ctx, tg.name, tg.opts.http, func(ctx context.Context) (*httpclient.Response, error) {
		return tg.client.PostJSON(ctx, tg.endpoint(), req, nil)
	})
	if err != nil {
		return redactToken(err, tg.opts.BotToken)
	}

	var body telegramResponse
	if err := json.Unmarshal(resp.Body, &body); err == nil && !body.OK {
		return &notification.TransportError{
			Provider:   tg.name,
			StatusCode: body.ErrorCode,
			Err:        fmt.Errorf("telegram: %s", body.Description),
		}
	}
	return nil
}

// render builds the HTML message text. The text itself may carry markup.
func (tg *Telegram) render(msg *notification.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n%s", heading(msg), msg.Text())
	for _, line := range metadataLines(msg) {
		b.WriteString("\n<i>")
		b.WriteString(line)
		b.WriteString("</i>")
	}
	return b.String()
}

func isEntityParseError(err error) bool {
	var te *notification.TransportError
	if !errors.As(err, &te) || te.StatusCode != 400 {
		return false
	}
	return strings.Contains(strings.ToLower(te.Error()), "can't parse entities")
}

// redactToken keeps the bot token out of URL errors.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	var te *notification.TransportError
	if errors.As(err, &te) {
		return &notification.TransportError{
			Provider:   te.Provider,
			StatusCode: te.StatusCode,
			RetryAfter: te.RetryAfter,
			Retryable:  te.Retryable,
			Err:        errors.New(strings.ReplaceAll(te.Err.Error(), token, "<redacted>")),
		}
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
