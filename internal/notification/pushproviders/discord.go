package pushproviders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/xferwatch/internal/httpclient"
	"github.com/tphakala/xferwatch/internal/notification"
)

const (
	discordMaxContent = 2000
	discordMaxFields  = 25
	discordFieldValue = 1024
)

// Embed colours per level.
var discordColors = map[notification.Level]int{
	notification.LevelDebug:    0x95a5a6,
	notification.LevelInfo:     0x3498db,
	notification.LevelWarning:  0xf1c40f,
	notification.LevelError:    0xe74c3c,
	notification.LevelCritical: 0x8e0000,
}

type discordOptions struct {
	http httpOptions

	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
	AvatarURL  string `mapstructure:"avatar_url"`
}

type discordPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Content   string         `json:"content"`
	Embeds    []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Timestamp string         `json:"timestamp"`
	Fields    []discordField `json:"fields,omitempty"`
	Footer    *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Discord posts messages to a Discord channel webhook.
type Discord struct {
	name   string
	opts   discordOptions
	client *httpclient.Client
}

func decodeDiscordOptions(cfg notification.ProviderConfig) (discordOptions, error) {
	o := discordOptions{Username: "xferwatch"}
	var err error
	if o.http, err = decodeHTTPOptions(cfg); err != nil {
		return o, err
	}
	err = decodeOptions(cfg, &o)
	return o, err
}

// NewDiscord builds the adapter. The webhook URL is checked by
// DiscordValidator, not here.
func NewDiscord(name string, cfg notification.ProviderConfig, opts ...Option) (*Discord, error) {
	o, err := decodeDiscordOptions(cfg)
	if err != nil {
		return nil, err
	}
	ao := applyOptions(opts)
	return &Discord{name: name, opts: o, client: o.http.client(ao.transport)}, nil
}

// DiscordValidator checks the webhook URL.
var DiscordValidator = notification.ChainValidators("discord", func(cfg notification.ProviderConfig) error {
	o, err := decodeDiscordOptions(cfg)
	if err != nil {
		return err
	}
	return requireHTTPURL("webhook_url", o.WebhookURL)
})

func (d *Discord) Name() string { return d.name }

func (d *Discord) Connect(context.Context) error { return nil }

func (d *Discord) Disconnect(context.Context) error {
	d.client.Close()
	return nil
}

// Send posts the message. 429 responses carry their retry hint in the
// returned TransportError.
func (d *Discord) Send(ctx context.Context, msg *notification.Message) error {
	payload := d.payload(msg)
	_, err := doWithRetry(ctx, d.name, d.opts.http, func(ctx context.Context) (*httpclient.Response, error) {
		return d.client.PostJSON(ctx, d.opts.WebhookURL, payload, nil)
	})
	return err
}

func (d *Discord) payload(msg *notification.Message) discordPayload {
	content := fmt.Sprintf("**%s**\n%s", heading(msg), msg.Text())

	embed := discordEmbed{
		Title:     fmt.Sprintf("%s / %s", msg.Level(), msg.Priority()),
		Color:     discordColors[msg.Level()],
		Timestamp: msg.CreatedAt().UTC().Format(time.RFC3339),
		Footer:    &discordFooter{Text: msg.ID()},
	}
	for _, line := range metadataLines(msg) {
		if len(embed.Fields) == discordMaxFields {
			break
		}
		name, value, _ := strings.Cut(line, ": ")
		embed.Fields = append(embed.Fields, discordField{
			Name:   name,
			Value:  truncate(value, discordFieldValue),
			Inline: true,
		})
	}

	return discordPayload{
		Username:  d.opts.Username,
		AvatarURL: d.opts.AvatarURL,
		Content:   truncate(content, discordMaxContent),
		Embeds:    []discordEmbed{embed},
	}
}
