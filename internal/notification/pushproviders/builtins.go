package pushproviders

import (
	"github.com/tphakala/xferwatch/internal/notification"
)

// Builtin provider ids.
const (
	IDDiscord  = "discord"
	IDTelegram = "telegram"
	IDWebhook  = "webhook"
	IDShoutrrr = "shoutrrr"
	IDMQTT     = "mqtt"
	IDScript   = "script"
)

func wrap[P notification.Provider](build func(string, notification.ProviderConfig) (P, error)) notification.ProviderConstructor {
	return func(name string, cfg notification.ProviderConfig) (notification.Provider, error) {
		p, err := build(name, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// RegisterBuiltins registers every adapter of this package with reg. opts
// apply to the HTTP based adapters.
func RegisterBuiltins(reg *notification.Registry, opts ...Option) error {
	builtins := []struct {
		id        string
		construct notification.ProviderConstructor
		validator notification.ValidatorFactory
	}{
		{IDDiscord, wrap(func(n string, c notification.ProviderConfig) (*Discord, error) { return NewDiscord(n, c, opts...) }), DiscordValidator},
		{IDTelegram, wrap(func(n string, c notification.ProviderConfig) (*Telegram, error) { return NewTelegram(n, c, opts...) }), TelegramValidator},
		{IDWebhook, wrap(func(n string, c notification.ProviderConfig) (*Webhook, error) { return NewWebhook(n, c, opts...) }), WebhookValidator},
		{IDShoutrrr, wrap(NewShoutrrr), ShoutrrrValidator},
		{IDMQTT, wrap(NewMQTT), MQTTValidator},
		{IDScript, wrap(NewScript), ScriptValidator},
	}
	for _, b := range builtins {
		if err := reg.Register(b.id, b.construct, b.validator); err != nil {
			return err
		}
	}
	return nil
}
