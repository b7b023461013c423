package pushproviders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tphakala/xferwatch/internal/notification"
)

const (
	scriptInputEnv  = "env"
	scriptInputJSON = "json"
	scriptInputBoth = "both"
	maxScriptOutput = 512
)

type scriptOptions struct {
	Command     string            `mapstructure:"command"`
	Args        []string          `mapstructure:"args"`
	Env         map[string]string `mapstructure:"env"`
	InputFormat string            `mapstructure:"input_format"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

func decodeScriptOptions(cfg notification.ProviderConfig) (scriptOptions, error) {
	o := scriptOptions{InputFormat: scriptInputEnv, Timeout: 30 * time.Second}
	err := decodeOptions(cfg, &o)
	o.InputFormat = strings.ToLower(strings.TrimSpace(o.InputFormat))
	return o, err
}

// ScriptValidator checks that the command resolves and the input format is
// known.
var ScriptValidator = notification.ChainValidators("script", func(cfg notification.ProviderConfig) error {
	o, err := decodeScriptOptions(cfg)
	if err != nil {
		return err
	}
	if strings.TrimSpace(o.Command) == "" {
		return errors.New("command is required")
	}
	if _, err := exec.LookPath(o.Command); err != nil {
		return fmt.Errorf("command %q: %w", o.Command, err)
	}
	switch o.InputFormat {
	case scriptInputEnv, scriptInputJSON, scriptInputBoth:
		return nil
	}
	return fmt.Errorf("input_format must be env, json or both, got %q", o.InputFormat)
})

// Script runs a local command per message. The message is passed in
// XFERWATCH_* environment variables and, depending on input_format, as JSON
// on stdin.
type Script struct {
	name string
	opts scriptOptions
}

// NewScript builds the adapter.
func NewScript(name string, cfg notification.ProviderConfig) (*Script, error) {
	o, err := decodeScriptOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &Script{name: name, opts: o}, nil
}

func (s *Script) Name() string { return s.name }

func (s *Script) Connect(context.Context) error { return nil }

func (s *Script) Disconnect(context.Context) error { return nil }

func (s *Script) environ(msg *notification.Message) []string {
	env := append(os.Environ(),
		"XFERWATCH_ID="+msg.ID(),
		"XFERWATCH_TYPE="+string(msg.Type()),
		"XFERWATCH_LEVEL="+string(msg.Level()),
		"XFERWATCH_PRIORITY="+string(msg.Priority()),
		"XFERWATCH_TITLE="+heading(msg),
		"XFERWATCH_MESSAGE="+msg.Text(),
		"XFERWATCH_TIMESTAMP="+msg.CreatedAt().UTC().Format(time.RFC3339),
	)
	if md := msg.Metadata(); len(md) > 0 {
		if b, err := json.Marshal(md); err == nil {
			env = append(env, "XFERWATCH_METADATA_JSON="+string(b))
		}
	}
	for k, v := range s.opts.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Send runs the command. A non-zero exit is a permanent failure; failing to
// start or timing out is retryable.
func (s *Script) Send(ctx context.Context, msg *notification.Message) error {
	runCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, s.opts.Command, s.opts.Args...)
	cmd.Env = s.environ(msg)
	if s.opts.InputFormat == scriptInputJSON || s.opts.InputFormat == scriptInputBoth {
		b, err := json.Marshal(map[string]any{
			"id":        msg.ID(),
			"type":      msg.Type(),
			"level":     msg.Level(),
			"priority":  msg.Priority(),
			"title":     heading(msg),
			"message":   msg.Text(),
			"timestamp": msg.CreatedAt().UTC().Format(time.RFC3339),
			"metadata":  msg.Metadata(),
		})
		if err != nil {
			return permanent(s.name, fmt.Errorf("encode stdin: %w", err))
		}
		cmd.Stdin = bytes.NewReader(b)
	}

	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	wrapped := fmt.Errorf("script %s: %w, output: %s", s.opts.Command, err, truncate(strings.TrimSpace(string(out)), maxScriptOutput))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && runCtx.Err() == nil {
		return permanent(s.name, wrapped)
	}
	return notification.NewTransportError(s.name, wrapped)
}
