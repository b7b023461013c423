package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockProvider records calls and delegates behaviour to optional hooks.
type mockProvider struct {
	name string

	sendFn       func(ctx context.Context, msg *Message) error
	connectFn    func(ctx context.Context) error
	disconnectFn func(ctx context.Context) error

	sends       atomic.Int32
	connects    atomic.Int32
	disconnects atomic.Int32

	mu   sync.Mutex
	sent []string
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{name: name}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Send(ctx context.Context, msg *Message) error {
	m.sends.Add(1)
	m.mu.Lock()
	m.sent = append(m.sent, msg.Text())
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, msg)
	}
	return nil
}

func (m *mockProvider) Connect(ctx context.Context) error {
	m.connects.Add(1)
	if m.connectFn != nil {
		return m.connectFn(ctx)
	}
	return nil
}

func (m *mockProvider) Disconnect(ctx context.Context) error {
	m.disconnects.Add(1)
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx)
	}
	return nil
}

func (m *mockProvider) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// testConfig decodes raw onto the engine defaults or fails the test.
func testConfig(t *testing.T, raw map[string]any) ProviderConfig {
	t.Helper()
	cfg, err := DecodeProviderConfig(raw)
	require.NoError(t, err)
	return cfg
}

// newTestNotifier wraps p with a config and no per-type interval gate
// unless minInterval is set.
func newTestNotifier(t *testing.T, p Provider, raw map[string]any, minInterval time.Duration) *Notifier {
	t.Helper()
	return NewNotifier(p, testConfig(t, raw), NotifierOptions{MinInterval: minInterval})
}

// constructorFor returns a ProviderConstructor handing out p and counting
// constructions.
func constructorFor(p Provider, count *atomic.Int32) ProviderConstructor {
	return func(string, ProviderConfig) (Provider, error) {
		if count != nil {
			count.Add(1)
		}
		return p, nil
	}
}

// errBoom is a retryable transport failure.
var errBoom = NewTransportError("mock", errors.New("connection refused"))
