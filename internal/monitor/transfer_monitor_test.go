package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/xferwatch/internal/conf"
	"github.com/tphakala/xferwatch/internal/observability/metrics"
)

func baseConfig() Config {
	return Config{
		Destination:  "/mnt/backup",
		PollInterval: time.Minute,
		ProgressStep: 25,
	}
}

func TestPoll_ProgressSteps(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ExpectedBytes = 1000
	probe := &scriptedProbe{sizes: []uint64{100, 260, 300, 510, 990}}
	n := &recordingNotifier{}
	m := New(cfg, n, WithProbe(probe))

	for range 5 {
		assert.False(t, m.poll(t.Context()))
	}

	events := n.all()
	require.Len(t, events, 3)
	assert.InDelta(t, 26.0, events[0].percent, 0.001)
	assert.Contains(t, events[0].text, "Transfer 26% complete")
	assert.InDelta(t, 51.0, events[1].percent, 0.001)
	assert.InDelta(t, 99.0, events[2].percent, 0.001)
	assert.InDelta(t, 99.0, m.Status().Percent, 0.001)
}

func TestPoll_ProgressSkipsIntermediateSteps(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ExpectedBytes = 1000
	probe := &scriptedProbe{sizes: []uint64{0, 800}}
	n := &recordingNotifier{}
	m := New(cfg, n, WithProbe(probe))

	m.poll(t.Context())
	m.poll(t.Context())

	// one message for the jump, not one per step crossed
	assert.Equal(t, []string{"PROGRESS"}, n.kinds())
}

func TestPoll_NoProgressWithoutExpectedSize(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{sizes: []uint64{10, 1 << 30}}
	n := &recordingNotifier{}
	m := New(baseConfig(), n, WithProbe(probe))

	m.poll(t.Context())
	m.poll(t.Context())
	assert.Empty(t, n.kinds())
}

func TestPoll_CompletionWhenProcessExits(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ProcessName = "rsync"
	probe := &scriptedProbe{
		running: []bool{true, true, false},
		sizes:   []uint64{1_000_000, 2_000_000, 2_500_000},
	}
	n := &recordingNotifier{}
	m := New(cfg, n, WithProbe(probe))

	assert.False(t, m.poll(t.Context()))
	assert.False(t, m.poll(t.Context()))
	assert.True(t, m.poll(t.Context()))
	assert.True(t, m.poll(t.Context()), "completion is sticky")

	events := n.all()
	require.Len(t, events, 1)
	assert.Equal(t, "COMPLETION", events[0].kind)
	assert.Contains(t, events[0].text, "2.5 MB")
	assert.Contains(t, events[0].text, "1,500,000 bytes")
	assert.Equal(t, uint64(2_500_000), events[0].extra["bytes"])
	assert.True(t, m.Status().Completed)
}

func TestPoll_ProcessNeverSeenIsNotCompletion(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ProcessName = "rsync"
	probe := &scriptedProbe{running: []bool{false}, sizes: []uint64{5}}
	n := &recordingNotifier{}
	m := New(cfg, n, WithProbe(probe))

	assert.False(t, m.poll(t.Context()))
	assert.False(t, m.poll(t.Context()))
	assert.Empty(t, n.kinds())
}

func TestPoll_CompletionBySizeWithoutProcess(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ExpectedBytes = 1000
	cfg.ProgressStep = 50
	probe := &scriptedProbe{sizes: []uint64{0, 600, 1000}}
	n := &recordingNotifier{}
	m := New(cfg, n, WithProbe(probe))

	m.poll(t.Context())
	m.poll(t.Context())
	assert.True(t, m.poll(t.Context()))
	assert.Equal(t, []string{"PROGRESS", "COMPLETION"}, n.kinds())
}

func TestPoll_DiskWarningWithHysteresis(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.DiskWarning = 95
	probe := &scriptedProbe{
		sizes: []uint64{1},
		disk:  []float64{96, 97, 92, 89, 96},
	}
	n := &recordingNotifier{}
	m := New(cfg, n, WithProbe(probe))

	for range 5 {
		m.poll(t.Context())
	}

	// 92 is inside the hysteresis band, 89 re-arms the alert
	assert.Equal(t, []string{"ERROR", "ERROR"}, n.kinds())
	assert.ErrorContains(t, n.all()[0].err, "96.0% full")
	assert.InDelta(t, 96.0, m.Status().DiskUsed, 0)
}

func TestPoll_ProbeFailureKeepsState(t *testing.T) {
	t.Parallel()

	tm, err := metrics.NewTransferMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.ExpectedBytes = 100
	probe := &scriptedProbe{sizes: []uint64{40}}
	n := &recordingNotifier{}
	m := New(cfg, n, WithProbe(probe), WithMetrics(tm))

	m.poll(t.Context())
	probe.mu.Lock()
	probe.sizeErr = errors.New("permission denied")
	probe.mu.Unlock()
	m.poll(t.Context())

	assert.Equal(t, uint64(40), m.Status().CurrentBytes)
	assert.InDelta(t, 40.0, tm.ProgressPercent(), 0.001)
	assert.Empty(t, n.kinds())
}

func TestRun_StallRaisesOneError(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cfg := baseConfig()
		cfg.ProcessName = "rsync"
		cfg.StallTimeout = 5 * time.Minute
		probe := &scriptedProbe{running: []bool{true}, sizes: []uint64{100}}
		n := &recordingNotifier{}
		m := New(cfg, n, WithProbe(probe))

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- m.Run(ctx) }()

		time.Sleep(12 * time.Minute)
		synctest.Wait()
		cancel()

		assert.ErrorIs(t, <-done, context.Canceled)
		events := n.all()
		require.Len(t, events, 1)
		assert.Equal(t, "ERROR", events[0].kind)
		assert.ErrorContains(t, events[0].err, "no data written to /mnt/backup for 5m0s")
		assert.True(t, m.Status().Stalled)
	})
}

func TestRun_ReturnsOnCompletion(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cfg := baseConfig()
		cfg.ProcessName = "rsync"
		probe := &scriptedProbe{running: []bool{true, true, true, false}, sizes: []uint64{1, 2, 3, 4}}
		n := &recordingNotifier{}
		m := New(cfg, n, WithProbe(probe))

		start := time.Now()
		require.NoError(t, m.Run(t.Context()))
		assert.Equal(t, 3*time.Minute, time.Since(start))
		assert.Equal(t, []string{"COMPLETION"}, n.kinds())
	})
}

func TestRun_RejectsZeroInterval(t *testing.T) {
	t.Parallel()

	m := New(Config{}, &recordingNotifier{}, WithProbe(&scriptedProbe{}))
	assert.Error(t, m.Run(t.Context()))
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFromSettings(conf.TransferSettings{
		ProcessName:  "rclone",
		Destination:  "/data",
		ExpectedSize: "10 GB",
		PollInterval: time.Second,
		ProgressStep: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000_000), cfg.ExpectedBytes)
	assert.Equal(t, "rclone", cfg.ProcessName)

	_, err = ConfigFromSettings(conf.TransferSettings{ExpectedSize: "many"})
	assert.Error(t, err)
}

func TestSystemProbe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 1500), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.bin"), make([]byte, 500), 0o600))

	var p SystemProbe
	size, err := p.DirSize(t.Context(), dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), size)

	_, err = p.DirSize(t.Context(), filepath.Join(dir, "missing"))
	assert.Error(t, err)

	used, err := p.DiskUsedPercent(t.Context(), dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, used, 0.0)

	running, err := p.ProcessRunning(t.Context(), "xferwatch-no-such-process")
	require.NoError(t, err)
	assert.False(t, running)
}
