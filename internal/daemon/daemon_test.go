package daemon

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDaemon(t *testing.T, opts Options, run RunFunc) (*Daemon, context.CancelFunc, <-chan error) {
	t.Helper()
	d, err := New(opts, run, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("timed out waiting for daemon ready")
	}
	return d, cancel, done
}

func stopDaemon(t *testing.T, d *Daemon, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for daemon to stop")
	}
	assert.Equal(t, StatusStopped, d.Status())
}

func TestNew_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	_, err := New(Options{Interval: time.Minute}, nil, nil)
	require.Error(t, err)

	_, err = New(Options{}, noop, nil)
	require.Error(t, err)

	_, err = New(Options{Interval: time.Minute, WatchDocs: true}, noop, nil)
	require.Error(t, err)

	d, err := New(Options{Interval: time.Minute}, noop, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, d.Status())
}

func TestDaemon_RunsImmediatelyAndStops(t *testing.T) {
	var calls atomic.Int32
	ran := make(chan struct{}, 4)
	d, cancel, done := startDaemon(t, Options{Interval: time.Hour}, func(context.Context) error {
		calls.Add(1)
		ran <- struct{}{}
		return nil
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}
	assert.Equal(t, StatusRunning, d.Status())

	stopDaemon(t, d, cancel, done)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, d.Runs())
}

func TestDaemon_RunsDoNotOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	release := make(chan struct{})
	d, cancel, done := startDaemon(t, Options{Interval: 10 * time.Millisecond}, func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	time.Sleep(60 * time.Millisecond)
	d.TriggerRun()
	time.Sleep(20 * time.Millisecond)
	close(release)

	stopDaemon(t, d, cancel, done)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestDaemon_DocsChangeTriggersRun(t *testing.T) {
	docs := filepath.Join(t.TempDir(), "docs.conf")
	require.NoError(t, os.WriteFile(docs, []byte("[guide]\n"), 0o600))

	ran := make(chan struct{}, 8)
	d, cancel, done := startDaemon(t, Options{
		Interval:      time.Hour,
		DocsPath:      docs,
		WatchDocs:     true,
		WatchDebounce: 20 * time.Millisecond,
	}, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}

	require.NoError(t, os.WriteFile(docs, []byte("[guide]\nbranch = main\n"), 0o600))
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("config change did not trigger a run")
	}

	stopDaemon(t, d, cancel, done)
	assert.GreaterOrEqual(t, d.Runs(), 2)
}

func TestDaemon_ServesMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	runs := prom.NewCounter(prom.CounterOpts{Name: "test_runs_total", Help: "runs"})
	reg.MustRegister(runs)

	d, cancel, done := startDaemon(t, Options{
		Interval:      time.Hour,
		MetricsListen: "127.0.0.1:0",
		Registry:      reg,
	}, func(context.Context) error {
		runs.Inc()
		return nil
	})
	require.NotEmpty(t, d.MetricsAddr())

	resp, err := http.Get("http://" + d.MetricsAddr() + MetricsPath)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_runs_total")
	assert.Contains(t, string(body), "go_goroutines")

	stopDaemon(t, d, cancel, done)
}

func TestDaemon_MetricsListenError(t *testing.T) {
	d, err := New(Options{Interval: time.Hour, MetricsListen: "256.0.0.1:99999"}, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	require.Error(t, d.Run(context.Background()))
	assert.Equal(t, StatusError, d.Status())
}
