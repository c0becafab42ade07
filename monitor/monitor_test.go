package monitor

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procwatch/collector"
)

// stubCollector hands out deterministic samples and can be told to fail
// after a fixed number of successful reads.
type stubCollector struct {
	mu        sync.Mutex
	n         int
	failAfter int // 0 = never fail
}

func (s *stubCollector) Collect(ctx context.Context) (collector.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && s.n >= s.failAfter {
		return collector.Sample{}, collector.ErrProcessNotFound
	}
	s.n++
	rd := uint64(s.n * 100)
	return collector.Sample{
		Timestamp:     time.Now(),
		CPUPercent:    float64(s.n),
		MemoryBytes:   uint64(s.n) * 1024,
		DiskReadBytes: &rd,
	}, nil
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		_, err := New(1, interval)
		require.ErrorIs(t, err, ErrInvalidInterval, "interval %v", interval)
	}
}

func TestNewDefaultsToOwnProcess(t *testing.T) {
	m, err := New(0, time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(os.Getpid()), m.PID())
}

func TestStopWhileIdle(t *testing.T) {
	m, err := New(1, time.Second, WithCollector(&stubCollector{}))
	require.NoError(t, err)
	require.ErrorIs(t, m.Stop(), ErrNotRunning)
}

func TestLifecycle(t *testing.T) {
	m, err := New(1, 10*time.Millisecond, WithCollector(&stubCollector{}))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	require.ErrorIs(t, m.Start(), ErrAlreadyRunning)

	time.Sleep(120 * time.Millisecond)
	require.NoError(t, m.Stop())

	hist := m.History()
	require.GreaterOrEqual(t, len(hist), 5, "expected most of ~12 cycles to land")

	// Capture order is preserved.
	for i := 1; i < len(hist); i++ {
		require.False(t, hist[i].Timestamp.Before(hist[i-1].Timestamp))
	}

	// Nothing lands after Stop returns.
	n := len(hist)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, m.History(), n)
	require.ErrorIs(t, m.Stop(), ErrNotRunning)
	require.Len(t, m.History(), n)
}

func TestTagAttachesToExactlyOneSample(t *testing.T) {
	m, err := New(1, 5*time.Millisecond, WithCollector(&stubCollector{}))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	m.Tag("midpoint")
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, m.Stop())

	var tagged []string
	for _, s := range m.History() {
		if s.Tag != "" {
			tagged = append(tagged, s.Tag)
		}
	}
	require.Equal(t, []string{"midpoint"}, tagged)
}

func TestTagLastWriteWins(t *testing.T) {
	// The interval is long enough that both Tag calls land before the
	// first sample is captured.
	m, err := New(1, 60*time.Millisecond, WithCollector(&stubCollector{}))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	m.Tag("first")
	m.Tag("second")
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, m.Stop())

	var tagged []string
	for _, s := range m.History() {
		if s.Tag != "" {
			tagged = append(tagged, s.Tag)
		}
	}
	require.Equal(t, []string{"second"}, tagged)
}

func TestTagWhileIdleIsDropped(t *testing.T) {
	m, err := New(1, 10*time.Millisecond, WithCollector(&stubCollector{}))
	require.NoError(t, err)

	m.Tag("too early")
	require.NoError(t, m.Start())
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, m.Stop())

	for _, s := range m.History() {
		require.Empty(t, s.Tag)
	}
}

func TestHistorySnapshotIsStable(t *testing.T) {
	m, err := New(1, 5*time.Millisecond, WithCollector(&stubCollector{}))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	time.Sleep(40 * time.Millisecond)
	snap := m.History()
	n := len(snap)

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, m.Stop())

	require.Len(t, snap, n, "snapshot must not grow behind the caller's back")
	require.Greater(t, len(m.History()), n)
}

func TestProcessDeathSurfacesOnStop(t *testing.T) {
	m, err := New(1, 5*time.Millisecond, WithCollector(&stubCollector{failAfter: 2}))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return m.Err() != nil },
		time.Second, 5*time.Millisecond)

	require.ErrorIs(t, m.Err(), collector.ErrProcessNotFound)

	// Stop finalizes without ErrNotRunning and surfaces the loop's error;
	// the partial history survives and repeat calls change nothing.
	err = m.Stop()
	require.ErrorIs(t, err, collector.ErrProcessNotFound)
	require.Len(t, m.History(), 2)

	require.ErrorIs(t, m.Stop(), collector.ErrProcessNotFound)
	require.Len(t, m.History(), 2)
}

func TestRestartBeginsFreshHistory(t *testing.T) {
	m, err := New(1, 5*time.Millisecond, WithCollector(&stubCollector{}))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, m.Stop())
	require.NotEmpty(t, m.History())

	// A restarted session starts from an empty history.
	require.NoError(t, m.Start())
	require.Empty(t, m.History())
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Stop())
	require.NotEmpty(t, m.History())
}

func TestEndToEndSelfSampling(t *testing.T) {
	if testing.Short() {
		t.Skip("2s wall-clock test")
	}

	m, err := New(int32(os.Getpid()), 200*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, m.Start())
	time.Sleep(time.Second)
	m.Tag("midpoint")
	time.Sleep(time.Second)
	require.NoError(t, m.Stop())

	hist := m.History()
	require.GreaterOrEqual(t, len(hist), 8)
	require.LessOrEqual(t, len(hist), 12)

	tagged := 0
	for _, s := range hist {
		if s.Tag != "" {
			require.Equal(t, "midpoint", s.Tag)
			tagged++
		}
		require.GreaterOrEqual(t, s.CPUPercent, 0.0)
		require.Greater(t, s.MemoryBytes, uint64(0))
		require.False(t, s.Timestamp.IsZero())
	}
	require.Equal(t, 1, tagged)
}
