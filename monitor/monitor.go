// Package monitor runs a background resource-usage sampling session against
// a single OS process. Samples are appended to an in-memory, capture-ordered
// history that callers read through stable snapshots.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"procwatch/collector"
)

var (
	// ErrInvalidInterval is returned by New for a non-positive interval.
	ErrInvalidInterval = errors.New("sampling interval must be positive")
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("monitor already running")
	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning = errors.New("monitor not running")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateErrored // sampling loop died; history preserved, Stop finalizes
	stateStopped
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger attaches a logger to the monitor. The default is a no-op.
func WithLogger(log *zap.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

// WithCollector replaces the default gopsutil-backed collector. Used by
// tests and by callers whose samples come from somewhere other than the
// local process table.
func WithCollector(c collector.Collector) Option {
	return func(m *Monitor) {
		m.newCollector = func() (collector.Collector, error) { return c, nil }
	}
}

// Monitor samples the resource usage of one process on a fixed interval.
//
// Only the sampling goroutine writes to the history; callers read snapshot
// copies and may stage a tag for the next sample. A stopped Monitor may be
// started again - each Start begins a fresh session with an empty history.
type Monitor struct {
	pid      int32
	interval time.Duration
	log      *zap.Logger

	newCollector func() (collector.Collector, error)

	mu      sync.Mutex
	state   state
	history []collector.Sample
	pending string // staged tag label, consumed by the next sample
	hasTag  bool
	err     error // fatal sampling error recorded by the loop

	stop chan struct{}
	done chan struct{}
}

// New creates a monitor for the given process. A pid of zero or less
// selects the calling process. The interval must be positive; nothing is
// scheduled until Start.
func New(pid int32, interval time.Duration, opts ...Option) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval %v: %w", interval, ErrInvalidInterval)
	}
	if pid <= 0 {
		pid = int32(os.Getpid())
	}
	m := &Monitor{
		pid:      pid,
		interval: interval,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.newCollector == nil {
		m.newCollector = func() (collector.Collector, error) {
			return collector.NewProcessCollector(m.pid, m.log)
		}
	}
	return m, nil
}

// Start begins a sampling session. It returns immediately after the
// sampling goroutine is scheduled; the first sample lands one interval
// later. Starting an active or errored-but-unfinalized session fails with
// ErrAlreadyRunning. Starting after Stop discards the previous history.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateRunning || m.state == stateErrored {
		return ErrAlreadyRunning
	}

	coll, err := m.newCollector()
	if err != nil {
		return err
	}

	m.history = nil
	m.pending, m.hasTag = "", false
	m.err = nil
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.state = stateRunning

	m.log.Info("sampling started",
		zap.Int32("pid", m.pid),
		zap.Duration("interval", m.interval))

	go m.loop(coll, m.stop, m.done)
	return nil
}

// Stop ends the session. It signals the sampling goroutine and blocks until
// it has exited, so no sample is appended after Stop returns; shutdown
// latency is bounded by roughly one interval (the in-flight cycle is
// allowed to finish). Stop on an idle monitor fails with ErrNotRunning.
//
// If the sampling loop died because the observed process vanished, Stop
// finalizes the session and returns that error instead; the partial history
// stays available, and repeated Stop calls keep returning the same error
// without touching it.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	switch m.state {
	case stateIdle:
		m.mu.Unlock()
		return ErrNotRunning
	case stateStopped:
		err := m.err
		m.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrNotRunning
	}

	// Running or errored. Signal the goroutine (a no-op if it already
	// exited) and wait for it outside the lock.
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	done := m.done
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	m.state = stateStopped
	err := m.err
	n := len(m.history)
	m.mu.Unlock()

	m.log.Info("sampling stopped", zap.Int("samples", n))
	return err
}

// Tag stages label for the next captured sample. The slot holds a single
// label - calling Tag again before the next sample overwrites it - and is
// dropped silently if the session ends first. Tagging a monitor that is not
// running has no effect.
func (m *Monitor) Tag(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateRunning {
		return
	}
	m.pending = label
	m.hasTag = true
}

// History returns a snapshot copy of the samples captured so far, in
// capture order. It is callable in any state and the returned slice never
// changes, even while sampling continues.
func (m *Monitor) History() []collector.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return collector.CloneSamples(m.history)
}

// Err reports the fatal sampling error, if the loop has died. It returns
// nil while the session is healthy.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// PID returns the observed process id.
func (m *Monitor) PID() int32 { return m.pid }

// Interval returns the configured sampling interval.
func (m *Monitor) Interval() time.Duration { return m.interval }

func (m *Monitor) loop(coll collector.Collector, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		timer := time.NewTimer(m.interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		s, err := coll.Collect(context.Background())
		if err != nil {
			m.fail(err)
			return
		}
		m.append(s)
	}
}

func (m *Monitor) append(s collector.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasTag {
		s.Tag = m.pending
		m.pending, m.hasTag = "", false
	}
	m.history = append(m.history, s)
}

func (m *Monitor) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.state = stateErrored
	m.log.Error("sampling loop terminated", zap.Error(err))
}
