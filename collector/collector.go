package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// ErrProcessNotFound reports that the observed process no longer exists.
var ErrProcessNotFound = errors.New("process not found")

// Collector is the contract a per-process metric source must satisfy.
type Collector interface {
	// Collect reads the current resource usage of the observed process.
	// CPU usage is measured relative to the previous Collect call; the
	// returned sample carries the capture timestamp (i.e., time.Now()).
	Collect(ctx context.Context) (Sample, error)
}

// ProcessCollector reads CPU, memory and disk I/O counters for a single
// process through gopsutil. It is not safe for concurrent use - the CPU
// delta accounting assumes one reader.
type ProcessCollector struct {
	proc *process.Process
	log  *zap.Logger

	// cleared after the first failed I/O counter read so the call is not
	// repeated every cycle on hosts that do not support it
	ioSupported bool
}

// NewProcessCollector resolves pid and prepares it for sampling. The CPU
// accounting is primed here so the first Collect measures usage since now
// rather than since process start.
func NewProcessCollector(pid int32, log *zap.Logger) (*ProcessCollector, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	_, _ = proc.Percent(0)
	return &ProcessCollector{proc: proc, log: log, ioSupported: true}, nil
}

// Collect implements the Collector interface.
func (c *ProcessCollector) Collect(ctx context.Context) (Sample, error) {
	cpu, err := c.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return Sample{}, c.readErr("cpu", err)
	}
	mem, err := c.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, c.readErr("memory", err)
	}

	s := Sample{
		Timestamp:   time.Now(),
		CPUPercent:  cpu,
		MemoryBytes: mem.RSS,
	}

	if c.ioSupported {
		io, err := c.proc.IOCountersWithContext(ctx)
		if err != nil {
			if gone, rerr := c.gone(ctx); rerr == nil && gone {
				return Sample{}, fmt.Errorf("pid %d: %w", c.proc.Pid, ErrProcessNotFound)
			}
			// Not implemented on this platform, or not permitted for this
			// process. The fields stay absent for the rest of the session.
			c.ioSupported = false
			c.log.Debug("disk I/O counters unavailable", zap.Error(err))
		} else {
			rd, wr := io.ReadBytes, io.WriteBytes
			s.DiskReadBytes, s.DiskWriteBytes = &rd, &wr
		}
	}

	return s, nil
}

// readErr maps a failed metric read to ErrProcessNotFound when the target
// has exited; any other failure passes through wrapped.
func (c *ProcessCollector) readErr(what string, err error) error {
	if gone, rerr := c.gone(context.Background()); rerr == nil && gone {
		return fmt.Errorf("pid %d: %w", c.proc.Pid, ErrProcessNotFound)
	}
	return fmt.Errorf("read %s for pid %d: %w", what, c.proc.Pid, err)
}

func (c *ProcessCollector) gone(ctx context.Context) (bool, error) {
	running, err := c.proc.IsRunningWithContext(ctx)
	if err != nil {
		return false, err
	}
	return !running, nil
}
