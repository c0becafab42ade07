package collector

import "time"

// Sample is one timestamped resource-usage reading for the observed process.
type Sample struct {
	Timestamp   time.Time // when the reading was taken
	CPUPercent  float64   // CPU consumed since the previous sample, in percent
	MemoryBytes uint64    // resident set size at capture time

	// Cumulative disk I/O counters since process start. Nil when the host
	// platform does not expose per-process counters - an unavailable value
	// is never reported as zero.
	DiskReadBytes  *uint64
	DiskWriteBytes *uint64

	Tag string // caller-supplied label, empty when untagged
}

// CloneSamples returns a deep copy of samples. The optional counter fields
// are re-allocated so the copy shares no memory with the input.
func CloneSamples(in []Sample) []Sample {
	if in == nil {
		return nil
	}
	out := make([]Sample, len(in))
	for i, s := range in {
		if s.DiskReadBytes != nil {
			v := *s.DiskReadBytes
			s.DiskReadBytes = &v
		}
		if s.DiskWriteBytes != nil {
			v := *s.DiskWriteBytes
			s.DiskWriteBytes = &v
		}
		out[i] = s
	}
	return out
}
