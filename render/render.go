// Package render turns a captured history into human-readable output. All
// functions are pure with respect to their input - they only write to the
// supplied writer.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"procwatch/collector"
)

// Table writes one aligned row per sample. Absent I/O counters render as
// "-" so they cannot be mistaken for zero; tags appear on their sample row.
func Table(w io.Writer, samples []collector.Sample) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCPU%\tRSS\tDISK R\tDISK W\tTAG")
	for _, s := range samples {
		fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%s\t%s\n",
			s.Timestamp.Format("15:04:05.000"),
			s.CPUPercent,
			humanize.IBytes(s.MemoryBytes),
			counter(s.DiskReadBytes),
			counter(s.DiskWriteBytes),
			s.Tag)
	}
	return tw.Flush()
}

func counter(v *uint64) string {
	if v == nil {
		return "-"
	}
	return humanize.IBytes(*v)
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparklines plots CPU and memory over time as one compact line each, with
// the observed value range alongside and tag positions marked underneath.
func Sparklines(w io.Writer, samples []collector.Sample) error {
	if len(samples) == 0 {
		_, err := fmt.Fprintln(w, "(no samples)")
		return err
	}

	cpu := make([]float64, len(samples))
	mem := make([]float64, len(samples))
	for i, s := range samples {
		cpu[i] = s.CPUPercent
		mem[i] = float64(s.MemoryBytes)
	}

	cpuLo, cpuHi := bounds(cpu)
	memLo, memHi := bounds(mem)

	fmt.Fprintf(w, "cpu%%  %s  %.1f .. %.1f\n", spark(cpu), cpuLo, cpuHi)
	fmt.Fprintf(w, "rss   %s  %s .. %s\n", spark(mem),
		humanize.IBytes(uint64(memLo)), humanize.IBytes(uint64(memHi)))

	if line, legend := tagMarks(samples); line != "" {
		fmt.Fprintf(w, "tags  %s\n", line)
		for _, l := range legend {
			fmt.Fprintf(w, "      %s\n", l)
		}
	}
	return nil
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func spark(values []float64) string {
	lo, hi := bounds(values)
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// tagMarks builds a marker line aligned under the sparklines plus one
// legend entry per tagged sample. Both are empty when nothing was tagged.
func tagMarks(samples []collector.Sample) (string, []string) {
	marks := make([]rune, len(samples))
	var legend []string
	tagged := false
	for i, s := range samples {
		marks[i] = ' '
		if s.Tag != "" {
			marks[i] = '^'
			tagged = true
			legend = append(legend, fmt.Sprintf("^ %s @ %s",
				s.Tag, s.Timestamp.Format("15:04:05.000")))
		}
	}
	if !tagged {
		return "", nil
	}
	return string(marks), legend
}
