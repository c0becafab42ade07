package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"procwatch/collector"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "session.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadEmpty(t *testing.T) {
	s := newTestStore(t)
	samples, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, samples)
}

func TestRoundTrip(t *testing.T) {
	rd, wr := uint64(123456), uint64(0)
	base := time.Date(2026, 8, 27, 10, 30, 0, 123456789, time.UTC)
	in := []collector.Sample{
		{
			// All optional fields present; a zero counter must stay a zero,
			// not become absent.
			Timestamp:      base,
			CPUPercent:     12.5,
			MemoryBytes:    64 << 20,
			DiskReadBytes:  &rd,
			DiskWriteBytes: &wr,
			Tag:            "midpoint",
		},
		{
			// All optional fields absent.
			Timestamp:   base.Add(200 * time.Millisecond),
			CPUPercent:  0,
			MemoryBytes: 65 << 20,
		},
	}

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i := range in {
		require.Equal(t, in[i].Timestamp.UnixNano(), out[i].Timestamp.UnixNano(), "sample %d", i)
		require.Equal(t, in[i].CPUPercent, out[i].CPUPercent, "sample %d", i)
		require.Equal(t, in[i].MemoryBytes, out[i].MemoryBytes, "sample %d", i)
		require.Equal(t, in[i].Tag, out[i].Tag, "sample %d", i)
	}
	require.Equal(t, rd, *out[0].DiskReadBytes)
	require.Equal(t, wr, *out[0].DiskWriteBytes)
	require.Nil(t, out[1].DiskReadBytes)
	require.Nil(t, out[1].DiskWriteBytes)
}

func TestLoadPreservesCaptureOrder(t *testing.T) {
	base := time.Now().Truncate(time.Second)
	var in []collector.Sample
	for i := 0; i < 5; i++ {
		in = append(in, collector.Sample{
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			CPUPercent:  float64(i),
			MemoryBytes: 1024,
		})
	}

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range out {
		require.Equal(t, float64(i), out[i].CPUPercent)
	}
}
