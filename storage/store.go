package storage

import (
	"context"

	"procwatch/collector"
)

// Store abstracts a persistence back-end for one captured session.
type Store interface {
	// Save writes the session history in a single transaction - either all
	// rows are written or none.
	Save(ctx context.Context, samples []collector.Sample) error

	// Load returns the persisted history in capture order. Optional fields
	// that were absent when saved come back absent, not zero.
	Load(ctx context.Context) ([]collector.Sample, error)

	// Close releases any resources (e.g. DB connections).
	Close() error
}
