package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
)

// Sink persists extracted profile records. Exactly one sink is active per run.
type Sink interface {
	// Persist stores rec under batch unless a record with the same dedup key is already stored.
	// Returns true if the record was written, false if it was a duplicate (or the sink discards records).
	Persist(ctx context.Context, batch string, rec *models.Record) (bool, error)

	// Close flushes and releases the sink's resources
	Close() error
}

// KeyIndex remembers which dedup keys have been persisted per batch
type KeyIndex interface {
	// Claim atomically records key for batch.
	// Returns true if the key was newly claimed, false if it was already present.
	Claim(ctx context.Context, batch, key string) (bool, error)

	// Release forgets a claim, used when the write that followed a claim failed
	Release(ctx context.Context, batch, key string) error

	Close() error
}

// EndpointStateStore tracks per-endpoint processing outcomes so a rerun can skip finished work
type EndpointStateStore interface {
	// CheckEndpointStatus returns the recorded status (EndpointStatusNotFound if never seen)
	CheckEndpointStatus(endpointURL string) (models.EndpointStatus, *models.EndpointDBEntry, error)

	// UpdateEndpointStatus stores the outcome for an endpoint, incrementing its attempt count
	UpdateEndpointStatus(endpointURL string, entry *models.EndpointDBEntry) error

	// EntryCount returns an approximate count of all keys in the store
	EntryCount() int

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	Close() error
}
