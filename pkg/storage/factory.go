package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// NoopSink discards records. Every discarded record is logged as a warning.
type NoopSink struct {
	log *logrus.Entry
}

// NewNoopSink creates a sink for storage mode "none"
func NewNoopSink(log *logrus.Entry) *NoopSink {
	return &NoopSink{log: log}
}

// Persist implements Sink
func (n *NoopSink) Persist(_ context.Context, batch string, rec *models.Record) (bool, error) {
	n.log.WithFields(logrus.Fields{"batch": batch, "crawled_url": rec.Value("crawled_url")}).
		Warn("No storage backend enabled; record not persisted")
	return false, nil
}

// Close implements Sink
func (n *NoopSink) Close() error { return nil }

// SinkOptions carries what a sink needs beyond the storage configuration
type SinkOptions struct {
	ProfileDataDir string       // Output directory of the local sink
	DedupFields    []string     // Per-site dedup key priority
	State          *BadgerStore // Used as the key index when key_index is "badger"
	Log            *logrus.Entry
}

// OpenSink builds the sink selected by cfg.Mode
func OpenSink(ctx context.Context, cfg config.StorageConfig, opts SinkOptions) (Sink, error) {
	log := opts.Log.WithField("storage", cfg.Mode)

	switch cfg.Mode {
	case config.StorageModeLocal:
		return NewCSVSink(opts.ProfileDataDir, opts.DedupFields, log), nil

	case config.StorageModeS3:
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		index, owned, err := openKeyIndex(ctx, cfg, opts.State, log)
		if err != nil {
			return nil, err
		}
		sink := NewS3Sink(client, cfg.S3, index, opts.DedupFields, log)
		sink.ownsIndex = owned
		return sink, nil

	case config.StorageModePostgres:
		return NewPostgresSink(ctx, cfg.Postgres, opts.DedupFields, log)

	case config.StorageModeNone:
		log.Warn("Storage mode is 'none'; extracted records will be discarded")
		return NewNoopSink(log), nil
	}
	return nil, fmt.Errorf("%w: unknown storage mode %q", utils.ErrConfigValidation, cfg.Mode)
}

// openKeyIndex returns the dedup index for the s3 sink and whether the sink owns it
func openKeyIndex(ctx context.Context, cfg config.StorageConfig, state *BadgerStore, log *logrus.Entry) (KeyIndex, bool, error) {
	switch cfg.GetEffectiveKeyIndex() {
	case config.KeyIndexMemory:
		return NewMemoryIndex(), true, nil
	case config.KeyIndexBadger:
		if state == nil {
			return nil, false, fmt.Errorf("%w: badger key index requested without a state store", utils.ErrConfigValidation)
		}
		return state, false, nil
	case config.KeyIndexRedis:
		index, err := NewRedisIndex(ctx, cfg.Redis, log)
		if err != nil {
			return nil, false, err
		}
		return index, true, nil
	}
	return nil, false, fmt.Errorf("%w: unknown key index %q", utils.ErrConfigValidation, cfg.KeyIndex)
}
