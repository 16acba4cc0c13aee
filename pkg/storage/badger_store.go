package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/log"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

const (
	endpointKeyPrefix = "ep:"      // Prefix for profile endpoint keys
	claimKeyPrefix    = "key:"     // Prefix for dedup key claims
	stateDBDir        = "state_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore records endpoint outcomes and dedup key claims in an embedded BadgerDB.
// It implements both EndpointStateStore and KeyIndex.
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) EntryCount
}

// NewBadgerStore opens (or creates) the state database for one country.
// With resume=false any existing state for that country is removed first.
func NewBadgerStore(ctx context.Context, stateDir, name string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}

	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(name)+"_"+stateDBDir)

	if !resume {
		if _, err := os.Stat(dbPath); err == nil {
			logger.Warnf("Fresh run requested. Removing existing state directory: %s", dbPath)
		}
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Infof("Initializing state database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing state on resume: %d keys", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func claimKey(batch, key string) []byte {
	return []byte(claimKeyPrefix + utils.DedupDigest(batch, key))
}

// Claim implements KeyIndex
func (s *BadgerStore) Claim(ctx context.Context, batch, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	claimed := false
	k := claimKey(batch, key)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		claimed = false
		_, errGet := txn.Get(k)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(k, []byte(batch))); errSet != nil {
				return errSet
			}
			claimed = true
			return nil
		}
		return errGet
	})
	if err != nil {
		return false, fmt.Errorf("%w: claiming dedup key for batch '%s': %w", utils.ErrDatabase, batch, err)
	}
	if claimed {
		s.keyCount.Add(1)
	}
	return claimed, nil
}

// Release implements KeyIndex
func (s *BadgerStore) Release(ctx context.Context, batch, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := claimKey(batch, key)
	removed := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		removed = false
		if _, errGet := txn.Get(k); errGet != nil {
			if errors.Is(errGet, badger.ErrKeyNotFound) {
				return nil
			}
			return errGet
		}
		removed = true
		return txn.Delete(k)
	})
	if err != nil {
		return fmt.Errorf("%w: releasing dedup key for batch '%s': %w", utils.ErrDatabase, batch, err)
	}
	if removed {
		s.keyCount.Add(-1)
	}
	return nil
}

// CheckEndpointStatus implements EndpointStateStore
func (s *BadgerStore) CheckEndpointStatus(endpointURL string) (models.EndpointStatus, *models.EndpointDBEntry, error) {
	status := models.EndpointStatusNotFound
	var entry *models.EndpointDBEntry
	key := []byte(endpointKeyPrefix + endpointURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting endpoint key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.EndpointStatusPending
				return nil
			}
			var decoded models.EndpointDBEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal EndpointDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJSON)
				status = models.EndpointStatusPending
				return nil
			}
			if !decoded.Status.IsValid() {
				s.log.Warnf("Unknown status %q stored for key '%s'. Treating as 'pending'.", decoded.Status, string(key))
				status = models.EndpointStatusPending
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckEndpointStatus for key '%s': %v", string(key), errView)
		return models.EndpointStatusDBError, nil, errView
	}
	return status, entry, nil
}

// UpdateEndpointStatus implements EndpointStateStore
func (s *BadgerStore) UpdateEndpointStatus(endpointURL string, entry *models.EndpointDBEntry) error {
	key := []byte(endpointKeyPrefix + endpointURL)
	isNew := false

	err := s.dbUpdate(func(txn *badger.Txn) error {
		isNew = false
		toStore := *entry
		item, errGet := txn.Get(key)
		switch {
		case errors.Is(errGet, badger.ErrKeyNotFound):
			isNew = true
			toStore.Attempts = 1
		case errGet != nil:
			return errGet
		default:
			var prev models.EndpointDBEntry
			_ = item.Value(func(val []byte) error {
				if len(val) > 0 {
					_ = json.Unmarshal(val, &prev)
				}
				return nil
			})
			toStore.Attempts = prev.Attempts + 1
		}
		if toStore.LastAttempt.IsZero() {
			toStore.LastAttempt = time.Now()
		}

		entryBytes, errJSON := json.Marshal(toStore)
		if errJSON != nil {
			return fmt.Errorf("%w: failed to marshal EndpointDBEntry: %w", utils.ErrParsing, errJSON)
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateEndpointStatus: %v", err)
		if errors.Is(err, utils.ErrParsing) {
			return err
		}
		return fmt.Errorf("%w: failed setting endpoint status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	s.log.Debugf("Updated endpoint status for '%s' to '%s'", endpointURL, entry.Status)
	return nil
}

// EntryCount implements EndpointStateStore
func (s *BadgerStore) EntryCount() int {
	return int(s.keyCount.Load())
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx is done
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Rewrite while at least half of a value log file is reclaimable
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements EndpointStateStore and KeyIndex
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing state DB: %v", err)
			return err
		}
		s.log.Info("State DB closed.")
	}
	return nil
}
