package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerStore implements RowStore using BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	ready  atomic.Bool
	logger *logrus.Logger
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	DataDir    string
	SyncWrites bool
	Logger     *logrus.Logger
}

// NewBadgerStore opens (or creates) a BadgerDB-backed row store.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := filepath.Join(opts.DataDir, "rows")
	badgerOpts := badger.DefaultOptions(dbPath).
		WithLogger(newBadgerLogger(opts.Logger)).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger db: %w", err)
	}

	s := &BadgerStore{db: db, logger: opts.Logger}
	s.ready.Store(true)

	opts.Logger.WithField("path", dbPath).Info("badger row store initialized")
	return s, nil
}

// Get retrieves a value by exact key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Batch applies writes and deletes atomically in a single BadgerDB
// transaction.
func (s *BadgerStore) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for k, v := range sets {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("store: batch set %q: %w", k, err)
			}
		}
		for _, k := range deletes {
			if err := txn.Delete([]byte(k)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("store: batch delete %q: %w", k, err)
			}
		}
		return nil
	})
}

// Scan iterates all keys sharing prefix starting from startKey.
func (s *BadgerStore) Scan(ctx context.Context, prefix, startKey string, fn func(key string, val []byte) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(prefix)
		if startKey != "" && startKey >= prefix {
			seek = []byte(startKey)
		}

		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			keyCopy := string(item.KeyCopy(nil))
			var valCopy []byte
			if err := item.Value(func(val []byte) error {
				valCopy = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}
			if !fn(keyCopy, valCopy) {
				break
			}
		}
		return nil
	})
}

// Close closes the underlying BadgerDB handle.
func (s *BadgerStore) Close() error {
	s.ready.Store(false)
	return s.db.Close()
}

type badgerLogger struct {
	*logrus.Logger
}

func newBadgerLogger(l *logrus.Logger) badger.Logger {
	return &badgerLogger{Logger: l}
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.Logger.Warnf(format, args...)
}

var _ RowStore = (*BadgerStore)(nil)
