package persist

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/errors"
)

// Config holds configuration for the badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives badger's internal log lines. Nil disables them.
	Logger *logrus.Entry
}

// DefaultConfig returns the on-disk configuration for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration that never touches disk.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *logrus.Entry
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef(strings.TrimSpace(format), args...)
}

// Badger implements Facade on badger v4. Writes whose content hash matches
// the last stored value for a key are skipped.
type Badger struct {
	db *badger.DB

	mu     sync.Mutex
	hashes map[string]uint64
	skips  int
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "persistence path is required unless in_memory is set")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.PersistenceFailed("open", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.PersistenceFailed("open", cfg.Path, err)
	}
	return &Badger{db: db, hashes: make(map[string]uint64)}, nil
}

func key(kind Kind, path string) []byte {
	return []byte(fmt.Sprintf("%s/%s", kind, path))
}

func prefix(kind Kind) []byte {
	return []byte(string(kind) + "/")
}

// LoadAll returns every entry of kind in key order.
func (b *Badger) LoadAll(kind Kind) ([]Entry, error) {
	var out []Entry
	pfx := prefix(kind)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(pfx); it.ValidForPrefix(pfx); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			k := string(item.Key())
			out = append(out, Entry{Path: strings.TrimPrefix(k, string(pfx)), Data: data})
			b.mu.Lock()
			b.hashes[k] = xxhash.Sum64(data)
			b.mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, errors.PersistenceFailed("load", string(kind), err)
	}
	return out, nil
}

// Store writes data under (kind, path) unless it is unchanged.
func (b *Badger) Store(path string, data []byte, kind Kind) error {
	k := key(kind, path)
	sum := xxhash.Sum64(data)

	b.mu.Lock()
	if prev, ok := b.hashes[string(k)]; ok && prev == sum {
		b.skips++
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, data)
	}); err != nil {
		return errors.PersistenceFailed("store", string(k), err)
	}

	b.mu.Lock()
	b.hashes[string(k)] = sum
	b.mu.Unlock()
	return nil
}

// Remove deletes (kind, path). Missing keys are not an error.
func (b *Badger) Remove(path string, kind Kind) error {
	k := key(kind, path)
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	}); err != nil {
		return errors.PersistenceFailed("remove", string(k), err)
	}
	b.mu.Lock()
	delete(b.hashes, string(k))
	b.mu.Unlock()
	return nil
}

// CleanType deletes every entry of kind.
func (b *Badger) CleanType(kind Kind) error {
	pfx := prefix(kind)
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(pfx); it.ValidForPrefix(pfx); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return errors.PersistenceFailed("clean", string(kind), err)
	}
	wb := b.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return errors.PersistenceFailed("clean", string(kind), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return errors.PersistenceFailed("clean", string(kind), err)
	}
	b.mu.Lock()
	for k := range b.hashes {
		if strings.HasPrefix(k, string(pfx)) {
			delete(b.hashes, k)
		}
	}
	b.mu.Unlock()
	return nil
}

// SkippedWrites reports how many Store calls found the value unchanged.
func (b *Badger) SkippedWrites() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skips
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}
