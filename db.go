package neemo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// DB is a handle on one database directory: a primary document store and
// a secondary index, each owned by its own engine instance. A single
// RWMutex spans both stores; every mutation runs under one combined
// critical section, so a concurrent reader observes either the pre- or
// the post-state of a mutation, never a mix.
type DB struct {
	mu     sync.RWMutex
	dir    string
	store  *docStore
	index  *secondaryIndex
	logger *slog.Logger
	closed bool

	// needsReconcile is set when index maintenance fails after the primary
	// write already committed, i.e. when drift is possible.
	needsReconcile atomic.Bool
}

type Options struct {
	Logger    *slog.Logger
	IsTesting bool
	MmapSize  int
}

const (
	dataFileName  = "data.db"
	indexFileName = "index.db"
)

// Open opens (creating if necessary) the database in dir and sweeps the
// index for entries left behind by an interrupted mutation. Failure to
// open either sub-store is fatal to the open, and callers are expected to
// treat it as fatal to the process.
func Open(dir string, opt Options) (*DB, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("neemo: %w", err)
	}
	eopt := boltEngineOptions{IsTesting: opt.IsTesting, MmapSize: opt.MmapSize}
	dataEng, err := openBoltEngine(filepath.Join(dir, dataFileName), eopt)
	if err != nil {
		return nil, fmt.Errorf("neemo: opening data store: %w", err)
	}
	indexEng, err := openBoltEngine(filepath.Join(dir, indexFileName), eopt)
	if err != nil {
		dataEng.Close()
		return nil, fmt.Errorf("neemo: opening index store: %w", err)
	}
	db := newDB(dir, dataEng, indexEng, opt)
	if _, err := db.Reconcile(); err != nil {
		db.Close()
		return nil, fmt.Errorf("neemo: startup reconciliation: %w", err)
	}
	return db, nil
}

// OpenMemory returns a transient database backed by in-memory engines.
func OpenMemory(opt Options) *DB {
	return newDB("", newMemEngine(), newMemEngine(), opt)
}

func newDB(dir string, dataEng, indexEng engine, opt Options) *DB {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		dir:    dir,
		store:  newDocStore(dataEng, logger),
		index:  newSecondaryIndex(indexEng, logger),
		logger: logger,
	}
}

// Dir returns the database directory ("" for in-memory databases).
func (db *DB) Dir() string {
	return db.dir
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	err1 := db.store.eng.Close()
	err2 := db.index.eng.Close()
	if err1 != nil {
		return storageErrf("data", "close", err1)
	}
	if err2 != nil {
		return storageErrf("index", "close", err2)
	}
	return nil
}

// Get returns the document stored at key, or ErrNotFound.
func (db *DB) Get(key string) (Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.get(key)
}

// Scan calls fn for every stored document in key order. Corrupt records
// are skipped with a diagnostic; their count is returned. The scan is
// restartable by calling Scan again.
func (db *DB) Scan(fn func(key string, doc Document) error) (skipped int, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.scan(fn)
}

// Keys returns every document key in order.
func (db *DB) Keys() ([]string, error) {
	var keys []string
	_, err := db.Scan(func(key string, doc Document) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Stats describes the current size of the two sub-stores.
type Stats struct {
	Documents    int
	IndexEntries int
	DataBytes    int64
	IndexBytes   int64
}

func (db *DB) Stats() (Stats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	docs, err := db.store.count()
	if err != nil {
		return Stats{}, err
	}
	entries, err := db.index.eng.Count()
	if err != nil {
		return Stats{}, storageErrf("index", "count", err)
	}
	return Stats{
		Documents:    docs,
		IndexEntries: entries,
		DataBytes:    db.store.eng.Size(),
		IndexBytes:   db.index.eng.Size(),
	}, nil
}

// NeedsReconcile reports whether a failed index maintenance step may have
// left drift between the stores since the last sweep.
func (db *DB) NeedsReconcile() bool {
	return db.needsReconcile.Load()
}
