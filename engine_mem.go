package neemo

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
)

// memEngine is a transient in-memory engine intended for tests. It mirrors
// the durable engine's ordering semantics over a sorted slice.
type memEngine struct {
	mu     sync.RWMutex
	items  []memKV // sorted by key
	closed bool
}

type memKV struct {
	key   []byte
	value []byte
}

func newMemEngine() *memEngine {
	return &memEngine{}
}

func (e *memEngine) Get(key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, false, fmt.Errorf("engine closed")
	}
	i, ok := e.find(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(e.items[i].value), true, nil
}

func (e *memEngine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine closed")
	}
	key = slices.Clone(key)
	value = slices.Clone(value)
	i, ok := e.find(key)
	if ok {
		e.items[i].value = value
		return nil
	}
	e.items = slices.Insert(e.items, i, memKV{key: key, value: value})
	return nil
}

func (e *memEngine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine closed")
	}
	i, ok := e.find(key)
	if !ok {
		return nil
	}
	e.items = slices.Delete(e.items, i, i+1)
	return nil
}

func (e *memEngine) Scan(lo, hi []byte, fn func(key, value []byte) error) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return fmt.Errorf("engine closed")
	}
	// Snapshot so that fn may mutate the engine without invalidating the scan.
	snap := make([]memKV, len(e.items))
	copy(snap, e.items)
	e.mu.RUnlock()

	start := 0
	if lo != nil {
		start, _ = findIn(snap, lo)
	}
	for _, kv := range snap[start:] {
		if hi != nil && bytes.Compare(kv.key, hi) >= 0 {
			return nil
		}
		if err := fn(kv.key, kv.value); err != nil {
			return err
		}
	}
	return nil
}

func (e *memEngine) Count() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.items), nil
}

func (e *memEngine) Size() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var size int64
	for _, kv := range e.items {
		size += int64(len(kv.key) + len(kv.value))
	}
	return size
}

func (e *memEngine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = nil
	return nil
}

func (e *memEngine) Sync() error {
	return nil
}

func (e *memEngine) Snapshot(w io.Writer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := writeSnapshotCount(w, len(e.items)); err != nil {
		return err
	}
	for _, kv := range e.items {
		if err := writeSnapshotPair(w, kv.key, kv.value); err != nil {
			return err
		}
	}
	return nil
}

func (e *memEngine) Restore(r io.Reader) error {
	var items []memKV
	err := readSnapshot(r, func(k, v []byte) error {
		items = append(items, memKV{key: slices.Clone(k), value: slices.Clone(v)})
		return nil
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = items
	return nil
}

func (e *memEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.items = nil
	return nil
}

func (e *memEngine) find(key []byte) (int, bool) {
	return findIn(e.items, key)
}

func findIn(items []memKV, key []byte) (int, bool) {
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}
