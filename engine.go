package neemo

import "io"

// engine represents one ordered key-value sub-store (Bolt, in-memory,
// anything with lexicographic byte ordering). The database owns two
// instances, one for documents and one for index entries; all consistency
// between them is the coordinator's job, not the engine's.
type engine interface {
	// Get retrieves a value by key. Returns (nil, false, nil) if absent.
	Get(key []byte) (value []byte, found bool, err error)

	// Put stores a key-value pair, overwriting any previous value.
	Put(key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Scan calls fn for every pair with lo <= key < hi in key order.
	// A nil lo starts at the first key; a nil hi runs to the end.
	// Returning an error from fn stops the scan and propagates it.
	Scan(lo, hi []byte, fn func(key, value []byte) error) error

	// Count returns the number of stored pairs (best effort).
	Count() (int, error)

	// Size returns the on-disk size in bytes (0 if not applicable).
	Size() int64

	// Clear removes every pair.
	Clear() error

	// Sync flushes pending writes to stable storage.
	Sync() error

	// Snapshot writes a self-delimiting copy of the whole store to w:
	// a uvarint pair count followed by length-prefixed key/value pairs.
	Snapshot(w io.Writer) error

	// Restore replaces the store's contents with a Snapshot stream.
	Restore(r io.Reader) error

	// Close releases the store.
	Close() error
}

// prefixSuccessor returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists (all-0xFF prefix). The input
// is not modified.
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			succ := make([]byte, i+1)
			copy(succ, prefix[:i+1])
			succ[i]++
			return succ
		}
	}
	return nil
}
