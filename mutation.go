package neemo

import (
	"bytes"
	"sort"
)

// The mutation coordinator sequences every write across the two stores.
// Mutations form a closed set of typed operations (insert, delete); the
// critical section never executes caller-supplied code.
//
// Ordering is chosen so that an interruption leaves at most extra index
// entries, never an entry pointing at a missing document: new index
// entries are written first, then the document, and stale entries are
// retracted last. The reconciliation sweep removes whatever such an
// interruption left behind.

type mutationOp int

const (
	opInsert mutationOp = iota
	opDelete
)

type mutationState int

const (
	mutationStaged mutationState = iota
	mutationCommitted
	mutationAborted
)

// mutation is the transient descriptor of one logical write. prev carries
// the old-document snapshot so the symmetric set of index entries to
// retract can be computed.
type mutation struct {
	op    mutationOp
	key   string
	doc   Document // insert only: the new content, normalized
	prev  Document
	state mutationState
}

// Insert stores doc at key, replacing any existing document and updating
// the secondary index in the same critical section. Values are normalized
// onto the supported domain first; an unindexable value rejects the whole
// mutation before anything is written.
func (db *DB) Insert(key string, fields map[string]any) error {
	if key == "" {
		return validationErrf("document key must not be empty")
	}
	doc := make(Document, len(fields))
	for f, v := range fields {
		nv, err := normalizeValue(f, v)
		if err != nil {
			return err
		}
		doc[f] = nv
	}

	m := &mutation{op: opInsert, key: key, doc: doc}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.applyInsert(m)
}

func (db *DB) applyInsert(m *mutation) error {
	newKeys, err := db.index.entryKeys(m.key, m.doc)
	if err != nil {
		m.state = mutationAborted
		return err // EncodingError: nothing has been written
	}

	prev, err := db.store.get(m.key)
	switch {
	case err == nil:
		m.prev = prev
	case IsNotFound(err):
		// fresh insert
	default:
		// An unreadable previous document means its index entries cannot be
		// computed; proceed without them and let reconciliation drop strays.
		db.logger.Warn("overwriting unreadable document", "key", m.key, "err", err)
		db.needsReconcile.Store(true)
	}

	var oldKeys [][]byte
	if m.prev != nil {
		oldKeys, err = db.index.entryKeys(m.key, m.prev)
		if err != nil {
			// The stored document no longer normalizes; treat like unreadable.
			db.logger.Warn("cannot compute old index entries", "key", m.key, "err", err)
			db.needsReconcile.Store(true)
			oldKeys = nil
		}
	}

	payload := []byte(m.key)
	for _, k := range newKeys {
		if err := db.index.eng.Put(k, payload); err != nil {
			m.state = mutationAborted
			// Freshly added entries may remain; they reference a document
			// that is about to not change, so they are stale at worst.
			db.needsReconcile.Store(true)
			return storageErrf("index", "put", err)
		}
	}

	if err := db.store.put(m.key, m.doc); err != nil {
		m.state = mutationAborted
		// Retract what was just added so no entry points at content the
		// primary store never accepted.
		if rerr := db.index.removeKeys(subtractKeys(newKeys, oldKeys)); rerr != nil {
			db.logger.Error("rollback of index entries failed", "key", m.key, "err", rerr)
			db.needsReconcile.Store(true)
		}
		return err
	}

	if stale := subtractKeys(oldKeys, newKeys); len(stale) > 0 {
		if err := db.index.removeKeys(stale); err != nil {
			// The document is committed; never swallow this, but the write
			// itself stands. The sweep will retract the stale entries.
			db.needsReconcile.Store(true)
			db.logger.Error("index retraction failed, reconciliation required", "key", m.key, "err", err)
			return err
		}
	}

	m.state = mutationCommitted
	return nil
}

// Delete removes the document at key and its index entries. A missing key
// is a no-op, not an error: (nil, nil) is returned.
func (db *DB) Delete(key string) (Document, error) {
	if key == "" {
		return nil, validationErrf("document key must not be empty")
	}
	m := &mutation{op: opDelete, key: key}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.applyDelete(m)
}

func (db *DB) applyDelete(m *mutation) (Document, error) {
	prev, err := db.store.delete(m.key)
	if err != nil {
		m.state = mutationAborted
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	m.prev = prev

	// Document first, entries second: an interruption here leaves orphan
	// entries, which the sweep removes.
	if err := db.index.removeEntries(m.key, prev); err != nil {
		db.needsReconcile.Store(true)
		db.logger.Error("index retraction failed, reconciliation required", "key", m.key, "err", err)
		return prev, err
	}

	m.state = mutationCommitted
	return prev, nil
}

// Reconcile sweeps the secondary index and deletes every entry that does
// not correspond to a (field, value) pair of a live document: entries
// referencing missing documents (orphans) and entries carrying values a
// surviving document no longer holds. It returns the number of entries
// removed.
func (db *DB) Reconcile() (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	type docEntries struct {
		present bool
		keys    [][]byte
	}
	cache := make(map[string]docEntries)

	var bad [][]byte
	err := db.index.eng.Scan(nil, nil, func(k, v []byte) error {
		_, _, docKey, err := splitIndexKey(k)
		if err != nil {
			db.logger.Warn("removing malformed index key", "err", err)
			bad = append(bad, bytes.Clone(k))
			return nil
		}

		de, ok := cache[docKey]
		if !ok {
			doc, err := db.store.get(docKey)
			switch {
			case err == nil:
				keys, err := db.index.entryKeys(docKey, doc)
				if err != nil {
					db.logger.Warn("document does not normalize, treating entries as stale", "key", docKey, "err", err)
				}
				de = docEntries{present: true, keys: keys}
			case IsNotFound(err):
				de = docEntries{}
			default:
				return err
			}
			cache[docKey] = de
		}

		if !de.present || !containsKey(de.keys, k) {
			bad = append(bad, bytes.Clone(k))
		}
		return nil
	})
	if err != nil {
		return 0, wrapIndexScanErr(err)
	}

	if err := db.index.removeKeys(bad); err != nil {
		return 0, err
	}
	if len(bad) > 0 {
		db.logger.Info("reconciliation removed index entries", "count", len(bad))
	}
	db.needsReconcile.Store(false)
	return len(bad), nil
}

// subtractKeys returns the members of a absent from b.
func subtractKeys(a, b [][]byte) [][]byte {
	if len(a) == 0 {
		return nil
	}
	var out [][]byte
	for _, k := range a {
		if !containsKey(b, k) {
			out = append(out, k)
		}
	}
	return out
}

func containsKey(keys [][]byte, k []byte) bool {
	for _, candidate := range keys {
		if bytes.Equal(candidate, k) {
			return true
		}
	}
	return false
}

// sortKeys orders composite keys lexicographically; used by tests and
// diagnostics that want deterministic output.
func sortKeys(keys [][]byte) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
}
