package neemo

import (
	"bytes"
	"log/slog"
)

// secondaryIndex maintains one entry per (field, value) pair of every live
// document. Entries are created and destroyed only by the coordinator,
// never by queries or external callers.
type secondaryIndex struct {
	eng    engine
	logger *slog.Logger
}

func newSecondaryIndex(eng engine, logger *slog.Logger) *secondaryIndex {
	return &secondaryIndex{eng: eng, logger: logger}
}

// entryKeys computes the full set of composite keys the document
// contributes. The document must already be normalized.
func (ix *secondaryIndex) entryKeys(docKey string, doc Document) ([][]byte, error) {
	keys := make([][]byte, 0, len(doc))
	for field, value := range doc {
		cv, err := appendValue(nil, field, value)
		if err != nil {
			return nil, err
		}
		keys = append(keys, appendIndexKey(nil, field, cv, docKey))
	}
	return keys, nil
}

// insertEntries writes one entry per (field, value) pair of doc.
func (ix *secondaryIndex) insertEntries(docKey string, doc Document) error {
	keys, err := ix.entryKeys(docKey, doc)
	if err != nil {
		return err
	}
	payload := []byte(docKey)
	for _, k := range keys {
		if err := ix.eng.Put(k, payload); err != nil {
			return storageErrf("index", "put", err)
		}
	}
	return nil
}

// removeEntries removes exactly the entries insertEntries produced for
// doc. The caller supplies the old document content; recomputing the keys
// from it yields the symmetric set to retract.
func (ix *secondaryIndex) removeEntries(docKey string, doc Document) error {
	keys, err := ix.entryKeys(docKey, doc)
	if err != nil {
		return err
	}
	return ix.removeKeys(keys)
}

func (ix *secondaryIndex) removeKeys(keys [][]byte) error {
	for _, k := range keys {
		if err := ix.eng.Delete(k); err != nil {
			return storageErrf("index", "delete", err)
		}
	}
	return nil
}

// equalityScan calls fn with the key of every document holding value in
// field: zero, one, or many hits.
func (ix *secondaryIndex) equalityScan(field string, value any, fn func(docKey string) error) error {
	value, err := normalizeValue(field, value)
	if err != nil {
		return err
	}
	cv, err := appendValue(nil, field, value)
	if err != nil {
		return err
	}
	prefix := equalityPrefix(field, cv)
	err = ix.eng.Scan(prefix, prefixSuccessor(prefix), func(k, v []byte) error {
		f, entryCV, docKey, err := splitIndexKey(k)
		if err != nil {
			ix.logger.Warn("skipping malformed index key", "err", err)
			return nil
		}
		// The byte prefix also admits entries whose field or value extends
		// the requested one past an escaped 0x00 ("ab" vs "ab\x00c"), so
		// each hit is matched exactly.
		if f != field || !bytes.Equal(entryCV, cv) {
			return nil
		}
		return fn(docKey)
	})
	if err != nil {
		return wrapIndexScanErr(err)
	}
	return nil
}

// rangeScan calls fn with the key of every document whose field value
// falls in the half-open interval [start, end), in canonical value order.
// Valid only for values with an order-preserving encoding; structured
// bounds are rejected.
func (ix *secondaryIndex) rangeScan(field string, start, end any, fn func(docKey string) error) error {
	start, err := normalizeValue(field, start)
	if err != nil {
		return err
	}
	end, err = normalizeValue(field, end)
	if err != nil {
		return err
	}
	if !orderable(start) || !orderable(end) {
		return validationErrf("range bounds must be scalar values")
	}
	startCV, err := appendValue(nil, field, start)
	if err != nil {
		return err
	}
	endCV, err := appendValue(nil, field, end)
	if err != nil {
		return err
	}

	fp := fieldPrefix(field)
	lo := appendEscaped(bytes.Clone(fp), startCV)
	// Escaping makes the entry order diverge from value order around
	// component boundaries, so the upper bound covers the whole field and
	// each hit is checked against the canonical bounds instead.
	err = ix.eng.Scan(lo, prefixSuccessor(fp), func(k, v []byte) error {
		f, cv, docKey, err := splitIndexKey(k)
		if err != nil {
			ix.logger.Warn("skipping malformed index key", "err", err)
			return nil
		}
		if f != field {
			return nil // "age\x00x" entries fall inside the byte prefix of "age"
		}
		if bytes.Compare(cv, startCV) < 0 {
			return nil
		}
		if bytes.Compare(cv, endCV) >= 0 {
			return nil
		}
		return fn(docKey)
	})
	if err != nil {
		return wrapIndexScanErr(err)
	}
	return nil
}

// wrapIndexScanErr labels raw engine failures as index StorageErrors while
// letting already-typed errors from scan callbacks pass through.
func wrapIndexScanErr(err error) error {
	switch err.(type) {
	case *StorageError, *CorruptionError, *EncodingError, *ValidationError:
		return err
	}
	return storageErrf("index", "scan", err)
}
