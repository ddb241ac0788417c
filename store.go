package neemo

import (
	"bytes"
	"log/slog"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Document is a field→value map. Values cover the JSON domain: nil, bool,
// float64, string, []any, map[string]any. Insert normalizes other numeric
// Go types onto float64, so a stored document round-trips byte for byte.
type Document map[string]any

// Fields returns the document's field names in sorted order.
func (doc Document) Fields() []string {
	fields := make([]string, 0, len(doc))
	for f := range doc {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// docStore is the primary key→document mapping. It has no index side
// effects; sequencing against the secondary index is the coordinator's
// job.
type docStore struct {
	eng    engine
	logger *slog.Logger
}

func newDocStore(eng engine, logger *slog.Logger) *docStore {
	return &docStore{eng: eng, logger: logger}
}

func encodeDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true) // deterministic bytes for identical documents
	if err := enc.Encode(map[string]any(doc)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDocument(key, data []byte) (Document, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, corruptErrf(data, 0, err, "document %q", key)
	}
	return Document(m), nil
}

// put overwrites any existing document at key. Durable on return.
func (s *docStore) put(key string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return storageErrf("data", "encode", err)
	}
	if err := s.eng.Put([]byte(key), data); err != nil {
		return storageErrf("data", "put", err)
	}
	return nil
}

func (s *docStore) get(key string) (Document, error) {
	data, found, err := s.eng.Get([]byte(key))
	if err != nil {
		return nil, storageErrf("data", "get", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return decodeDocument([]byte(key), data)
}

// delete removes the document at key and returns it, so the caller can
// compute the index entries to retract.
func (s *docStore) delete(key string) (Document, error) {
	doc, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if err := s.eng.Delete([]byte(key)); err != nil {
		return nil, storageErrf("data", "delete", err)
	}
	return doc, nil
}

// scan calls fn for every stored document in key order. Malformed records
// are reported and skipped rather than aborting the whole scan; the
// number of skipped records is returned.
func (s *docStore) scan(fn func(key string, doc Document) error) (skipped int, err error) {
	err = s.eng.Scan(nil, nil, func(k, v []byte) error {
		doc, err := decodeDocument(k, v)
		if err != nil {
			skipped++
			s.logger.Warn("skipping corrupt document", "key", string(k), "err", err)
			return nil
		}
		return fn(string(k), doc)
	})
	if err != nil {
		return skipped, err
	}
	return skipped, nil
}

func (s *docStore) count() (int, error) {
	n, err := s.eng.Count()
	if err != nil {
		return 0, storageErrf("data", "count", err)
	}
	return n, nil
}
