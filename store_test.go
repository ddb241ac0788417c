package neemo

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) (*docStore, *memEngine) {
	t.Helper()
	eng := newMemEngine()
	return newDocStore(eng, testLogger()), eng
}

func TestDocStore_PutGetRoundTrip(t *testing.T) {
	s, _ := testStore(t)

	doc := Document{
		"name":   "Ada",
		"age":    float64(36),
		"tags":   []any{"math", "engines"},
		"extra":  map[string]any{"a": float64(1)},
		"flag":   true,
		"absent": nil,
	}
	require.NoError(t, s.put("u1", doc))

	got, err := s.get("u1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestDocStore_SerializationIsDeterministic(t *testing.T) {
	a, err := encodeDocument(Document{"b": float64(1), "a": "x", "c": true})
	require.NoError(t, err)
	b, err := encodeDocument(Document{"c": true, "a": "x", "b": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical documents must serialize identically")
}

func TestDocStore_GetMissing(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocStore_PutOverwrites(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.put("k", Document{"v": float64(1)}))
	require.NoError(t, s.put("k", Document{"v": float64(2)}))

	got, err := s.get("k")
	require.NoError(t, err)
	assert.Equal(t, Document{"v": float64(2)}, got)
}

func TestDocStore_DeleteReturnsPrevious(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.put("k", Document{"v": "old"}))

	prev, err := s.delete("k")
	require.NoError(t, err)
	assert.Equal(t, Document{"v": "old"}, prev)

	_, err = s.get("k")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.delete("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocStore_ScanOrderedAndRestartable(t *testing.T) {
	s, _ := testStore(t)
	require.NoError(t, s.put("b", Document{"n": float64(2)}))
	require.NoError(t, s.put("a", Document{"n": float64(1)}))
	require.NoError(t, s.put("c", Document{"n": float64(3)}))

	collect := func() []string {
		var keys []string
		skipped, err := s.scan(func(key string, doc Document) error {
			keys = append(keys, key)
			return nil
		})
		require.NoError(t, err)
		assert.Zero(t, skipped)
		return keys
	}
	assert.Equal(t, []string{"a", "b", "c"}, collect())
	assert.Equal(t, []string{"a", "b", "c"}, collect(), "scan must be restartable")
}

func TestDocStore_ScanSkipsCorruptRecords(t *testing.T) {
	s, eng := testStore(t)
	require.NoError(t, s.put("good1", Document{"n": float64(1)}))
	require.NoError(t, s.put("good2", Document{"n": float64(2)}))
	require.NoError(t, eng.Put([]byte("bad"), []byte{0xC1, 0xFF, 0x00})) // not valid msgpack

	var keys []string
	skipped, err := s.scan(func(key string, doc Document) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err, "a corrupt record must not abort the scan")
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{"good1", "good2"}, keys)

	// Point reads of the same record do fail.
	var corrErr *CorruptionError
	_, err = s.get("bad")
	assert.ErrorAs(t, err, &corrErr)
}
