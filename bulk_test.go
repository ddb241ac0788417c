package neemo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport_RoundTrip(t *testing.T) {
	src := testDB(t)
	require.NoError(t, src.Insert("u1", map[string]any{"name": "Ada", "age": 36}))
	require.NoError(t, src.Insert("u2", map[string]any{"name": "Grace", "tags": []any{"navy"}}))

	path := filepath.Join(t.TempDir(), "dump.jsonl")
	task := src.Export(path)
	require.NoError(t, task.Wait())
	assert.Equal(t, 2, task.Documents())

	dst := testDB(t)
	task = dst.Import(path)
	require.NoError(t, task.Wait())
	assert.Equal(t, 2, task.Documents())

	// Documents land under their original keys with their original content.
	for _, key := range []string{"u1", "u2"} {
		want, err := src.Get(key)
		require.NoError(t, err)
		got, err := dst.Get(key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}

	// Imported documents are queryable, so the index was rebuilt too.
	results, err := dst.QueryEqual("age", 36)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].Key)
}

func TestImport_RejectsRecordWithoutKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"_key":"ok","fields":{"n":1}}`+"\n"+
			`{"fields":{"n":2}}`+"\n"), 0666))

	db := testDB(t)
	task := db.Import(path)

	var valErr *ValidationError
	assert.ErrorAs(t, task.Wait(), &valErr)
	assert.Equal(t, 1, task.Documents(), "records before the bad line stay inserted")

	_, err := db.Get("ok")
	assert.NoError(t, err)
}

func TestImport_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		"\n"+`{"_key":"a","fields":{"n":1}}`+"\n\n"), 0666))

	db := testDB(t)
	task := db.Import(path)
	require.NoError(t, task.Wait())
	assert.Equal(t, 1, task.Documents())
}

func TestExport_FailsOnBadPath(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Insert("u1", map[string]any{"n": 1}))

	task := db.Export(filepath.Join(t.TempDir(), "no", "such", "dir", "out.jsonl"))
	assert.Error(t, task.Wait())
}

func TestImport_FailsOnMissingFile(t *testing.T) {
	db := testDB(t)
	task := db.Import(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, task.Wait())
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	src := testDB(t)
	require.NoError(t, src.Insert("u1", map[string]any{"name": "Ada", "age": 36}))
	require.NoError(t, src.Insert("u2", map[string]any{"name": "Grace", "age": 45}))

	path := filepath.Join(t.TempDir(), "db.bak")
	task := src.Backup(path)
	require.NoError(t, task.Wait())
	assert.Equal(t, 2, task.Documents())

	dst := testDB(t)
	require.NoError(t, dst.Insert("stale", map[string]any{"n": 1}))

	task = dst.Restore(path)
	require.NoError(t, task.Wait())
	assert.Equal(t, 2, task.Documents())

	// Restore replaces, not merges.
	_, err := dst.Get("stale")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := dst.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got["name"])

	// Index entries came along with the documents.
	results, err := dst.QueryRange("age", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, resultKeys(results))
}

func TestBackupRestore_BoltBacked(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "db"), Options{Logger: testLogger(), IsTesting: true})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Insert("k", map[string]any{"n": 7}))

	path := filepath.Join(dir, "db.bak")
	require.NoError(t, db.Backup(path).Wait())

	_, err = db.Delete("k")
	require.NoError(t, err)
	require.NoError(t, db.Restore(path).Wait())

	got, err := db.Get("k")
	require.NoError(t, err)
	assert.Equal(t, float64(7), got["n"])
}

func TestRestore_RejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0666))

	db := testDB(t)
	var valErr *ValidationError
	assert.ErrorAs(t, db.Restore(path).Wait(), &valErr)
}
