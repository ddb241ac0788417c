package neemo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"
)

// Task is the completion handle of a bulk operation. Bulk work runs
// asynchronously relative to the caller, but never detached: Wait blocks
// until the operation finishes and reports its outcome. Tasks are not
// cancellable mid-flight.
type Task struct {
	Kind string

	done chan struct{}
	err  error
	n    int
}

func startTask(kind string, run func() (int, error)) *Task {
	t := &Task{Kind: kind, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.n, t.err = run()
	}()
	return t
}

// Wait blocks until the task completes and returns its error, if any.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Documents returns the number of documents the task processed. Valid
// after Wait returns.
func (t *Task) Documents() int {
	return t.n
}

// exportRecord is one line of the export format. The document key rides
// along explicitly so that import restores documents under their original
// keys instead of deriving keys from content.
type exportRecord struct {
	Key    string         `json:"_key"`
	Fields map[string]any `json:"fields"`
}

// Export writes every document as one canonical JSON record per line.
// The file appears atomically: a failed export leaves no partial file.
func (db *DB) Export(path string) *Task {
	return startTask("export", func() (int, error) {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		n := 0

		db.mu.RLock()
		_, err := db.store.scan(func(key string, doc Document) error {
			line, err := json.Marshal(exportRecord{Key: key, Fields: doc})
			if err != nil {
				return fmt.Errorf("document %q: %w", key, err)
			}
			if _, err := w.Write(line); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
			n++
			return nil
		})
		db.mu.RUnlock()
		if err != nil {
			return 0, err
		}
		if err := w.Flush(); err != nil {
			return 0, err
		}
		if err := atomic.WriteFile(path, &buf); err != nil {
			return 0, fmt.Errorf("export: %w", err)
		}
		return n, nil
	})
}

// Import inserts every record of an export file, preserving the original
// document keys. Each record is one coordinated mutation; earlier records
// stay inserted if a later one fails.
func (db *DB) Import(path string) *Task {
	return startTask("import", func() (int, error) {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("import: %w", err)
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
		n := 0
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var rec exportRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return n, validationErrf("import line %d: %v", lineNo, err)
			}
			if rec.Key == "" {
				return n, validationErrf("import line %d: missing _key", lineNo)
			}
			if err := db.Insert(rec.Key, rec.Fields); err != nil {
				return n, fmt.Errorf("import line %d: %w", lineNo, err)
			}
			n++
		}
		if err := sc.Err(); err != nil {
			return n, fmt.Errorf("import: %w", err)
		}
		return n, nil
	})
}

// backupMagic identifies the archive format: lz4-compressed snapshot
// streams of the data store followed by the index store.
var backupMagic = []byte("NEEMOBK1")

// Backup writes a consistent copy of the whole database. The write lock
// is held for the duration of the copy, giving the required quiescent
// point: no writer can interleave, so the two sub-stores cannot drift
// apart between their snapshots.
func (db *DB) Backup(path string) *Task {
	return startTask("backup", func() (int, error) {
		db.mu.Lock()
		defer db.mu.Unlock()

		if err := db.store.eng.Sync(); err != nil {
			return 0, storageErrf("data", "sync", err)
		}
		if err := db.index.eng.Sync(); err != nil {
			return 0, storageErrf("index", "sync", err)
		}

		// The stores are frozen by the lock, so the two snapshots can be
		// taken concurrently.
		var dataBuf, indexBuf bytes.Buffer
		var g errgroup.Group
		g.Go(func() error { return db.store.eng.Snapshot(&dataBuf) })
		g.Go(func() error { return db.index.eng.Snapshot(&indexBuf) })
		if err := g.Wait(); err != nil {
			return 0, fmt.Errorf("backup: %w", err)
		}

		var out bytes.Buffer
		out.Write(backupMagic)
		zw := lz4.NewWriter(&out)
		if _, err := zw.Write(dataBuf.Bytes()); err != nil {
			return 0, fmt.Errorf("backup: %w", err)
		}
		if _, err := zw.Write(indexBuf.Bytes()); err != nil {
			return 0, fmt.Errorf("backup: %w", err)
		}
		if err := zw.Close(); err != nil {
			return 0, fmt.Errorf("backup: %w", err)
		}

		if err := atomic.WriteFile(path, &out); err != nil {
			return 0, fmt.Errorf("backup: %w", err)
		}
		n, err := db.store.count()
		if err != nil {
			return 0, err
		}
		return n, nil
	})
}

// Restore replaces the database's contents with a backup archive. Both
// sub-stores are swapped under the write lock, so readers observe either
// the old database or the restored one, never a mix.
func (db *DB) Restore(path string) *Task {
	return startTask("restore", func() (int, error) {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("restore: %w", err)
		}
		defer f.Close()

		magic := make([]byte, len(backupMagic))
		if _, err := io.ReadFull(f, magic); err != nil {
			return 0, validationErrf("restore: not a backup archive: %v", err)
		}
		if !bytes.Equal(magic, backupMagic) {
			return 0, validationErrf("restore: not a backup archive")
		}
		zr := lz4.NewReader(f)

		db.mu.Lock()
		defer db.mu.Unlock()

		if err := db.store.eng.Restore(zr); err != nil {
			return 0, storageErrf("data", "restore", err)
		}
		if err := db.index.eng.Restore(zr); err != nil {
			return 0, storageErrf("index", "restore", err)
		}
		if err := db.store.eng.Sync(); err != nil {
			return 0, storageErrf("data", "sync", err)
		}
		if err := db.index.eng.Sync(); err != nil {
			return 0, storageErrf("index", "sync", err)
		}
		n, err := db.store.count()
		if err != nil {
			return 0, err
		}
		return n, nil
	})
}
