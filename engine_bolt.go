package neemo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"
)

var boltRootBucket = []byte("kv")

type boltEngine struct {
	bdb *bbolt.DB
}

type boltEngineOptions struct {
	IsTesting bool
	MmapSize  int
}

func openBoltEngine(path string, opt boltEngineOptions) (engine, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(boltRootBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &boltEngine{bdb: bdb}, nil
}

func (e *boltEngine) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := e.bdb.View(func(btx *bbolt.Tx) error {
		v := btx.Bucket(boltRootBucket).Get(key)
		if v != nil {
			value = bytes.Clone(v) // bolt memory is only valid inside the tx
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (e *boltEngine) Put(key, value []byte) error {
	return e.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(boltRootBucket).Put(key, value)
	})
}

func (e *boltEngine) Delete(key []byte) error {
	return e.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(boltRootBucket).Delete(key)
	})
}

func (e *boltEngine) Scan(lo, hi []byte, fn func(key, value []byte) error) error {
	return e.bdb.View(func(btx *bbolt.Tx) error {
		c := btx.Bucket(boltRootBucket).Cursor()
		var k, v []byte
		if lo == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(lo)
		}
		for k != nil {
			if hi != nil && bytes.Compare(k, hi) >= 0 {
				return nil
			}
			if err := fn(k, v); err != nil {
				return err
			}
			k, v = c.Next()
		}
		return nil
	})
}

func (e *boltEngine) Count() (int, error) {
	var n int
	err := e.bdb.View(func(btx *bbolt.Tx) error {
		n = btx.Bucket(boltRootBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (e *boltEngine) Size() int64 {
	var size int64
	e.bdb.View(func(btx *bbolt.Tx) error {
		size = btx.Size()
		return nil
	})
	return size
}

func (e *boltEngine) Clear() error {
	return e.bdb.Update(func(btx *bbolt.Tx) error {
		if err := btx.DeleteBucket(boltRootBucket); err != nil {
			return err
		}
		_, err := btx.CreateBucket(boltRootBucket)
		return err
	})
}

func (e *boltEngine) Sync() error {
	return e.bdb.Sync()
}

func (e *boltEngine) Snapshot(w io.Writer) error {
	return e.bdb.View(func(btx *bbolt.Tx) error {
		buck := btx.Bucket(boltRootBucket)
		if err := writeSnapshotCount(w, buck.Stats().KeyN); err != nil {
			return err
		}
		return buck.ForEach(func(k, v []byte) error {
			return writeSnapshotPair(w, k, v)
		})
	})
}

func (e *boltEngine) Restore(r io.Reader) error {
	if err := e.Clear(); err != nil {
		return err
	}
	return e.bdb.Update(func(btx *bbolt.Tx) error {
		buck := btx.Bucket(boltRootBucket)
		return readSnapshot(r, func(k, v []byte) error {
			return buck.Put(k, v)
		})
	})
}

func (e *boltEngine) Close() error {
	return e.bdb.Close()
}

// Snapshot stream format: uvarint pair count, then per pair a uvarint key
// length, key bytes, uvarint value length, value bytes.

func writeSnapshotCount(w io.Writer, n int) error {
	var buf [binary.MaxVarintLen64]byte
	_, err := w.Write(buf[:binary.PutUvarint(buf[:], uint64(n))])
	return err
}

func writeSnapshotPair(w io.Writer, k, v []byte) error {
	var buf [binary.MaxVarintLen64]byte
	if _, err := w.Write(buf[:binary.PutUvarint(buf[:], uint64(len(k)))]); err != nil {
		return err
	}
	if _, err := w.Write(k); err != nil {
		return err
	}
	if _, err := w.Write(buf[:binary.PutUvarint(buf[:], uint64(len(v)))]); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func readSnapshot(r io.Reader, fn func(k, v []byte) error) error {
	br := byteReaderFrom(r)
	count, err := binary.ReadUvarint(br)
	if err != nil {
		return fmt.Errorf("snapshot: bad pair count: %w", err)
	}
	for i := uint64(0); i < count; i++ {
		k, err := readSnapshotChunk(br)
		if err != nil {
			return fmt.Errorf("snapshot: pair %d key: %w", i, err)
		}
		v, err := readSnapshotChunk(br)
		if err != nil {
			return fmt.Errorf("snapshot: pair %d value: %w", i, err)
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshotChunk(br io.ByteReader) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.(io.Reader), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

type byteReaderAdapter struct {
	io.Reader
	one [1]byte
}

func byteReaderFrom(r io.Reader) io.ByteReader {
	if br, ok := r.(interface {
		io.Reader
		io.ByteReader
	}); ok {
		return br
	}
	return &byteReaderAdapter{Reader: r}
}

func (a *byteReaderAdapter) ReadByte() (byte, error) {
	_, err := io.ReadFull(a.Reader, a.one[:])
	return a.one[0], err
}
