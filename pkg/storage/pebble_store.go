package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// ErrReadOnly is returned by writes on a Txn opened with View.
var ErrReadOnly = errors.New("storage: read-only transaction")

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:             64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20, // 64MB
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10, // 512KB
	}
	defer opts.Cache.Unref()
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// NewMemStore opens a store backed by an in-memory filesystem.
func NewMemStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Update runs fn against an indexed batch. The batch is committed if fn
// returns nil and discarded otherwise, so fn's writes are all-or-nothing.
// Reads inside fn observe fn's own uncommitted writes.
func (s *PebbleStore) Update(fn func(tx *Txn) error) error {
	b := s.db.NewIndexedBatch()
	defer b.Close()

	if err := fn(&Txn{r: b, w: b}); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// View runs fn against a consistent snapshot.
func (s *PebbleStore) View(fn func(tx *Txn) error) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()
	return fn(&Txn{r: snap})
}

// Txn is a read (and optionally write) view over the store.
type Txn struct {
	r pebble.Reader
	w pebble.Writer
}

// Get returns a copy of the value at key, or nil, false when absent.
func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := t.r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (t *Txn) Set(key, val []byte) error {
	if t.w == nil {
		return ErrReadOnly
	}
	return t.w.Set(key, val, nil)
}

func (t *Txn) Delete(key []byte) error {
	if t.w == nil {
		return ErrReadOnly
	}
	return t.w.Delete(key, nil)
}

// GetJSON decodes the value at key into v. It reports false when absent.
func (t *Txn) GetJSON(key []byte, v any) (bool, error) {
	data, ok, err := t.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (t *Txn) SetJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return t.Set(key, data)
}

// GetUint64 returns the counter at key, or 0 when absent.
func (t *Txn) GetUint64(key []byte) (uint64, error) {
	data, ok, err := t.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(data)
}

// SetUint64 stores n at key. Zero deletes the key.
func (t *Txn) SetUint64(key []byte, n uint64) error {
	if n == 0 {
		return t.Delete(key)
	}
	return t.Set(key, encodeUint64(n))
}

// Scan calls fn for every key with the given prefix in ascending order, or
// descending when reverse is set, until fn returns false or limit entries
// were visited (limit <= 0 means no limit).
func (t *Txn) Scan(prefix []byte, reverse bool, limit int, fn func(key, val []byte) (bool, error)) error {
	iter, err := t.r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("iterate %s: %w", prefix, err)
	}
	defer iter.Close()

	first, next := iter.First, iter.Next
	if reverse {
		first, next = iter.Last, iter.Prev
	}
	n := 0
	for ok := first(); ok && iter.Valid(); ok = next() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		n++
		if !more || (limit > 0 && n >= limit) {
			break
		}
	}
	return iter.Error()
}

// ScanJSON decodes every value under prefix into a fresh T.
func ScanJSON[T any](t *Txn, prefix []byte, reverse bool, limit int) ([]T, error) {
	var out []T
	err := t.Scan(prefix, reverse, limit, func(_, val []byte) (bool, error) {
		var v T
		if err := json.Unmarshal(val, &v); err != nil {
			return false, fmt.Errorf("failed to unmarshal under %s: %w", prefix, err)
		}
		out = append(out, v)
		return true, nil
	})
	return out, err
}
