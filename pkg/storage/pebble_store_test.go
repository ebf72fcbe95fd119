package storage

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewMemStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpdateCommitsAndDiscards(t *testing.T) {
	s := newTestStore(t)
	addr := common.HexToAddress("0x01")

	if err := s.Update(func(tx *Txn) error {
		return tx.SetUint64(NativeKey(addr), 42)
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	boom := errors.New("boom")
	err := s.Update(func(tx *Txn) error {
		if err := tx.SetUint64(NativeKey(addr), 7); err != nil {
			return err
		}
		// reads see the batch's own writes
		n, err := tx.GetUint64(NativeKey(addr))
		if err != nil {
			return err
		}
		if n != 7 {
			t.Errorf("read own write = %d", n)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	var got uint64
	if err := s.View(func(tx *Txn) error {
		var err error
		got, err = tx.GetUint64(NativeKey(addr))
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Errorf("balance = %d, want 42 after discarded batch", got)
	}
}

func TestViewIsReadOnly(t *testing.T) {
	s := newTestStore(t)
	err := s.View(func(tx *Txn) error {
		return tx.Set([]byte("k"), []byte("v"))
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("got %v, want ErrReadOnly", err)
	}
}

func TestSetUint64ZeroDeletes(t *testing.T) {
	s := newTestStore(t)
	key := NonceKey(common.HexToAddress("0x02"))
	if err := s.Update(func(tx *Txn) error {
		if err := tx.SetUint64(key, 3); err != nil {
			return err
		}
		return tx.SetUint64(key, 0)
	}); err != nil {
		t.Fatal(err)
	}
	s.View(func(tx *Txn) error {
		if _, ok, _ := tx.Get(key); ok {
			t.Error("zero counter still stored")
		}
		return nil
	})
}

func TestScanJSONPrefix(t *testing.T) {
	s := newTestStore(t)
	assetA := common.HexToAddress("0xaa")
	assetB := common.HexToAddress("0xbb")

	type entry struct {
		Order string `json:"order"`
	}
	if err := s.Update(func(tx *Txn) error {
		for i, a := range []common.Address{assetA, assetA, assetA, assetB} {
			o := common.BigToAddress(big.NewInt(int64(i + 1)))
			if err := tx.SetJSON(CatalogKey(a, o), entry{Order: o.Hex()}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	s.View(func(tx *Txn) error {
		all, err := ScanJSON[entry](tx, CatalogPrefix(assetA), false, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("got %d entries for asset A, want 3", len(all))
		}
		if !strings.HasSuffix(all[0].Order, "1") {
			t.Errorf("ascending scan starts at %s", all[0].Order)
		}

		last, err := ScanJSON[entry](tx, CatalogPrefix(assetA), true, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(last) != 2 || !strings.HasSuffix(last[0].Order, "3") {
			t.Errorf("reverse scan = %+v", last)
		}
		return nil
	})
}

func TestBlockKeysSortByHeight(t *testing.T) {
	if string(BlockKey(9)) >= string(BlockKey(10)) {
		t.Error("block keys do not sort numerically")
	}
}

func TestFileWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.wal")
	w, err := NewFileWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Append("h=1 tx=0xab ok")
	w.Append("h=1 tx=0xcd failed")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}
}
