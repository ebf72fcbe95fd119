package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/storage"
)

var (
	asset   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	spender = common.HexToAddress("0x0000000000000000000000000000000000000e01")
)

// inTxn runs fn in a committed batch on a fresh in-memory store.
func inTxn(t *testing.T, fn func(tx *storage.Txn)) *storage.PebbleStore {
	t.Helper()
	s, err := storage.NewMemStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Update(func(tx *storage.Txn) error {
		fn(tx)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTokenTransferFrom(t *testing.T) {
	inTxn(t, func(tx *storage.Txn) {
		tokens := NewTokens(tx)
		if err := tokens.Mint(asset, alice, 10); err != nil {
			t.Fatal(err)
		}
		if err := tokens.Approve(asset, alice, spender, 6); err != nil {
			t.Fatal(err)
		}

		view := tokens.For(asset, spender)
		ok, err := view.TransferFrom(alice, bob, 4)
		if err != nil || !ok {
			t.Fatalf("transfer: ok=%v err=%v", ok, err)
		}

		if bal, _ := tokens.Balance(asset, bob); bal != 4 {
			t.Errorf("bob = %d", bal)
		}
		if left, _ := tokens.Allowance(asset, alice, spender); left != 2 {
			t.Errorf("allowance left = %d", left)
		}

		// exceeds allowance: refused, not an error
		ok, err = view.TransferFrom(alice, bob, 3)
		if err != nil || ok {
			t.Errorf("over-allowance: ok=%v err=%v", ok, err)
		}
		if bal, _ := tokens.Balance(asset, alice); bal != 6 {
			t.Errorf("refused transfer moved funds: alice = %d", bal)
		}
	})
}

func TestUnlimitedAllowance(t *testing.T) {
	inTxn(t, func(tx *storage.Txn) {
		tokens := NewTokens(tx)
		tokens.Mint(asset, alice, 10)
		tokens.Approve(asset, alice, spender, UnlimitedAllowance)
		if err := tokens.TransferFrom(asset, spender, alice, bob, 10); err != nil {
			t.Fatal(err)
		}
		if left, _ := tokens.Allowance(asset, alice, spender); left != UnlimitedAllowance {
			t.Errorf("unlimited allowance decremented to %d", left)
		}
	})
}

func TestTokenTransferInsufficient(t *testing.T) {
	inTxn(t, func(tx *storage.Txn) {
		tokens := NewTokens(tx)
		tokens.Mint(asset, alice, 1)
		if err := tokens.Transfer(asset, alice, bob, 2); !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("got %v", err)
		}
		// self transfer keeps the balance
		if err := tokens.Transfer(asset, alice, alice, 1); err != nil {
			t.Fatal(err)
		}
		if bal, _ := tokens.Balance(asset, alice); bal != 1 {
			t.Errorf("self transfer changed balance to %d", bal)
		}
	})
}

func TestBankVault(t *testing.T) {
	s := inTxn(t, func(tx *storage.Txn) {
		bank := NewBank(tx)
		if err := bank.Credit(alice, 100); err != nil {
			t.Fatal(err)
		}
		if err := bank.Transfer(alice, spender, 60); err != nil {
			t.Fatal(err)
		}

		v := bank.Vault(spender)
		if v.Balance() != 60 {
			t.Errorf("vault balance = %d", v.Balance())
		}
		if err := v.Pay(bob, 25); err != nil {
			t.Fatal(err)
		}
		if err := v.Pay(bob, 36); !errors.Is(err, ErrInsufficientFunds) {
			t.Errorf("overdraft: %v", err)
		}
		if v.Err() != nil {
			t.Errorf("vault err = %v", v.Err())
		}
	})

	s.View(func(tx *storage.Txn) error {
		bank := NewBank(tx)
		for addr, want := range map[common.Address]uint64{alice: 40, spender: 35, bob: 25} {
			if got, _ := bank.Balance(addr); got != want {
				t.Errorf("%s = %d, want %d", addr.Hex(), got, want)
			}
		}
		return nil
	})
}
