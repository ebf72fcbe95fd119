package escrow

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestBuyFillFull(t *testing.T) {
	o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Buy, Policy: Clamped, UnitPrice: 10_000_000, Quantity: 50}, 500_000_000)
	l := newFakeLedger()
	l.balances[bob] = 50
	v := newFakeVault(500_000_000)
	env, log := newEnv(l, v)

	ev, err := o.Fill(env, bob, 50, 0)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if ev.Quantity != 50 || ev.TotalValue != 500_000_000 || ev.Remaining != 0 || ev.Status != Closed || ev.Block != 7 {
		t.Errorf("unexpected fill event %+v", ev)
	}
	if v.paid[bob] != 500_000_000 {
		t.Errorf("counterparty paid %d", v.paid[bob])
	}
	if v.balance != 0 {
		t.Errorf("residual escrow = %d", v.balance)
	}
	if l.balances[alice] != 50 || l.balances[bob] != 0 {
		t.Errorf("asset balances alice=%d bob=%d", l.balances[alice], l.balances[bob])
	}
	if len(log.events) != 2 {
		t.Fatalf("events = %d, want fill+close", len(log.events))
	}
	if c, ok := log.events[1].(CloseEvent); !ok || !c.Auto || c.Refund != 0 {
		t.Errorf("second event = %+v", log.events[1])
	}
}

func TestOversizeFill(t *testing.T) {
	tests := []struct {
		name    string
		policy  FillPolicy
		wantErr error
		wantQty uint64
	}{
		{"strict rejects", Strict, ErrExceedsAvailable, 0},
		{"clamped fills remaining", Clamped, nil, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Buy, Policy: tt.policy, UnitPrice: 10_000_000, Quantity: 50}, 500_000_000)
			l := newFakeLedger()
			l.balances[bob] = 100
			v := newFakeVault(500_000_000)
			env, _ := newEnv(l, v)

			ev, err := o.Fill(env, bob, 60, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if ev.Quantity != tt.wantQty {
				t.Errorf("filled %d, want %d", ev.Quantity, tt.wantQty)
			}
			if tt.wantErr != nil {
				if l.calls != 0 || v.payments != 0 || o.Remaining() != 50 {
					t.Errorf("rejected fill had effects: ledger=%d pay=%d remaining=%d", l.calls, v.payments, o.Remaining())
				}
				return
			}
			if o.Status() != Closed || v.paid[bob] != 500_000_000 || v.balance != 0 {
				t.Errorf("clamped fill: status=%s paid=%d residual=%d", o.Status(), v.paid[bob], v.balance)
			}
		})
	}
}

func TestSellSequentialFills(t *testing.T) {
	o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Sell, Policy: Strict, UnitPrice: 10, Quantity: 4}, 0)
	l := newFakeLedger()
	l.balances[alice] = 4
	v := newFakeVault(5) // pre-funded residual held by the escrow account
	env, log := newEnv(l, v)

	v.balance += 20 // host credits attached value before the call
	if _, err := o.Fill(env, bob, 2, 20); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if o.Remaining() != 2 || o.Status() != Active {
		t.Fatalf("after first fill remaining=%d status=%s", o.Remaining(), o.Status())
	}

	v.balance += 20
	ev, err := o.Fill(env, carol, 2, 20)
	if err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if ev.Status != Closed || o.Remaining() != 0 {
		t.Errorf("order not closed: %+v", ev)
	}
	if v.paid[alice] != 45 {
		t.Errorf("creator received %d, want 40 payment + 5 residual", v.paid[alice])
	}
	if l.balances[bob] != 2 || l.balances[carol] != 2 || l.balances[alice] != 0 {
		t.Errorf("asset balances %+v", l.balances)
	}
	if v.balance != 0 {
		t.Errorf("escrow left %d", v.balance)
	}

	closes := 0
	for _, e := range log.events {
		if _, ok := e.(CloseEvent); ok {
			closes++
		}
	}
	if closes != 1 {
		t.Errorf("close events = %d, want 1", closes)
	}

	// residual refunded exactly once: later close is a no-op
	if ev, err := o.Close(env, alice); err != nil || ev != nil {
		t.Errorf("close after auto-close: %v %v", ev, err)
	}
}

func TestSellInsufficientPayment(t *testing.T) {
	o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Sell, Policy: Clamped, UnitPrice: 10, Quantity: 4}, 0)
	l := newFakeLedger()
	l.balances[alice] = 4
	v := newFakeVault(19)
	env, log := newEnv(l, v)

	_, err := o.Fill(env, bob, 2, 19)
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("got %v, want ErrInsufficientPayment", err)
	}
	if l.calls != 0 || v.payments != 0 || len(log.events) != 0 {
		t.Errorf("effects on failed fill: ledger=%d pay=%d events=%d", l.calls, v.payments, len(log.events))
	}
	if o.Remaining() != 4 {
		t.Errorf("remaining = %d", o.Remaining())
	}
}

func TestSellRefundsExcessPayment(t *testing.T) {
	o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Sell, Policy: Clamped, UnitPrice: 10, Quantity: 4}, 0)
	l := newFakeLedger()
	l.balances[alice] = 4
	v := newFakeVault(25)
	env, _ := newEnv(l, v)

	ev, err := o.Fill(env, bob, 2, 25)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if ev.Refund != 5 || v.paid[bob] != 5 || v.paid[alice] != 20 {
		t.Errorf("refund=%d paid bob=%d alice=%d", ev.Refund, v.paid[bob], v.paid[alice])
	}
}

func TestFillRejections(t *testing.T) {
	base := Params{Creator: alice, Asset: token, Direction: Buy, Policy: Strict, UnitPrice: 10, Quantity: 5}

	t.Run("self trade", func(t *testing.T) {
		o := mustCreate(t, base, 50)
		env, _ := newEnv(newFakeLedger(), newFakeVault(50))
		if _, err := o.Fill(env, alice, 1, 0); !errors.Is(err, ErrSelfTrade) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		o := mustCreate(t, base, 50)
		env, _ := newEnv(newFakeLedger(), newFakeVault(50))
		if _, err := o.Fill(env, bob, 0, 0); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("closed order", func(t *testing.T) {
		o := mustCreate(t, base, 50)
		env, _ := newEnv(newFakeLedger(), newFakeVault(50))
		if _, err := o.Close(env, alice); err != nil {
			t.Fatal(err)
		}
		if _, err := o.Fill(env, bob, 1, 0); !errors.Is(err, ErrOrderClosed) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("ledger refuses", func(t *testing.T) {
		o := mustCreate(t, base, 50)
		l := newFakeLedger()
		l.refuse = true
		v := newFakeVault(50)
		env, _ := newEnv(l, v)
		_, err := o.Fill(env, bob, 1, 0)
		if !errors.Is(err, ErrAssetTransferFailed) {
			t.Fatalf("got %v", err)
		}
		if o.Remaining() != 5 || v.payments != 0 {
			t.Errorf("refused transfer had effects")
		}
	})

	t.Run("ledger error", func(t *testing.T) {
		o := mustCreate(t, base, 50)
		l := newFakeLedger()
		boom := errors.New("boom")
		l.fail = boom
		env, _ := newEnv(l, newFakeVault(50))
		_, err := o.Fill(env, bob, 1, 0)
		if !errors.Is(err, ErrAssetTransferFailed) || !errors.Is(err, boom) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("escrow drained", func(t *testing.T) {
		o := mustCreate(t, base, 50)
		l := newFakeLedger()
		l.balances[bob] = 5
		env, _ := newEnv(l, newFakeVault(10))
		if _, err := o.Fill(env, bob, 2, 0); !errors.Is(err, ErrInsufficientEscrow) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestFillOverflow(t *testing.T) {
	o, err := Restore(Record{Ref: orderAt, Creator: alice, Asset: token, Direction: Sell, Policy: Clamped, UnitPrice: math.MaxUint64 / 2, Quantity: 3, Remaining: 3})
	if err != nil {
		t.Fatal(err)
	}
	env, _ := newEnv(newFakeLedger(), newFakeVault(0))
	if _, err := o.Fill(env, bob, 3, math.MaxUint64); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestFillPayFailureRollsBack(t *testing.T) {
	o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Buy, Policy: Clamped, UnitPrice: 10, Quantity: 5}, 50)
	l := newFakeLedger()
	l.balances[bob] = 5
	v := newFakeVault(50)
	v.failOn = 1
	env, log := newEnv(l, v)

	if _, err := o.Fill(env, bob, 5, 0); !errors.Is(err, errPayFailed) {
		t.Fatalf("got %v", err)
	}
	if o.Remaining() != 5 || o.Status() != Active || len(log.events) != 0 {
		t.Errorf("order not rolled back: remaining=%d status=%s events=%d", o.Remaining(), o.Status(), len(log.events))
	}
}

func TestReentrancy(t *testing.T) {
	t.Run("ledger sees pre-fill state", func(t *testing.T) {
		o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Buy, Policy: Clamped, UnitPrice: 10, Quantity: 5}, 50)
		l := newFakeLedger()
		l.balances[bob] = 5
		v := newFakeVault(50)
		env, _ := newEnv(l, v)

		var seen Snapshot
		l.hook = func() { seen = o.Details(v) }
		if _, err := o.Fill(env, bob, 2, 0); err != nil {
			t.Fatal(err)
		}
		if seen.Remaining != 5 || seen.EscrowBalance != 50 {
			t.Errorf("inside transfer saw %+v", seen)
		}
	})

	t.Run("pay sees post-fill state", func(t *testing.T) {
		o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Buy, Policy: Clamped, UnitPrice: 10, Quantity: 5}, 50)
		l := newFakeLedger()
		l.balances[bob] = 5
		v := newFakeVault(50)
		env, _ := newEnv(l, v)

		var seen Snapshot
		v.hook = func() { seen = o.Details(v) }
		if _, err := o.Fill(env, bob, 2, 0); err != nil {
			t.Fatal(err)
		}
		if seen.Remaining != 3 {
			t.Errorf("inside pay saw remaining=%d", seen.Remaining)
		}
	})

	t.Run("nested fill exhausts order", func(t *testing.T) {
		o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Buy, Policy: Clamped, UnitPrice: 10, Quantity: 5}, 50)
		l := newFakeLedger()
		l.balances[bob] = 10
		l.balances[carol] = 10
		v := newFakeVault(50)
		env, _ := newEnv(l, v)

		var inner error
		l.hook = func() { _, inner = o.Fill(env, carol, 5, 0) }
		_, err := o.Fill(env, bob, 5, 0)
		if inner != nil {
			t.Fatalf("inner fill: %v", inner)
		}
		if !errors.Is(err, ErrOrderClosed) {
			t.Fatalf("outer fill: got %v, want ErrOrderClosed", err)
		}
		if o.Remaining() != 0 || v.paid[carol] != 50 || v.paid[bob] != 0 {
			t.Errorf("remaining=%d carol=%d bob=%d", o.Remaining(), v.paid[carol], v.paid[bob])
		}
	})
}

func TestBuyPartialFillsKeepEscrowCovered(t *testing.T) {
	o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Buy, Policy: Clamped, UnitPrice: 10, Quantity: 5}, 80)
	l := newFakeLedger()
	l.balances[bob] = 2
	l.balances[carol] = 5
	v := newFakeVault(80)
	env, log := newEnv(l, v)

	covered := func(step string) {
		t.Helper()
		if need := o.Remaining() * o.UnitPrice(); v.Balance() < need {
			t.Errorf("%s: escrow %d below remaining value %d", step, v.Balance(), need)
		}
	}

	if _, err := o.Fill(env, bob, 2, 0); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	covered("after first fill")
	if o.Remaining() != 3 || v.Balance() != 60 || v.paid[alice] != 0 {
		t.Errorf("after first fill: remaining=%d escrow=%d creator refund=%d", o.Remaining(), v.Balance(), v.paid[alice])
	}

	ev, err := o.Fill(env, carol, 5, 0)
	if err != nil {
		t.Fatalf("second fill: %v", err)
	}
	covered("after second fill")
	if ev.Quantity != 3 || v.paid[carol] != 30 || o.Status() != Closed {
		t.Errorf("second fill: %+v paid=%d status=%s", ev, v.paid[carol], o.Status())
	}
	if v.paid[alice] != 30 || v.Balance() != 0 {
		t.Errorf("slack refund = %d, residual = %d; want 30 and 0", v.paid[alice], v.Balance())
	}

	if ev, err := o.Close(env, alice); err != nil || ev != nil {
		t.Fatalf("close after auto-close = %+v, %v", ev, err)
	}
	if v.paid[alice] != 30 {
		t.Errorf("slack refunded again: %d", v.paid[alice])
	}
	var closes int
	for _, e := range log.events {
		if _, ok := e.(CloseEvent); ok {
			closes++
		}
	}
	if closes != 1 {
		t.Errorf("close events = %d, want 1", closes)
	}
}

func TestCheckFillHasNoEffects(t *testing.T) {
	tests := []struct {
		name    string
		caller  common.Address
		qty     uint64
		value   uint64
		wantErr error
	}{
		{"self trade", alice, 1, 0, ErrSelfTrade},
		{"short payment", bob, 2, 19, ErrInsufficientPayment},
		{"accepted", bob, 2, 20, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := mustCreate(t, Params{Creator: alice, Asset: token, Direction: Sell, Policy: Strict, UnitPrice: 10, Quantity: 4}, 0)
			l := newFakeLedger()
			l.balances[alice] = 4
			v := newFakeVault(0)
			env, log := newEnv(l, v)

			if err := o.CheckFill(env, tt.caller, tt.qty, tt.value); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if l.calls != 0 || v.payments != 0 || len(log.events) != 0 || o.Remaining() != 4 {
				t.Errorf("check had effects: ledger=%d pay=%d events=%d remaining=%d", l.calls, v.payments, len(log.events), o.Remaining())
			}
		})
	}
}
