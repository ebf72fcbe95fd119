package escrow

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	carol   = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	token   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	orderAt = common.HexToAddress("0x0000000000000000000000000000000000000e01")
)

// fakeLedger is an in-memory asset ledger with unlimited allowances.
type fakeLedger struct {
	balances map[common.Address]uint64
	refuse   bool
	fail     error
	hook     func() // runs before the transfer is applied
	calls    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[common.Address]uint64{}}
}

func (l *fakeLedger) TransferFrom(from, to common.Address, amount uint64) (bool, error) {
	l.calls++
	if l.hook != nil {
		h := l.hook
		l.hook = nil
		h()
	}
	if l.fail != nil {
		return false, l.fail
	}
	if l.refuse || l.balances[from] < amount {
		return false, nil
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return true, nil
}

// fakeVault is the escrow account of a single order.
type fakeVault struct {
	balance  uint64
	paid     map[common.Address]uint64
	payments int
	failOn   int // fail the nth Pay call (1-based); 0 never fails
	hook     func()
}

func newFakeVault(balance uint64) *fakeVault {
	return &fakeVault{balance: balance, paid: map[common.Address]uint64{}}
}

var errPayFailed = errors.New("pay failed")

func (v *fakeVault) Balance() uint64 { return v.balance }

func (v *fakeVault) Pay(to common.Address, amount uint64) error {
	v.payments++
	if v.failOn == v.payments {
		return errPayFailed
	}
	if v.hook != nil {
		h := v.hook
		v.hook = nil
		h()
	}
	if amount > v.balance {
		return errors.New("vault underflow")
	}
	v.balance -= amount
	v.paid[to] += amount
	return nil
}

type recordingLog struct{ events []Event }

func (r *recordingLog) Record(ev Event) { r.events = append(r.events, ev) }

func newEnv(l *fakeLedger, v *fakeVault) (Env, *recordingLog) {
	log := &recordingLog{}
	return Env{Ledger: l, Vault: v, Events: log, Block: 7}, log
}

func mustCreate(t testing.TB, p Params, deposit uint64) *Order {
	t.Helper()
	o, err := Create(orderAt, p, deposit, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return o
}
