package escrow

import "github.com/ethereum/go-ethereum/common"

// AssetLedger is the external ledger of the order's asset. The host binds it
// to the order's asset and to the order's escrow address as spender, so
// TransferFrom moves amount from -> to under an allowance granted by from.
// A false result with a nil error is a refused transfer.
type AssetLedger interface {
	TransferFrom(from, to common.Address, amount uint64) (bool, error)
}

// ValueTransfer is the native balance held by the order's escrow account.
// Pay either moves the full amount or returns an error.
type ValueTransfer interface {
	Balance() uint64
	Pay(to common.Address, amount uint64) error
}

// EventLog receives completed fills and closes. Fire-and-forget.
type EventLog interface {
	Record(ev Event)
}

// OrderRegistry is the discovery catalog of orders. The engine never depends
// on its result.
type OrderRegistry interface {
	Notify(order, asset, creator common.Address)
}

// Env carries the capabilities an order may invoke during one call.
type Env struct {
	Ledger AssetLedger
	Vault  ValueTransfer
	Events EventLog
	Block  uint64 // height of the block executing the call
}

func (e Env) record(ev Event) {
	if e.Events != nil {
		e.Events.Record(ev)
	}
}
