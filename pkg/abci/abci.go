// Package abci is the boundary between the block producer and the
// application: the producer asks for a proposal, lets the application vet
// it, then finalizes it.
package abci

import "time"

type RequestPrepareProposal struct {
	Height     uint64
	MaxTxBytes int64
}

type ResponsePrepareProposal struct{ Txs [][]byte }

type RequestProcessProposal struct {
	Height uint64
	Txs    [][]byte
}

type ResponseProcessProposal struct{ Accept bool }

type RequestFinalizeBlock struct {
	Height    uint64
	Timestamp time.Time
	Txs       [][]byte
}

type ResponseFinalizeBlock struct {
	Height   uint64
	Accepted int // txs that produced a receipt
	Rejected int // txs dropped before execution
	AppHash  [32]byte
}

type Application interface {
	// LastHeight is the height of the last finalized block, 0 before genesis.
	LastHeight() uint64
	PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal
	ProcessProposal(RequestProcessProposal) ResponseProcessProposal
	FinalizeBlock(RequestFinalizeBlock) (ResponseFinalizeBlock, error)
}
