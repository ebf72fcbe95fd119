package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	ord:<order>                  → order record
//	bal:<asset>:<owner>          → token balance (uint64)
//	alw:<asset>:<owner>:<spender> → token allowance (uint64)
//	nat:<address>                → native balance (uint64)
//	nonce:<address>              → next expected nonce (uint64)
//	rcpt:<txhash>                → receipt
//	cat:<asset>:<order>          → catalog entry
//	blk:<height>                 → block header, height zero-padded to 20 digits
//	head                         → latest block height (uint64)
const (
	prefixOrder     = "ord:"
	prefixBalance   = "bal:"
	prefixAllowance = "alw:"
	prefixNative    = "nat:"
	prefixNonce     = "nonce:"
	prefixReceipt   = "rcpt:"
	prefixCatalog   = "cat:"
	prefixBlock     = "blk:"
)

func OrderKey(ref common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixOrder, ref.Hex()))
}

func OrderPrefix() []byte { return []byte(prefixOrder) }

func BalanceKey(asset, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), owner.Hex()))
}

func AllowanceKey(asset, owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAllowance, asset.Hex(), owner.Hex(), spender.Hex()))
}

func NativeKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixNative, addr.Hex()))
}

func NonceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixNonce, addr.Hex()))
}

func ReceiptKey(h common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixReceipt, h.Hex()))
}

func CatalogKey(asset, order common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixCatalog, asset.Hex(), order.Hex()))
}

// CatalogPrefix returns the prefix of every catalog entry for asset.
func CatalogPrefix(asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixCatalog, asset.Hex()))
}

func BlockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBlock, height))
}

func BlockPrefix() []byte { return []byte(prefixBlock) }

func HeadKey() []byte { return []byte("head") }

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
