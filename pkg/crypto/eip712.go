package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string         // Protocol name (e.g., "Escrowd")
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Chain ID (1337 for local devnet)
	VerifyingContract common.Address // Zero for off-chain signing
}

// ActionEIP712 is the typed data a wallet signs for every transaction kind.
// Fields that do not apply to a kind are zero.
type ActionEIP712 struct {
	Kind      string         // create, fill, close, approve, transfer, faucet
	From      common.Address // signer
	Order     common.Address // escrow address of the order (fill, close)
	Asset     common.Address // token (create, approve, transfer, faucet)
	Direction uint8          // 1 = Buy, 2 = Sell
	Policy    uint8          // 1 = Strict, 2 = Clamped
	Price     uint64         // native base units per asset unit
	Qty       uint64         // asset units
	Value     uint64         // attached native value
	To        common.Address // recipient or spender (approve, transfer, faucet)
	Nonce     uint64
}

var actionTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Action": []apitypes.Type{
		{Name: "kind", Type: "string"},
		{Name: "from", Type: "address"},
		{Name: "order", Type: "address"},
		{Name: "asset", Type: "address"},
		{Name: "direction", Type: "uint8"},
		{Name: "policy", Type: "uint8"},
		{Name: "price", Type: "uint64"},
		{Name: "qty", Type: "uint64"},
		{Name: "value", Type: "uint64"},
		{Name: "to", Type: "address"},
		{Name: "nonce", Type: "uint64"},
	},
}

// EIP712Signer handles EIP-712 typed data signing for actions
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain returns the devnet EIP-712 domain.
func DefaultDomain() EIP712Domain {
	return DomainForChain(1337)
}

func DomainForChain(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:              "Escrowd",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.Address{},
	}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func (e *EIP712Signer) typedData(a *ActionEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       actionTypes,
		PrimaryType: "Action",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"kind":      a.Kind,
			"from":      a.From.Hex(),
			"order":     a.Order.Hex(),
			"asset":     a.Asset.Hex(),
			"direction": strconv.FormatUint(uint64(a.Direction), 10),
			"policy":    strconv.FormatUint(uint64(a.Policy), 10),
			"price":     strconv.FormatUint(a.Price, 10),
			"qty":       strconv.FormatUint(a.Qty, 10),
			"value":     strconv.FormatUint(a.Value, 10),
			"to":        a.To.Hex(),
			"nonce":     strconv.FormatUint(a.Nonce, 10),
		},
	}
}

// HashAction hashes an action as EIP-712 typed data
// Returns the digest that should be signed
func (e *EIP712Signer) HashAction(a *ActionEIP712) ([]byte, error) {
	typedData := e.typedData(a)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)

	return digest.Bytes(), nil
}

// SignAction signs an action and returns the signature
func (e *EIP712Signer) SignAction(signer *Signer, a *ActionEIP712) ([]byte, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return nil, fmt.Errorf("failed to hash action: %w", err)
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign action: %w", err)
	}

	return signature, nil
}

// VerifyActionSignature reports whether signature was made by a.From.
func (e *EIP712Signer) VerifyActionSignature(a *ActionEIP712, signature []byte) (bool, error) {
	recoveredAddr, err := e.RecoverActionSigner(a, signature)
	if err != nil {
		return false, err
	}
	return recoveredAddr == a.From, nil
}

// RecoverActionSigner recovers the address that signed an action
func (e *EIP712Signer) RecoverActionSigner(a *ActionEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash action: %w", err)
	}

	return RecoverAddress(hash, signature)
}

// ActionToJSON converts an action to the eth_signTypedData_v4 payload wallets expect.
func (e *EIP712Signer) ActionToJSON(a *ActionEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(a), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return string(jsonBytes), nil
}
