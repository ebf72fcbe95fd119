package transaction

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/crypto"
)

// Verifier handles transaction signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Hash returns the EIP-712 digest of the action, used as the transaction hash.
func (v *Verifier) Hash(tx *SignedTransaction) (common.Hash, error) {
	digest, err := v.eip712Signer.HashAction(tx.Action.ToEIP712())
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(digest), nil
}

// Verify checks that the signature was made by Action.From and returns the
// transaction hash.
func (v *Verifier) Verify(tx *SignedTransaction) (common.Hash, error) {
	sigBytes, err := decodeSignature(tx.Signature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	hash, err := v.Hash(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	signer, err := crypto.RecoverAddress(hash.Bytes(), sigBytes)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != tx.Action.From {
		return common.Hash{}, fmt.Errorf("%w: signed by %s, claims %s", ErrInvalidSignature, signer.Hex(), tx.Action.From.Hex())
	}
	return hash, nil
}

// Sign fills in tx.Type and tx.Signature for action using signer.
func (v *Verifier) Sign(signer *crypto.Signer, action Action) (*SignedTransaction, error) {
	sig, err := v.eip712Signer.SignAction(signer, action.ToEIP712())
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{
		Type:      action.Kind,
		Action:    action,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// decodeSignature decodes hex-encoded signature (with or without 0x prefix)
func decodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}

	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}

	return sigBytes, nil
}
