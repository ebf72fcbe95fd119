package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sampleAction(from common.Address) *ActionEIP712 {
	return &ActionEIP712{
		Kind:      "create",
		From:      from,
		Asset:     common.HexToAddress("0x00000000000000000000000000000000000000f0"),
		Direction: 1,
		Policy:    2,
		Price:     10_000_000,
		Qty:       50,
		Value:     500_000_000,
		Nonce:     3,
	}
}

func TestSignActionRoundTrip(t *testing.T) {
	signer, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())
	action := sampleAction(signer.Address())

	sig, err := e.SignAction(signer, action)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := e.VerifyActionSignature(action, sig)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}

	recovered, err := e.RecoverActionSigner(action, sig)
	if err != nil {
		t.Fatal(err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
}

func TestActionHashBindsFields(t *testing.T) {
	e := NewEIP712Signer(DefaultDomain())
	from := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	base, err := e.HashAction(sampleAction(from))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*ActionEIP712)
	}{
		{"nonce", func(a *ActionEIP712) { a.Nonce++ }},
		{"qty", func(a *ActionEIP712) { a.Qty = 49 }},
		{"kind", func(a *ActionEIP712) { a.Kind = "fill" }},
		{"direction", func(a *ActionEIP712) { a.Direction = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := sampleAction(from)
			tt.mutate(a)
			h, err := e.HashAction(a)
			if err != nil {
				t.Fatal(err)
			}
			if bytes.Equal(h, base) {
				t.Error("hash did not change")
			}
		})
	}

	other, _ := NewEIP712Signer(DomainForChain(1)).HashAction(sampleAction(from))
	if bytes.Equal(other, base) {
		t.Error("hash does not depend on chain id")
	}
}

func TestTamperedActionFailsVerification(t *testing.T) {
	signer, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())
	action := sampleAction(signer.Address())

	sig, _ := e.SignAction(signer, action)
	action.Value = 1

	ok, err := e.VerifyActionSignature(action, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("tampered action verified")
	}
}

func TestActionToJSON(t *testing.T) {
	e := NewEIP712Signer(DefaultDomain())
	out, err := e.ActionToJSON(sampleAction(common.Address{}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"primaryType": "Action"`) {
		t.Errorf("missing primaryType in %s", out)
	}
}
