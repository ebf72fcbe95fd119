// Command sign-tx signs an escrow action with EIP-712 and prints the
// transaction JSON, optionally submitting it to a node.
//
//	sign-tx -key 0x.. -kind create -asset 0x.. -direction buy -policy clamped -price 0.1 -qty 50 -value 5 -nonce 0
//	sign-tx -key 0x.. -kind fill -order 0x.. -qty 10 -nonce 3 -submit http://localhost:8080
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/app/core/transaction"
	"github.com/uhyunpark/escrowd/pkg/crypto"
	"github.com/uhyunpark/escrowd/pkg/util"
)

type flags struct {
	key       string
	chainID   int64
	kind      string
	order     string
	asset     string
	direction string
	policy    string
	price     string
	qty       uint64
	value     string
	to        string
	nonce     uint64
	submit    string
	sync      bool
}

func main() {
	var f flags
	flag.StringVar(&f.key, "key", os.Getenv("SIGNER_KEY"), "hex private key; empty generates a new one")
	flag.Int64Var(&f.chainID, "chain", 1337, "chain id of the EIP-712 domain")
	flag.StringVar(&f.kind, "kind", "", "create, fill, close, approve, transfer or faucet")
	flag.StringVar(&f.order, "order", "", "order address (fill, close)")
	flag.StringVar(&f.asset, "asset", "", "token address")
	flag.StringVar(&f.direction, "direction", "buy", "buy or sell (create)")
	flag.StringVar(&f.policy, "policy", "clamped", "strict or clamped (create)")
	flag.StringVar(&f.price, "price", "0", "native per asset unit, 8 decimals (create)")
	flag.Uint64Var(&f.qty, "qty", 0, "asset units")
	flag.StringVar(&f.value, "value", "0", "attached native value, 8 decimals")
	flag.StringVar(&f.to, "to", "", "recipient or spender")
	flag.Uint64Var(&f.nonce, "nonce", 0, "sender nonce")
	flag.StringVar(&f.submit, "submit", "", "node URL to POST the transaction to")
	flag.BoolVar(&f.sync, "sync", true, "wait for the receipt when submitting")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	signer, err := loadSigner(f.key)
	if err != nil {
		return err
	}

	action, err := buildAction(f, signer.Address())
	if err != nil {
		return err
	}
	if action.Kind == transaction.KindCreate {
		fmt.Fprintf(os.Stderr, "Order address: %s\n", gethcrypto.CreateAddress(action.From, action.Nonce).Hex())
	}

	verifier := transaction.NewVerifier(crypto.DomainForChain(f.chainID))
	tx, err := verifier.Sign(signer, action)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	hash, err := verifier.Verify(tx)
	if err != nil {
		return fmt.Errorf("self-check: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Tx hash: %s\n", hash.Hex())

	txJSON, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(txJSON))

	if f.submit == "" {
		return nil
	}
	return submit(f.submit, f.sync, tx)
}

func loadSigner(key string) (*crypto.Signer, error) {
	if key != "" {
		return crypto.FromPrivateKeyHex(key)
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Generated key for %s: %s (KEEP SECRET!)\n", signer.Address().Hex(), signer.PrivateKeyHex())
	return signer, nil
}

func buildAction(f flags, from common.Address) (transaction.Action, error) {
	a := transaction.Action{
		Kind:  transaction.Kind(f.kind),
		From:  from,
		Qty:   f.qty,
		Nonce: f.nonce,
	}
	var err error
	if a.Value, err = util.ParseUnits(f.value); err != nil {
		return a, err
	}
	for _, addr := range []struct {
		raw string
		dst *common.Address
	}{{f.order, &a.Order}, {f.asset, &a.Asset}, {f.to, &a.To}} {
		if addr.raw == "" {
			continue
		}
		if !common.IsHexAddress(addr.raw) {
			return a, fmt.Errorf("invalid address %q", addr.raw)
		}
		*addr.dst = common.HexToAddress(addr.raw)
	}

	if a.Kind == transaction.KindCreate {
		dir, err := escrow.ParseDirection(f.direction)
		if err != nil {
			return a, err
		}
		policy, err := escrow.ParsePolicy(f.policy)
		if err != nil {
			return a, err
		}
		a.Direction, a.Policy = uint8(dir), uint8(policy)
		if a.Price, err = util.ParseUnits(f.price); err != nil {
			return a, err
		}
	}
	return a, nil
}

func submit(baseURL string, sync bool, tx *transaction.SignedTransaction) error {
	body, err := tx.Serialize()
	if err != nil {
		return err
	}
	resp, err := http.Post(baseURL+"/api/v1/txs?sync="+strconv.FormatBool(sync), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Node replied %s\n", resp.Status)
	fmt.Println(string(out))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("node rejected the transaction")
	}
	return nil
}
