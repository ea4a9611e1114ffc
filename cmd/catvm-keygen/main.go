package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/genesis"
)

func main() {
	var (
		kind        string
		genesisTxid string
		genesisVout uint
		max         uint64
	)
	flag.StringVar(&kind, "kind", genesis.KindCAT20Closed, "deployment kind (cat20-closed|cat721-parallel)")
	flag.StringVar(&genesisTxid, "genesis-txid", "", "txid of the output funding the deployment")
	flag.UintVar(&genesisVout, "genesis-vout", 0, "index of the output funding the deployment")
	flag.Uint64Var(&max, "max", 1000, "collection size for cat721-parallel")
	flag.Parse()

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		fatalf("failed to generate key: %v", err)
	}
	xOnly := schnorr.SerializePubKey(priv.PubKey())
	owner := covenant.OwnerAddrFromPubKey(xOnly)
	p2tr, err := txscript.PayToTaprootScript(txscript.ComputeTaprootKeyNoScript(priv.PubKey()))
	if err != nil {
		fatalf("failed to derive p2tr script: %v", err)
	}

	fmt.Fprintf(os.Stderr, "=== CAT Issuer Key ===\n")
	fmt.Fprintf(os.Stderr, "Private Key (hex): %s\n", hex.EncodeToString(priv.Serialize()))
	fmt.Fprintf(os.Stderr, "X-Only Key (hex):  %s\n", hex.EncodeToString(xOnly))
	fmt.Fprintf(os.Stderr, "Owner Address:     %s\n", hex.EncodeToString(owner))
	fmt.Fprintf(os.Stderr, "P2TR Script:       %s\n", hex.EncodeToString(p2tr))

	g := &genesis.Genesis{
		Kind:        kind,
		Name:        "example",
		Symbol:      "EXM",
		GenesisTxid: genesisTxid,
		GenesisVout: uint32(genesisVout),
		IssuerAddr:  owner,
	}
	switch kind {
	case genesis.KindCAT20Closed:
	case genesis.KindCAT721Parallel:
		g.Max = max
	default:
		fatalf("keygen only prepares issuer-controlled kinds, got %q", kind)
	}

	out, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		fatalf("failed to marshal genesis: %v", err)
	}
	fmt.Println(string(out))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
