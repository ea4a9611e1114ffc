package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/zk"
)

func main() {
	var (
		outDir string
		rawHex string
	)
	flag.StringVar(&outDir, "out", "./zk-fixture", "output directory")
	flag.StringVar(&rawHex, "raw", "", "transaction to attest, hex; a sample transaction when empty")
	flag.Parse()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fatalf("mkdir %s: %v", outDir, err)
	}

	raw, err := loadTx(rawHex)
	if err != nil {
		fatalf("transaction: %v", err)
	}
	prover, err := zk.SetupTxidProver(len(raw))
	if err != nil {
		fatalf("setup: %v", err)
	}
	fmt.Printf("compiled %s for %d-byte transactions: %d constraints\n",
		consts.ProofCircuitTxidV1, len(raw), prover.Constraints())

	var vk bytes.Buffer
	if err := prover.WriteVerifyingKey(&vk); err != nil {
		fatalf("serialize verifying key: %v", err)
	}
	vkPath := filepath.Join(outDir, "groth16_txid_vk.bin")
	if err := os.WriteFile(vkPath, vk.Bytes(), 0o644); err != nil {
		fatalf("write verifying key: %v", err)
	}

	env, txid, err := prover.Prove(raw)
	if err != nil {
		fatalf("prove: %v", err)
	}
	blob, err := env.Bytes()
	if err != nil {
		fatalf("build proof envelope: %v", err)
	}
	hash, err := chainhash.NewHash(txid)
	if err != nil {
		fatalf("txid: %v", err)
	}

	files := map[string][]byte{
		"sample_tx.hex":             []byte(hex.EncodeToString(raw)),
		"sample_txid.txt":           []byte(hash.String()),
		"sample_public_witness.bin": env.PublicWitness,
		"sample_proof.bin":          env.Proof,
		"sample_proof_envelope.bin": blob,
	}
	for name, b := range files {
		if err := os.WriteFile(filepath.Join(outDir, name), b, 0o644); err != nil {
			fatalf("write %s: %v", name, err)
		}
	}

	fmt.Printf("ZK fixture generated in %s\n", outDir)
	fmt.Println("Verify with:")
	fmt.Printf("  CAT_ZK_GROTH16_VK_PATH=%s catvm attest %s %s\n",
		vkPath, hash, filepath.Join(outDir, "sample_proof_envelope.bin"))
}

// loadTx returns the non-witness serialization the txid commits to.
func loadTx(rawHex string) ([]byte, error) {
	tx := wire.NewMsgTx(2)
	if rawHex = strings.TrimSpace(rawHex); rawHex != "" {
		b, err := hex.DecodeString(rawHex)
		if err != nil {
			return nil, err
		}
		if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
			return nil, err
		}
	} else {
		var prev chainhash.Hash
		if _, err := rand.Read(prev[:]); err != nil {
			return nil, err
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), nil, nil))
		tx.AddTxOut(wire.NewTxOut(0, commitment.RootOutputScript(make([]byte, consts.Hash160Len))))
		tx.AddTxOut(wire.NewTxOut(consts.DefaultPostage, append([]byte{0x51, 0x20}, prev[:]...)))
	}
	var buf bytes.Buffer
	if err := tx.SerializeNoWitness(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
