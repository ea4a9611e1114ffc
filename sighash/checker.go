package sighash

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Checker stands in for OP_CHECKSIG. msg is the message reconstructed from
// the witness; an implementation bound to a real transaction checks against
// that transaction's own sighash instead.
type Checker interface {
	CheckSig(msg chainhash.Hash, sig []byte, pubKey []byte) error
}

var (
	_ Checker = SelfChecker{}
	_ Checker = (*TxChecker)(nil)
)

// SelfChecker verifies against the reconstructed message. It proves the
// witness is internally consistent but not that it describes any particular
// transaction.
type SelfChecker struct{}

func (SelfChecker) CheckSig(msg chainhash.Hash, sig []byte, pubKey []byte) error {
	return VerifySchnorr(msg[:], sig, pubKey)
}

// TxChecker verifies against the BIP-342 sighash of input InputIndex of Tx
// spent through the tap leaf LeafScript.
type TxChecker struct {
	Tx         *wire.MsgTx
	InputIndex int
	PrevOuts   txscript.PrevOutputFetcher
	LeafScript []byte
}

func (c *TxChecker) CheckSig(_ chainhash.Hash, sig []byte, pubKey []byte) error {
	digest, err := c.SigHash()
	if err != nil {
		return err
	}
	return VerifySchnorr(digest, sig, pubKey)
}

// SigHash computes the consensus tapscript sighash of the bound input.
func (c *TxChecker) SigHash() ([]byte, error) {
	hashes := txscript.NewTxSigHashes(c.Tx, c.PrevOuts)
	digest, err := txscript.CalcTapscriptSignaturehash(
		hashes,
		txscript.SigHashDefault,
		c.Tx,
		c.InputIndex,
		c.PrevOuts,
		txscript.NewBaseTapLeaf(c.LeafScript),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return digest, nil
}

// VerifySchnorr checks a 64-byte BIP-340 signature over digest.
func VerifySchnorr(digest []byte, sig []byte, pubKey []byte) error {
	pk, err := schnorr.ParsePubKey(pubKey)
	if err != nil {
		return fmt.Errorf("%w: pubkey: %v", ErrBadSignature, err)
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrBadSignature, err)
	}
	if !parsed.Verify(digest, pk) {
		return ErrBadSignature
	}
	return nil
}
