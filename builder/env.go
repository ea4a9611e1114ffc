package builder

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
)

// NewEnv builds the environment of covenant input inputIndex of tx. The
// checker is bound to tx, so signatures are checked against its real
// tapscript sighash.
func NewEnv(tx *wire.MsgTx, inputIndex int, prevOuts []*wire.TxOut, leaf []byte, p *sighash.Preimage) *actions.Env {
	return &actions.Env{
		Preimage:     p,
		Prevouts:     sighash.Prevouts(tx),
		SpentScripts: sighash.SpentScripts(prevOuts),
		SpentAmounts: sighash.SpentAmounts(prevOuts),
		Checker:      NewChecker(tx, inputIndex, prevOuts, leaf),
	}
}

// NewChecker binds a TxChecker to input inputIndex of tx.
func NewChecker(tx *wire.MsgTx, inputIndex int, prevOuts []*wire.TxOut, leaf []byte) *sighash.TxChecker {
	return &sighash.TxChecker{
		Tx:         tx,
		InputIndex: inputIndex,
		PrevOuts:   sighash.Fetcher(tx, prevOuts),
		LeafScript: leaf,
	}
}

// Sign produces a BIP-340 signature of key over the sighash checker binds.
func Sign(key *btcec.PrivateKey, checker *sighash.TxChecker) ([]byte, error) {
	digest, err := checker.SigHash()
	if err != nil {
		return nil, err
	}
	sig, err := schnorr.Sign(key, digest)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// XOnly is the serialized x-only public key of key.
func XOnly(key *btcec.PrivateKey) []byte {
	return schnorr.SerializePubKey(key.PubKey())
}
