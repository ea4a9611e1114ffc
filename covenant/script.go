// Package covenant describes the contract kinds of the protocol: their
// constants, the taproot scripts derived from those constants and the
// canonical encodings of their per-output state.
package covenant

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

var (
	// NUMSBytes is the BIP-341 "H" point, used as the unspendable internal
	// key of every contract output.
	NUMSBytes, _ = hex.DecodeString(
		"50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0",
	)
	NUMSPubKey, _ = schnorr.ParsePubKey(NUMSBytes)

	ErrUnknownKind     = errors.New("unknown contract kind")
	ErrScriptMismatch  = fmt.Errorf("%w: spent script does not match contract", consts.ErrStructuralMismatch)
	ErrInvalidOwner    = fmt.Errorf("%w: owner address must be 20 bytes", consts.ErrStructuralMismatch)
	ErrInvalidOutpoint = fmt.Errorf("%w: genesis outpoint must be 36 bytes", consts.ErrStructuralMismatch)
)

// Contract is one instantiated contract: its kind, encoded constants, tap
// leaf and resulting P2TR output script.
type Contract struct {
	Kind   uint8
	Params []byte
	Leaf   []byte
	Script []byte
}

// NewContract derives the leaf <kind|params> OP_DROP OP_TRUE and the P2TR
// script that commits to it under the NUMS internal key.
func NewContract(kind uint8, params []byte) (*Contract, error) {
	if kind > consts.MaxContractKind {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	identity := make([]byte, 0, 1+len(params))
	identity = append(identity, kind)
	identity = append(identity, params...)

	leaf, err := txscript.NewScriptBuilder().
		AddData(identity).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_TRUE).
		Script()
	if err != nil {
		return nil, err
	}
	script, err := taprootScript(leaf)
	if err != nil {
		return nil, err
	}
	return &Contract{
		Kind:   kind,
		Params: params,
		Leaf:   leaf,
		Script: script,
	}, nil
}

func taprootScript(leaf []byte) ([]byte, error) {
	root := txscript.NewBaseTapLeaf(leaf).TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(NUMSPubKey, root[:])
	return txscript.PayToTaprootScript(outputKey)
}

// ScriptHash is the contract's owner address when it owns assets.
func (c *Contract) ScriptHash() []byte {
	return commitment.Hash160(c.Script)
}

// OwnerAddrFromPubKey is the owner address of an x-only public key.
func OwnerAddrFromPubKey(xOnly []byte) []byte {
	return commitment.Hash160(xOnly)
}

// OwnerAddrFromKey is OwnerAddrFromPubKey for a parsed key.
func OwnerAddrFromKey(pub *btcec.PublicKey) []byte {
	return OwnerAddrFromPubKey(schnorr.SerializePubKey(pub))
}

// OwnerAddrFromScript is the owner address of a contract script.
func OwnerAddrFromScript(script []byte) []byte {
	return commitment.Hash160(script)
}
