// Package backtrace proves two hops of UTXO ancestry: the output being
// spent was created by prevTx, and prevTx's lineage input spent a specific
// output of prevPrevTx whose script and outpoint are returned.
package backtrace

import (
	"bytes"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var (
	ErrMissingInfo          = fmt.Errorf("%w: missing backtrace info", consts.ErrStructuralMismatch)
	ErrPrevTxHashMismatch   = fmt.Errorf("%w: prevTx preimage does not hash to the spent txid", consts.ErrStructuralMismatch)
	ErrLineageInputIndex    = fmt.Errorf("%w: lineage input index out of range", consts.ErrStructuralMismatch)
	ErrLineageInputMismatch = fmt.Errorf("%w: lineage input not found in prevTx", consts.ErrStructuralMismatch)
	ErrPrevPrevHashMismatch = fmt.Errorf("%w: prevPrevTx preimage does not hash to the lineage input's txid", consts.ErrStructuralMismatch)
	ErrLineageBroken        = fmt.Errorf("%w: lineage script mismatch", consts.ErrStructuralMismatch)
)

// Info is the witness of one backtrace.
type Info struct {
	PrevTx           *txpreimage.Partial `json:"prevTx"`
	PrevTxInputIndex uint32              `json:"prevTxInputIndex"`
	PrevTxInput      txpreimage.Input    `json:"prevTxInput"`
	PrevPrevTx       *txpreimage.Tiny    `json:"prevPrevTx"`
}

// Result is what a verified backtrace proves about the grandparent output.
type Result struct {
	PrevPrevScript   []byte
	PrevPrevOutpoint []byte
}

// VerifyChain checks info against the trusted txid of the transaction that
// created the output being spent.
func VerifyChain(info *Info, prevTxHash []byte) (*Result, error) {
	if info == nil || info.PrevTx == nil || info.PrevPrevTx == nil {
		return nil, ErrMissingInfo
	}

	prevTxID, err := info.PrevTx.TxID()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(prevTxID[:], prevTxHash) {
		return nil, ErrPrevTxHashMismatch
	}

	if int(info.PrevTxInputIndex) >= len(info.PrevTx.Inputs) {
		return nil, fmt.Errorf(
			"%w (index=%d inputs=%d)",
			ErrLineageInputIndex,
			info.PrevTxInputIndex,
			len(info.PrevTx.Inputs),
		)
	}
	input, err := info.PrevTxInput.Bytes()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(input, info.PrevTx.Inputs[info.PrevTxInputIndex]) {
		return nil, ErrLineageInputMismatch
	}

	prevPrevTxID, err := info.PrevPrevTx.TxID()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(prevPrevTxID[:], info.PrevTxInput.PrevTxHash) {
		return nil, ErrPrevPrevHashMismatch
	}
	out, err := info.PrevPrevTx.OutputAt(info.PrevTxInput.OutputIndex())
	if err != nil {
		return nil, err
	}
	return &Result{
		PrevPrevScript:   out.Script,
		PrevPrevOutpoint: info.PrevTxInput.Outpoint(),
	}, nil
}

// VerifyUnique proves descent from genesisOutpoint: either prevTx spent the
// genesis outpoint directly, or it spent an output carrying expectedScript,
// which by induction descends from genesis.
func VerifyUnique(info *Info, prevTxHash []byte, genesisOutpoint []byte, expectedScript []byte) error {
	res, err := VerifyChain(info, prevTxHash)
	if err != nil {
		return err
	}
	if bytes.Equal(res.PrevPrevOutpoint, genesisOutpoint) {
		return nil
	}
	if !bytes.Equal(res.PrevPrevScript, expectedScript) {
		return fmt.Errorf("%w: expected self-similar lineage", ErrLineageBroken)
	}
	return nil
}

// VerifyToken proves an asset was created by a transaction that spent
// either its minter or another instance of the same asset.
func VerifyToken(info *Info, prevTxHash []byte, minterScript []byte, tokenScript []byte) error {
	res, err := VerifyChain(info, prevTxHash)
	if err != nil {
		return err
	}
	if !bytes.Equal(res.PrevPrevScript, minterScript) && !bytes.Equal(res.PrevPrevScript, tokenScript) {
		return fmt.Errorf("%w: script %x is neither minter nor token", ErrLineageBroken, res.PrevPrevScript)
	}
	return nil
}
