package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var ErrNoLineageInput = errors.New("no input of prevTx continues the lineage")

// BuildBacktrace builds the backtrace info for an output of prevTx, following
// the input of prevTx at lineageInput.
func BuildBacktrace(ctx context.Context, src TxSource, prevTx *wire.MsgTx, lineageInput int) (*backtrace.Info, error) {
	if lineageInput < 0 || lineageInput >= len(prevTx.TxIn) {
		return nil, fmt.Errorf("%w (index=%d inputs=%d)", backtrace.ErrLineageInputIndex, lineageInput, len(prevTx.TxIn))
	}
	partial, err := txpreimage.PartialFromMsgTx(prevTx)
	if err != nil {
		return nil, err
	}
	in := prevTx.TxIn[lineageInput]
	input, err := txpreimage.ParseInput(txpreimage.InputBytes(in))
	if err != nil {
		return nil, err
	}
	prevPrevTx, err := src.RawTx(ctx, in.PreviousOutPoint.Hash)
	if err != nil {
		return nil, err
	}
	tiny, err := txpreimage.TinyFromMsgTx(prevPrevTx, in.PreviousOutPoint.Index)
	if err != nil {
		return nil, err
	}
	return &backtrace.Info{
		PrevTx:           partial,
		PrevTxInputIndex: uint32(lineageInput),
		PrevTxInput:      input,
		PrevPrevTx:       tiny,
	}, nil
}

// FindLineageInput returns the first input of prevTx that spends genesis or
// an output carrying one of scripts.
func FindLineageInput(ctx context.Context, src TxSource, prevTx *wire.MsgTx, genesis *wire.OutPoint, scripts ...[]byte) (int, error) {
	for i, in := range prevTx.TxIn {
		if genesis != nil && in.PreviousOutPoint == *genesis {
			return i, nil
		}
		out, err := PrevOut(ctx, src, in.PreviousOutPoint)
		if err != nil {
			return 0, err
		}
		for _, s := range scripts {
			if bytes.Equal(out.PkScript, s) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoLineageInput, prevTx.TxHash())
}

// BacktraceFor builds the backtrace info for the output spent at op, locating
// the lineage input with FindLineageInput.
func BacktraceFor(ctx context.Context, src TxSource, op wire.OutPoint, genesis *wire.OutPoint, scripts ...[]byte) (*backtrace.Info, error) {
	prevTx, err := src.RawTx(ctx, op.Hash)
	if err != nil {
		return nil, err
	}
	i, err := FindLineageInput(ctx, src, prevTx, genesis, scripts...)
	if err != nil {
		return nil, err
	}
	return BuildBacktrace(ctx, src, prevTx, i)
}
