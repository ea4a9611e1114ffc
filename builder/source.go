// Package builder constructs, from raw transactions, the field sets the
// verifiers consume: backtrace infos, sighash preimages with a usable
// challenge, per-input environments and guard states.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrTxNotFound     = errors.New("transaction not found")
	ErrOutputNotFound = errors.New("output not found")
)

// TxSource returns raw transactions by id. Whether they are confirmed is the
// source's business.
type TxSource interface {
	RawTx(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)
}

// MemSource is a TxSource over an in-memory set.
type MemSource struct {
	mu  sync.RWMutex
	txs map[chainhash.Hash]*wire.MsgTx
}

func NewMemSource() *MemSource {
	return &MemSource{txs: make(map[chainhash.Hash]*wire.MsgTx)}
}

// Add stores tx under its txid and returns the id.
func (m *MemSource) Add(tx *wire.MsgTx) chainhash.Hash {
	txid := tx.TxHash()
	m.mu.Lock()
	m.txs[txid] = tx.Copy()
	m.mu.Unlock()
	return txid
}

func (m *MemSource) RawTx(_ context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	return tx.Copy(), nil
}

// PrevOut fetches the output op refers to.
func PrevOut(ctx context.Context, src TxSource, op wire.OutPoint) (*wire.TxOut, error) {
	tx, err := src.RawTx(ctx, op.Hash)
	if err != nil {
		return nil, err
	}
	if int(op.Index) >= len(tx.TxOut) {
		return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, op)
	}
	return tx.TxOut[op.Index], nil
}

// PrevOuts fetches the output spent by every input of tx.
func PrevOuts(ctx context.Context, src TxSource, tx *wire.MsgTx) ([]*wire.TxOut, error) {
	outs := make([]*wire.TxOut, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		out, err := PrevOut(ctx, src, in.PreviousOutPoint)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}
