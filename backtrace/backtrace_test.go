package backtrace

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var (
	minterScript = append([]byte{0x51, 0x20}, bytes.Repeat([]byte{0xaa}, 32)...)
	tokenScript  = append([]byte{0x51, 0x20}, bytes.Repeat([]byte{0xbb}, 32)...)
	feeScript    = append([]byte{0x51, 0x20}, bytes.Repeat([]byte{0xcc}, 32)...)
)

type chain struct {
	genesis *wire.MsgTx
	a       *wire.MsgTx
	b       *wire.MsgTx
}

// newChain builds genesis -> A -> B where A spends genesis:0 and creates
// the minter at A:1, and B spends A:1 and recreates the minter at B:1.
func newChain() *chain {
	var funding chainhash.Hash
	funding[0] = 0x42

	genesis := wire.NewMsgTx(2)
	genesis.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&funding, 3), nil, nil))
	genesis.AddTxOut(wire.NewTxOut(10_000, feeScript))

	a := spend(genesis, 0)
	b := spend(a, 1)
	return &chain{genesis: genesis, a: a, b: b}
}

func spend(parent *wire.MsgTx, vout uint32) *wire.MsgTx {
	h := parent.TxHash()
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&h, vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x6a}))
	tx.AddTxOut(wire.NewTxOut(330, minterScript))
	tx.AddTxOut(wire.NewTxOut(330, tokenScript))
	return tx
}

func infoFor(t *testing.T, prevTx *wire.MsgTx, inputIndex uint32, prevPrevTx *wire.MsgTx) *Info {
	t.Helper()
	partial, err := txpreimage.PartialFromMsgTx(prevTx)
	require.NoError(t, err)
	in, err := txpreimage.ParseInput(partial.Inputs[inputIndex])
	require.NoError(t, err)
	tiny, err := txpreimage.TinyFromMsgTx(prevPrevTx, in.OutputIndex())
	require.NoError(t, err)
	return &Info{
		PrevTx:           partial,
		PrevTxInputIndex: inputIndex,
		PrevTxInput:      in,
		PrevPrevTx:       tiny,
	}
}

func txid(tx *wire.MsgTx) []byte {
	h := tx.TxHash()
	return h[:]
}

func TestVerifyChainReturnsGenesis(t *testing.T) {
	c := newChain()
	res, err := VerifyChain(infoFor(t, c.a, 0, c.genesis), txid(c.a))
	require.NoError(t, err)
	require.Equal(t, txpreimage.EncodeOutpoint(c.genesis.TxHash(), 0), res.PrevPrevOutpoint)
	require.Equal(t, feeScript, res.PrevPrevScript)
}

func TestVerifyChainReturnsNonGenesisPair(t *testing.T) {
	c := newChain()
	res, err := VerifyChain(infoFor(t, c.b, 0, c.a), txid(c.b))
	require.NoError(t, err)
	require.Equal(t, txpreimage.EncodeOutpoint(c.a.TxHash(), 1), res.PrevPrevOutpoint)
	require.Equal(t, minterScript, res.PrevPrevScript)
}

func TestVerifyUnique(t *testing.T) {
	c := newChain()
	genesisOutpoint := txpreimage.EncodeOutpoint(c.genesis.TxHash(), 0)

	require.NoError(t, VerifyUnique(infoFor(t, c.a, 0, c.genesis), txid(c.a), genesisOutpoint, minterScript))
	require.NoError(t, VerifyUnique(infoFor(t, c.b, 0, c.a), txid(c.b), genesisOutpoint, minterScript))

	otherGenesis := txpreimage.EncodeOutpoint(c.genesis.TxHash(), 1)
	err := VerifyUnique(infoFor(t, c.a, 0, c.genesis), txid(c.a), otherGenesis, minterScript)
	require.ErrorIs(t, err, ErrLineageBroken)

	err = VerifyUnique(infoFor(t, c.b, 0, c.a), txid(c.b), genesisOutpoint, tokenScript)
	require.ErrorIs(t, err, ErrLineageBroken)
}

func TestVerifyToken(t *testing.T) {
	c := newChain()
	require.NoError(t, VerifyToken(infoFor(t, c.b, 0, c.a), txid(c.b), minterScript, tokenScript))

	// Lineage through the token itself.
	d := spend(c.b, 2)
	require.NoError(t, VerifyToken(infoFor(t, d, 0, c.b), txid(d), minterScript, tokenScript))

	// Lineage through the fee output of genesis is neither.
	err := VerifyToken(infoFor(t, c.a, 0, c.genesis), txid(c.a), minterScript, tokenScript)
	require.ErrorIs(t, err, ErrLineageBroken)
}

func TestTamperedPreimagesFail(t *testing.T) {
	c := newChain()

	info := infoFor(t, c.b, 0, c.a)
	info.PrevTx.OutputScripts[2] = bytes.Repeat([]byte{0x01}, 34)
	_, err := VerifyChain(info, txid(c.b))
	require.ErrorIs(t, err, ErrPrevTxHashMismatch)

	info = infoFor(t, c.b, 0, c.a)
	info.PrevTxInput.Sequence = []byte{0, 0, 0, 0}
	_, err = VerifyChain(info, txid(c.b))
	require.ErrorIs(t, err, ErrLineageInputMismatch)

	info = infoFor(t, c.b, 0, c.a)
	info.PrevPrevTx.Target.Script = tokenScript
	_, err = VerifyChain(info, txid(c.b))
	require.ErrorIs(t, err, ErrPrevPrevHashMismatch)

	info = infoFor(t, c.b, 0, c.a)
	info.PrevPrevTx.Trailing = append([]byte(nil), info.PrevPrevTx.Trailing...)
	info.PrevPrevTx.Trailing[len(info.PrevPrevTx.Trailing)-1] ^= 0x01
	_, err = VerifyChain(info, txid(c.b))
	require.ErrorIs(t, err, ErrPrevPrevHashMismatch)

	info = infoFor(t, c.b, 0, c.a)
	info.PrevTxInputIndex = 4
	_, err = VerifyChain(info, txid(c.b))
	require.ErrorIs(t, err, ErrLineageInputIndex)

	_, err = VerifyChain(infoFor(t, c.b, 0, c.a), txid(c.a))
	require.ErrorIs(t, err, ErrPrevTxHashMismatch)
	require.ErrorIs(t, err, consts.ErrStructuralMismatch)
}
