package sighash

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var ErrPrevOutCount = fmt.Errorf("%w: one spent output per input required", consts.ErrStructuralMismatch)

// Prevouts returns the serialized outpoint of every input of tx.
func Prevouts(tx *wire.MsgTx) [][]byte {
	out := make([][]byte, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		out = append(out, txpreimage.EncodeOutpoint(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index))
	}
	return out
}

// SpentScripts returns the scripts of the outputs being spent.
func SpentScripts(prevOuts []*wire.TxOut) [][]byte {
	out := make([][]byte, 0, len(prevOuts))
	for _, o := range prevOuts {
		out = append(out, o.PkScript)
	}
	return out
}

// SpentAmounts returns the 8-byte amounts of the outputs being spent.
func SpentAmounts(prevOuts []*wire.TxOut) [][]byte {
	out := make([][]byte, 0, len(prevOuts))
	for _, o := range prevOuts {
		out = append(out, txpreimage.SatoshiBytes(o.Value))
	}
	return out
}

// Fetcher indexes prevOuts by the outpoints tx spends.
func Fetcher(tx *wire.MsgTx, prevOuts []*wire.TxOut) *txscript.MultiPrevOutFetcher {
	m := make(map[wire.OutPoint]*wire.TxOut, len(prevOuts))
	for i, in := range tx.TxIn {
		m[in.PreviousOutPoint] = prevOuts[i]
	}
	return txscript.NewMultiPrevOutFetcher(m)
}

// SerializeOutputs concatenates the serialized outputs of tx.
func SerializeOutputs(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	for _, o := range tx.TxOut {
		b, err := txpreimage.OutputOf(o).Bytes()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// LeafHash is the BIP-341 tapleaf hash of a version 0xc0 leaf.
func LeafHash(leafScript []byte) []byte {
	h := txscript.NewBaseTapLeaf(leafScript).TapHash()
	return h[:]
}

// FromTx extracts the preimage fields for input inputIndex of tx, spent
// through leafScript, and fills in the challenge. The challenge low byte is
// whatever the transaction produces; callers searching for a usable
// transaction check Ready.
func FromTx(tx *wire.MsgTx, inputIndex int, prevOuts []*wire.TxOut, leafScript []byte) (*Preimage, error) {
	if len(prevOuts) != len(tx.TxIn) {
		return nil, fmt.Errorf("%w (inputs=%d prevouts=%d)", ErrPrevOutCount, len(tx.TxIn), len(prevOuts))
	}
	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return nil, fmt.Errorf("%w (index=%d inputs=%d)", ErrInputIndex, inputIndex, len(tx.TxIn))
	}

	var sequences bytes.Buffer
	for _, in := range tx.TxIn {
		_ = binary.Write(&sequences, binary.LittleEndian, in.Sequence)
	}
	outputs, err := SerializeOutputs(tx)
	if err != nil {
		return nil, err
	}

	shaPrevouts := sha256.Sum256(bytes.Join(Prevouts(tx), nil))
	shaAmounts := sha256.Sum256(bytes.Join(SpentAmounts(prevOuts), nil))
	shaScripts := ShaScripts(SpentScripts(prevOuts))
	shaSequences := sha256.Sum256(sequences.Bytes())
	shaOutputs := sha256.Sum256(outputs)

	p := &Preimage{
		TxVersion:       txpreimage.VersionBytes(tx),
		LockTime:        txpreimage.LockTimeBytes(tx),
		ShaPrevouts:     shaPrevouts[:],
		ShaSpentAmounts: shaAmounts[:],
		ShaSpentScripts: shaScripts[:],
		ShaSequences:    shaSequences[:],
		ShaOutputs:      shaOutputs[:],
		SpendType:       []byte{SpendTypeTapscript},
		InputIndex:      binary.LittleEndian.AppendUint32(nil, uint32(inputIndex)),
		TapLeafHash:     LeafHash(leafScript),
		KeyVersion:      []byte{KeyVersionTapscript},
		CodeSepPos:      append([]byte(nil), BlankCodeSepPos...),
	}
	msg, err := Message(p)
	if err != nil {
		return nil, err
	}
	p.E, p.ELastByte = SplitChallenge(Challenge(msg))
	return p, nil
}

// Ready reports whether the challenge low byte admits a signature.
func (p *Preimage) Ready() bool {
	return p.ELastByte < MaxELastByte
}
