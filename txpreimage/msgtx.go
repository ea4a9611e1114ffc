package txpreimage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

// InputBytes serializes a wire input in the 41-byte segwit layout.
func InputBytes(in *wire.TxIn) []byte {
	b := EncodeOutpoint(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
	b = append(b, emptyScriptSig)
	return binary.LittleEndian.AppendUint32(b, in.Sequence)
}

// OutputOf converts a wire output.
func OutputOf(out *wire.TxOut) Output {
	return Output{
		Satoshis: SatoshiBytes(out.Value),
		Script:   out.PkScript,
	}
}

// VersionBytes returns the 4-byte little-endian version of tx.
func VersionBytes(tx *wire.MsgTx) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(tx.Version))
}

// LockTimeBytes returns the 4-byte little-endian locktime of tx.
func LockTimeBytes(tx *wire.MsgTx) []byte {
	return binary.LittleEndian.AppendUint32(nil, tx.LockTime)
}

func checkMsgTx(tx *wire.MsgTx) error {
	if len(tx.TxIn) == 0 || len(tx.TxIn) > consts.TxInputCountMax ||
		len(tx.TxOut) == 0 || len(tx.TxOut) > consts.TxOutputCountMax {
		return fmt.Errorf("%w (inputs=%d outputs=%d)", ErrUnsupportedTxShape, len(tx.TxIn), len(tx.TxOut))
	}
	for i, in := range tx.TxIn {
		if len(in.SignatureScript) != 0 {
			return fmt.Errorf("%w (input=%d)", ErrNonSegwitInput, i)
		}
	}
	return nil
}

// FullFromMsgTx extracts a Full preimage.
func FullFromMsgTx(tx *wire.MsgTx) (*Full, error) {
	if err := checkMsgTx(tx); err != nil {
		return nil, err
	}
	f := &Full{
		Version:  VersionBytes(tx),
		LockTime: LockTimeBytes(tx),
	}
	for _, in := range tx.TxIn {
		f.Inputs = append(f.Inputs, InputBytes(in))
	}
	for _, out := range tx.TxOut {
		b, err := OutputOf(out).Bytes()
		if err != nil {
			return nil, err
		}
		f.Outputs = append(f.Outputs, b)
	}
	return f, nil
}

// PartialFromMsgTx extracts a Partial preimage.
func PartialFromMsgTx(tx *wire.MsgTx) (*Partial, error) {
	if err := checkMsgTx(tx); err != nil {
		return nil, err
	}
	p := &Partial{
		Version:  VersionBytes(tx),
		LockTime: LockTimeBytes(tx),
	}
	for _, in := range tx.TxIn {
		p.Inputs = append(p.Inputs, InputBytes(in))
	}
	for _, out := range tx.TxOut {
		p.OutputSatoshis = append(p.OutputSatoshis, SatoshiBytes(out.Value))
		p.OutputScripts = append(p.OutputScripts, out.PkScript)
	}
	return p, nil
}

// TinyFromMsgTx extracts a Tiny preimage tracing the output at index.
func TinyFromMsgTx(tx *wire.MsgTx, index uint32) (*Tiny, error) {
	if err := checkMsgTx(tx); err != nil {
		return nil, err
	}
	if int(index) >= len(tx.TxOut) {
		return nil, fmt.Errorf("%w (index=%d outputs=%d)", ErrOutputIndex, index, len(tx.TxOut))
	}

	var prefix bytes.Buffer
	prefix.Write(VersionBytes(tx))
	if err := writeCount(&prefix, len(tx.TxIn)); err != nil {
		return nil, err
	}
	for _, in := range tx.TxIn {
		prefix.Write(InputBytes(in))
	}
	if err := writeCount(&prefix, len(tx.TxOut)); err != nil {
		return nil, err
	}
	if prefix.Len() > consts.TinyPrefixBlocks*consts.TinyBlockMaxLen {
		return nil, fmt.Errorf("%w: prefix is %d bytes", ErrUnsupportedTxShape, prefix.Len())
	}

	t := &Tiny{Target: OutputOf(tx.TxOut[index])}
	raw := prefix.Bytes()
	for len(raw) > 0 {
		n := min(len(raw), consts.TinyBlockMaxLen)
		t.Prefix = append(t.Prefix, raw[:n])
		raw = raw[n:]
	}

	var leading, trailing bytes.Buffer
	for i, out := range tx.TxOut {
		if i == int(index) {
			continue
		}
		b, err := OutputOf(out).Bytes()
		if err != nil {
			return nil, err
		}
		if i < int(index) {
			leading.Write(b)
		} else {
			trailing.Write(b)
		}
	}
	trailing.Write(LockTimeBytes(tx))
	t.Leading = leading.Bytes()
	t.Trailing = trailing.Bytes()
	return t, nil
}
