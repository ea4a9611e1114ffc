// Package txpreimage re-derives transaction ids from partial field sets.
//
// Three tiers trade completeness for size: Full carries every input and
// output literally, Partial splits outputs into parallel satoshi/script
// arrays, Tiny carries only a chunked prefix plus the output being traced.
// Every field is length-checked before any concatenation happens.
package txpreimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

const (
	// scriptSig length byte of a segwit input.
	emptyScriptSig = 0x00
	pver           = 0
)

var (
	ErrInvalidField       = fmt.Errorf("%w: invalid preimage field", consts.ErrStructuralMismatch)
	ErrInvalidInput       = fmt.Errorf("%w: invalid tx input", consts.ErrStructuralMismatch)
	ErrInvalidOutput      = fmt.Errorf("%w: invalid tx output", consts.ErrStructuralMismatch)
	ErrInputCount         = fmt.Errorf("%w: input count out of range", consts.ErrStructuralMismatch)
	ErrOutputCount        = fmt.Errorf("%w: output count out of range", consts.ErrStructuralMismatch)
	ErrTrailingBytes      = fmt.Errorf("%w: unexpected trailing bytes", consts.ErrStructuralMismatch)
	ErrOutputIndex        = fmt.Errorf("%w: output index out of range", consts.ErrStructuralMismatch)
	ErrTinyPrefix         = fmt.Errorf("%w: invalid tiny prefix", consts.ErrStructuralMismatch)
	ErrNonSegwitInput     = fmt.Errorf("%w: input carries a scriptSig", consts.ErrStructuralMismatch)
	ErrUnsupportedTxShape = fmt.Errorf("%w: transaction exceeds preimage limits", consts.ErrStructuralMismatch)
)

// Tier names a preimage size class.
type Tier uint8

const (
	TierFull Tier = iota
	TierPartial
	TierTiny
)

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierPartial:
		return "partial"
	case TierTiny:
		return "tiny"
	default:
		return "unknown"
	}
}

// Preimage is any tier that can be re-serialized into canonical
// (non-witness) transaction bytes.
type Preimage interface {
	Tier() Tier
	Serialize() ([]byte, error)
}

// ReconstructHash re-concatenates the canonical transaction layout of p and
// double-SHA256s it into the transaction id.
func ReconstructHash(p Preimage) (chainhash.Hash, error) {
	raw, err := p.Serialize()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(raw), nil
}

// Input is a segwit input split into its three variable parts.
type Input struct {
	PrevTxHash      []byte
	PrevOutputIndex []byte
	Sequence        []byte
}

// Bytes returns prevTxHash(32) | index(4) | 0x00 | sequence(4).
func (in Input) Bytes() ([]byte, error) {
	if len(in.PrevTxHash) != consts.Hash256Len ||
		len(in.PrevOutputIndex) != consts.OutputIndexLen ||
		len(in.Sequence) != consts.SequenceLen {
		return nil, fmt.Errorf(
			"%w (hash=%d index=%d sequence=%d)",
			ErrInvalidInput,
			len(in.PrevTxHash),
			len(in.PrevOutputIndex),
			len(in.Sequence),
		)
	}
	b := make([]byte, 0, consts.InputLen)
	b = append(b, in.PrevTxHash...)
	b = append(b, in.PrevOutputIndex...)
	b = append(b, emptyScriptSig)
	return append(b, in.Sequence...), nil
}

// Outpoint returns prevTxHash | index.
func (in Input) Outpoint() []byte {
	b := make([]byte, 0, consts.OutpointLen)
	b = append(b, in.PrevTxHash...)
	return append(b, in.PrevOutputIndex...)
}

// OutputIndex decodes the little-endian previous output index.
func (in Input) OutputIndex() uint32 {
	return binary.LittleEndian.Uint32(in.PrevOutputIndex)
}

// ParseInput splits a 41-byte serialized segwit input.
func ParseInput(b []byte) (Input, error) {
	if err := checkInput(b); err != nil {
		return Input{}, err
	}
	return Input{
		PrevTxHash:      b[:consts.Hash256Len],
		PrevOutputIndex: b[consts.Hash256Len:consts.OutpointLen],
		Sequence:        b[consts.OutpointLen+1:],
	}, nil
}

func checkInput(b []byte) error {
	if len(b) != consts.InputLen {
		return fmt.Errorf("%w (len=%d)", ErrInvalidInput, len(b))
	}
	if b[consts.OutpointLen] != emptyScriptSig {
		return ErrNonSegwitInput
	}
	return nil
}

// EncodeOutpoint serializes a txid and output index the way they appear in
// an input.
func EncodeOutpoint(txid chainhash.Hash, index uint32) []byte {
	b := make([]byte, 0, consts.OutpointLen)
	b = append(b, txid[:]...)
	return binary.LittleEndian.AppendUint32(b, index)
}

// SplitOutpoint is the inverse of EncodeOutpoint.
func SplitOutpoint(outpoint []byte) (chainhash.Hash, uint32, error) {
	if len(outpoint) != consts.OutpointLen {
		return chainhash.Hash{}, 0, fmt.Errorf("%w: outpoint length %d", ErrInvalidField, len(outpoint))
	}
	var h chainhash.Hash
	copy(h[:], outpoint[:consts.Hash256Len])
	return h, binary.LittleEndian.Uint32(outpoint[consts.Hash256Len:]), nil
}

// Output is one transaction output.
type Output struct {
	Satoshis []byte
	Script   []byte
}

func (o Output) validate() error {
	if len(o.Satoshis) != consts.SatoshisLen {
		return fmt.Errorf("%w: satoshis length %d", ErrInvalidOutput, len(o.Satoshis))
	}
	if len(o.Script) > consts.MaxScriptSize {
		return fmt.Errorf("%w: script length %d", ErrInvalidOutput, len(o.Script))
	}
	return nil
}

// Bytes serializes satoshis(8) | varint(len) | script.
func (o Output) Bytes() ([]byte, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(consts.SatoshisLen + wire.VarIntSerializeSize(uint64(len(o.Script))) + len(o.Script))
	buf.Write(o.Satoshis)
	if err := wire.WriteVarBytes(&buf, pver, o.Script); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Value decodes the little-endian satoshi amount.
func (o Output) Value() int64 {
	return int64(binary.LittleEndian.Uint64(o.Satoshis))
}

// SatoshiBytes encodes a satoshi amount as it appears in an output.
func SatoshiBytes(value int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(value))
}

func checkFixed(name string, b []byte, want int) error {
	if len(b) != want {
		return fmt.Errorf("%w: %s length got=%d want=%d", ErrInvalidField, name, len(b), want)
	}
	return nil
}

func writeCount(buf *bytes.Buffer, n int) error {
	return wire.WriteVarInt(buf, pver, uint64(n))
}

// readOutput consumes one serialized output from r.
func readOutput(r *bytes.Reader) (Output, error) {
	sats := make([]byte, consts.SatoshisLen)
	if _, err := io.ReadFull(r, sats); err != nil {
		return Output{}, fmt.Errorf("%w: short satoshis", ErrInvalidOutput)
	}
	script, err := wire.ReadVarBytes(r, pver, consts.MaxScriptSize, "pkScript")
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return Output{Satoshis: sats, Script: script}, nil
}

// ParseOutput decodes exactly one serialized output.
func ParseOutput(b []byte) (Output, error) {
	r := bytes.NewReader(b)
	out, err := readOutput(r)
	if err != nil {
		return Output{}, err
	}
	if r.Len() != 0 {
		return Output{}, ErrTrailingBytes
	}
	return out, nil
}

func readCount(r *bytes.Reader, max int, errRange error) (int, error) {
	n, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	if n == 0 || n > uint64(max) {
		return 0, fmt.Errorf("%w (n=%d)", errRange, n)
	}
	return int(n), nil
}
