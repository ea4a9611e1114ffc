package txpreimage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

var (
	_ Preimage = (*Full)(nil)
	_ Preimage = (*Partial)(nil)
	_ Preimage = (*Tiny)(nil)
)

// Full carries every input and every output as literal serialized bytes.
type Full struct {
	Version  []byte
	Inputs   [][]byte
	Outputs  [][]byte
	LockTime []byte
}

func (*Full) Tier() Tier { return TierFull }

func (f *Full) Serialize() ([]byte, error) {
	if err := checkFixed("version", f.Version, consts.TxVersionLen); err != nil {
		return nil, err
	}
	if err := checkFixed("locktime", f.LockTime, consts.LockTimeLen); err != nil {
		return nil, err
	}
	if len(f.Inputs) == 0 || len(f.Inputs) > consts.TxInputCountMax {
		return nil, fmt.Errorf("%w (n=%d)", ErrInputCount, len(f.Inputs))
	}
	if len(f.Outputs) == 0 || len(f.Outputs) > consts.TxOutputCountMax {
		return nil, fmt.Errorf("%w (n=%d)", ErrOutputCount, len(f.Outputs))
	}
	for _, in := range f.Inputs {
		if err := checkInput(in); err != nil {
			return nil, err
		}
	}
	for _, out := range f.Outputs {
		if _, err := ParseOutput(out); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.Write(f.Version)
	if err := writeCount(&buf, len(f.Inputs)); err != nil {
		return nil, err
	}
	for _, in := range f.Inputs {
		buf.Write(in)
	}
	if err := writeCount(&buf, len(f.Outputs)); err != nil {
		return nil, err
	}
	for _, out := range f.Outputs {
		buf.Write(out)
	}
	buf.Write(f.LockTime)
	return buf.Bytes(), nil
}

func (f *Full) TxID() (chainhash.Hash, error) {
	return ReconstructHash(f)
}

// Output decodes the output at index.
func (f *Full) Output(index int) (Output, error) {
	if index < 0 || index >= len(f.Outputs) {
		return Output{}, fmt.Errorf("%w (index=%d outputs=%d)", ErrOutputIndex, index, len(f.Outputs))
	}
	return ParseOutput(f.Outputs[index])
}

// Partial carries literal inputs and outputs split into parallel satoshi and
// script arrays.
type Partial struct {
	Version        []byte
	Inputs         [][]byte
	OutputSatoshis [][]byte
	OutputScripts  [][]byte
	LockTime       []byte
}

func (*Partial) Tier() Tier { return TierPartial }

func (p *Partial) Serialize() ([]byte, error) {
	if err := checkFixed("version", p.Version, consts.TxVersionLen); err != nil {
		return nil, err
	}
	if err := checkFixed("locktime", p.LockTime, consts.LockTimeLen); err != nil {
		return nil, err
	}
	if len(p.Inputs) == 0 || len(p.Inputs) > consts.TxInputCountMax {
		return nil, fmt.Errorf("%w (n=%d)", ErrInputCount, len(p.Inputs))
	}
	if len(p.OutputScripts) == 0 || len(p.OutputScripts) > consts.TxOutputCountMax {
		return nil, fmt.Errorf("%w (n=%d)", ErrOutputCount, len(p.OutputScripts))
	}
	if len(p.OutputSatoshis) != len(p.OutputScripts) {
		return nil, fmt.Errorf(
			"%w: satoshis=%d scripts=%d",
			ErrOutputCount,
			len(p.OutputSatoshis),
			len(p.OutputScripts),
		)
	}
	for _, in := range p.Inputs {
		if err := checkInput(in); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.Write(p.Version)
	if err := writeCount(&buf, len(p.Inputs)); err != nil {
		return nil, err
	}
	for _, in := range p.Inputs {
		buf.Write(in)
	}
	if err := writeCount(&buf, len(p.OutputScripts)); err != nil {
		return nil, err
	}
	for i := range p.OutputScripts {
		out, err := p.Output(i).Bytes()
		if err != nil {
			return nil, err
		}
		buf.Write(out)
	}
	buf.Write(p.LockTime)
	return buf.Bytes(), nil
}

func (p *Partial) TxID() (chainhash.Hash, error) {
	return ReconstructHash(p)
}

// Output returns the output at index. The caller bounds index.
func (p *Partial) Output(index int) Output {
	return Output{Satoshis: p.OutputSatoshis[index], Script: p.OutputScripts[index]}
}

// Tiny carries the transaction prefix (version, inputs and both counts) in
// at most four blocks of at most 80 bytes, followed by the outputs before the
// traced output, the traced output itself, and the remaining outputs with
// the locktime.
type Tiny struct {
	Prefix   [][]byte
	Leading  []byte
	Target   Output
	Trailing []byte
}

func (*Tiny) Tier() Tier { return TierTiny }

func (t *Tiny) Serialize() ([]byte, error) {
	if len(t.Prefix) == 0 || len(t.Prefix) > consts.TinyPrefixBlocks {
		return nil, fmt.Errorf("%w: %d blocks", ErrTinyPrefix, len(t.Prefix))
	}
	for i, block := range t.Prefix {
		if len(block) > consts.TinyBlockMaxLen {
			return nil, fmt.Errorf("%w: block %d has %d bytes", ErrTinyPrefix, i, len(block))
		}
	}
	target, err := t.Target.Bytes()
	if err != nil {
		return nil, err
	}
	if len(t.Trailing) < consts.LockTimeLen {
		return nil, fmt.Errorf("%w: trailing section shorter than locktime", ErrInvalidField)
	}

	var buf bytes.Buffer
	for _, block := range t.Prefix {
		buf.Write(block)
	}
	buf.Write(t.Leading)
	buf.Write(target)
	buf.Write(t.Trailing)
	return buf.Bytes(), nil
}

func (t *Tiny) TxID() (chainhash.Hash, error) {
	return ReconstructHash(t)
}

// OutputAt strictly parses the preimage and returns the traced output,
// asserting it sits at index.
func (t *Tiny) OutputAt(index uint32) (Output, error) {
	if _, err := t.Serialize(); err != nil {
		return Output{}, err
	}
	prefix := bytes.Join(t.Prefix, nil)
	r := bytes.NewReader(prefix)

	version := make([]byte, consts.TxVersionLen)
	if _, err := io.ReadFull(r, version); err != nil {
		return Output{}, fmt.Errorf("%w: short version", ErrTinyPrefix)
	}
	nIn, err := readCount(r, consts.TxInputCountMax, ErrInputCount)
	if err != nil {
		return Output{}, err
	}
	in := make([]byte, consts.InputLen)
	for i := 0; i < nIn; i++ {
		if _, err := io.ReadFull(r, in); err != nil {
			return Output{}, fmt.Errorf("%w: short input %d", ErrTinyPrefix, i)
		}
		if err := checkInput(in); err != nil {
			return Output{}, err
		}
	}
	nOut, err := readCount(r, consts.TxOutputCountMax, ErrOutputCount)
	if err != nil {
		return Output{}, err
	}
	if r.Len() != 0 {
		return Output{}, fmt.Errorf("%w: prefix", ErrTrailingBytes)
	}
	if uint64(index) >= uint64(nOut) {
		return Output{}, fmt.Errorf("%w (index=%d outputs=%d)", ErrOutputIndex, index, nOut)
	}

	if err := consumeOutputs(t.Leading, int(index), 0); err != nil {
		return Output{}, err
	}
	if err := consumeOutputs(t.Trailing, nOut-int(index)-1, consts.LockTimeLen); err != nil {
		return Output{}, err
	}
	return t.Target, nil
}

// consumeOutputs asserts b holds exactly n serialized outputs followed by
// exactly tail bytes.
func consumeOutputs(b []byte, n int, tail int) error {
	r := bytes.NewReader(b)
	for i := 0; i < n; i++ {
		if _, err := readOutput(r); err != nil {
			return err
		}
	}
	if r.Len() != tail {
		return fmt.Errorf("%w: got=%d want=%d", ErrTrailingBytes, r.Len(), tail)
	}
	return nil
}
