package txpreimage

import (
	"bytes"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

// StateOutput is an output after the root output, with the state hash it
// commits in the root. StateHash is empty for outputs without state.
type StateOutput struct {
	Output
	StateHash []byte
}

// SerializeStateOutputs builds the state hash root over outs and returns it
// with the serialization of the root output followed by every output in
// outs. The result is what sha_outputs of the spending transaction hashes.
func SerializeStateOutputs(outs []StateOutput) ([]byte, []byte, error) {
	if len(outs) > commitment.RootSlots {
		return nil, nil, fmt.Errorf("%w (n=%d)", ErrOutputCount, len(outs)+1)
	}
	var hashes commitment.StateHashList
	for i, o := range outs {
		hashes[i] = o.StateHash
	}
	if err := hashes.Validate(); err != nil {
		return nil, nil, err
	}
	root := commitment.BuildRoot(hashes)

	var buf bytes.Buffer
	buf.Write(commitment.RootOutput(root))
	for _, o := range outs {
		b, err := o.Bytes()
		if err != nil {
			return nil, nil, err
		}
		buf.Write(b)
	}
	return root, buf.Bytes(), nil
}

// VerifyFullRoot checks that hashes is the state hash list committed by the
// root output of f.
func VerifyFullRoot(f *Full, hashes commitment.StateHashList) error {
	if len(f.Outputs) == 0 {
		return fmt.Errorf("%w (n=0)", ErrOutputCount)
	}
	rootOut, err := ParseOutput(f.Outputs[0])
	if err != nil {
		return err
	}
	root, err := commitment.ParseRootOutputScript(rootOut.Script)
	if err != nil {
		return err
	}
	return commitment.VerifyRoot(hashes, root)
}

// VerifyPartialRoot is VerifyFullRoot for a Partial preimage.
func VerifyPartialRoot(p *Partial, hashes commitment.StateHashList) error {
	if len(p.OutputScripts) == 0 {
		return fmt.Errorf("%w (n=0)", ErrOutputCount)
	}
	root, err := commitment.ParseRootOutputScript(p.OutputScripts[0])
	if err != nil {
		return err
	}
	return commitment.VerifyRoot(hashes, root)
}

// PostageOutput is a state output carrying the default postage.
func PostageOutput(script []byte, stateHash []byte) StateOutput {
	return StateOutput{
		Output: Output{
			Satoshis: SatoshiBytes(consts.DefaultPostage),
			Script:   script,
		},
		StateHash: stateHash,
	}
}
