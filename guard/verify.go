package guard

import (
	"bytes"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

// claimFunc returns the state hash recomputed from the claimed state of a
// typed input.
type claimFunc func(input int, typeIndex int8) ([]byte, error)

// scanInputs checks every typed input against the trusted spent scripts and
// the guard's input state hashes, and anchors the type count: the largest
// type index used by an input must be the last slot of the leading run of
// used scripts. Outputs never take part in this.
func scanInputs(
	ctx *sighash.Context,
	scripts *[TypeSlots][]byte,
	indexes *[InputSlots]int8,
	hashes *[InputSlots][]byte,
	claim claimFunc,
) (int, error) {
	if indexes[ctx.InputIndex] != NoType {
		return 0, fmt.Errorf("%w (input=%d)", ErrGuardInput, ctx.InputIndex)
	}
	types := typeCount(scripts)
	maxIndex := int(NoType)
	for i, idx := range indexes {
		if idx == NoType {
			continue
		}
		if i >= ctx.InputCount() {
			return 0, fmt.Errorf("%w (input=%d inputs=%d)", ErrTypeIndex, i, ctx.InputCount())
		}
		if int(idx) >= types {
			return 0, fmt.Errorf("%w (input=%d index=%d types=%d)", ErrTypeAnchor, i, idx, types)
		}
		if !bytes.Equal(ctx.SpentScripts[i], scripts[idx]) {
			return 0, fmt.Errorf("%w (input=%d type=%d)", ErrInputScript, i, idx)
		}
		h, err := claim(i, idx)
		if err != nil {
			return 0, err
		}
		if len(hashes[i]) != len(h) || !bytes.Equal(h, hashes[i]) {
			return 0, fmt.Errorf("%w (input=%d)", ErrInputState, i)
		}
		maxIndex = max(maxIndex, int(idx))
	}
	if maxIndex+1 != types {
		return 0, fmt.Errorf("%w (max index=%d types=%d)", ErrTypeAnchor, maxIndex, types)
	}
	return types, nil
}

// checkUntyped rejects an untyped output that pays to a guarded script.
func checkUntyped(output int, script []byte, scripts *[TypeSlots][]byte, types int) error {
	for t := 0; t < types; t++ {
		if bytes.Equal(script, scripts[t]) {
			return fmt.Errorf("%w (output=%d type=%d)", ErrUnguardedToken, output, t)
		}
	}
	return nil
}

func checkTyped(output int, idx int8, script []byte, scripts *[TypeSlots][]byte, types int) error {
	if idx < 0 || int(idx) >= types {
		return fmt.Errorf("%w (output=%d index=%d types=%d)", ErrTypeIndex, output, idx, types)
	}
	if !bytes.Equal(script, scripts[idx]) {
		return fmt.Errorf("%w (output=%d type=%d)", ErrOutputScript, output, idx)
	}
	return nil
}

// commitOutputs rebuilds the root and the serialized outputs from the
// per-output claims and checks them against sha_outputs.
func commitOutputs(ctx *sighash.Context, outs []txpreimage.StateOutput) ([]byte, error) {
	if len(outs) > commitment.RootSlots {
		return nil, fmt.Errorf("%w (outputs=%d)", txpreimage.ErrOutputCount, len(outs)+1)
	}
	root, serialized, err := txpreimage.SerializeStateOutputs(outs)
	if err != nil {
		return nil, err
	}
	if err := ctx.VerifyOutputs(serialized); err != nil {
		return nil, err
	}
	return root, nil
}
