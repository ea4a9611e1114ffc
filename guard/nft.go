package guard

import (
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var (
	ErrUnitMismatch = fmt.Errorf("%w: output nft does not match next unburned input", consts.ErrConservationViolation)
	ErrUnitMissing  = fmt.Errorf("%w: unburned input nft has no output", consts.ErrConservationViolation)
)

// NftOutputClaim describes one output after the root output.
type NftOutputClaim struct {
	Output    txpreimage.Output `json:"output"`
	TypeIndex int8              `json:"typeIndex"`
	OwnerAddr []byte            `json:"ownerAddr,omitempty"`
	LocalID   uint64            `json:"localId,omitempty"`
	StateHash []byte            `json:"stateHash,omitempty"`
}

type NftWitness struct {
	State   *NftConstState                    `json:"state"`
	Inputs  [InputSlots]*covenant.CAT721State `json:"inputs"`
	Outputs []NftOutputClaim                  `json:"outputs"`
}

type unit struct {
	typeIndex int8
	localID   uint64
}

// NftTotals counts units per type.
type NftTotals struct {
	Types  int            `json:"types"`
	In     [TypeSlots]int `json:"in"`
	Out    [TypeSlots]int `json:"out"`
	Burned [TypeSlots]int `json:"burned"`
	Root   []byte         `json:"root"`
}

// VerifyNft checks that the unburned input NFTs, in input order, are
// exactly the typed outputs in output order.
func VerifyNft(ctx *sighash.Context, w *NftWitness) (*NftTotals, error) {
	s := w.State
	if s == nil {
		return nil, fmt.Errorf("%w: missing", ErrInvalidState)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	t := &NftTotals{}
	var survivors []unit
	types, err := scanInputs(ctx, &s.NftScripts, &s.NftScriptIndexes, &s.InputStateHashes,
		func(i int, idx int8) ([]byte, error) {
			st := w.Inputs[i]
			if st == nil {
				return nil, fmt.Errorf("%w: no claimed state for input %d", ErrInputState, i)
			}
			if err := st.Validate(); err != nil {
				return nil, err
			}
			t.In[idx]++
			if s.NftBurnMasks[i] {
				t.Burned[idx]++
			} else {
				survivors = append(survivors, unit{typeIndex: idx, localID: st.LocalID})
			}
			return st.StateHash(), nil
		},
	)
	if err != nil {
		return nil, err
	}
	t.Types = types

	next := 0
	outs := make([]txpreimage.StateOutput, 0, len(w.Outputs))
	for i, o := range w.Outputs {
		so := txpreimage.StateOutput{Output: o.Output}
		if o.TypeIndex == NoType {
			if err := checkUntyped(i+1, o.Output.Script, &s.NftScripts, types); err != nil {
				return nil, err
			}
			so.StateHash = o.StateHash
			outs = append(outs, so)
			continue
		}
		if err := checkTyped(i+1, o.TypeIndex, o.Output.Script, &s.NftScripts, types); err != nil {
			return nil, err
		}
		if next >= len(survivors) {
			return nil, fmt.Errorf("%w (output=%d)", ErrUnitMismatch, i+1)
		}
		u := survivors[next]
		if u.typeIndex != o.TypeIndex || u.localID != o.LocalID {
			return nil, fmt.Errorf(
				"%w (output=%d type=%d id=%d want type=%d id=%d)",
				ErrUnitMismatch,
				i+1,
				o.TypeIndex,
				o.LocalID,
				u.typeIndex,
				u.localID,
			)
		}
		next++
		st := &covenant.CAT721State{OwnerAddr: o.OwnerAddr, LocalID: o.LocalID}
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("output %d: %w", i+1, err)
		}
		t.Out[o.TypeIndex]++
		so.StateHash = st.StateHash()
		outs = append(outs, so)
	}
	if next != len(survivors) {
		return nil, fmt.Errorf("%w (%d of %d matched)", ErrUnitMissing, next, len(survivors))
	}

	t.Root, err = commitOutputs(ctx, outs)
	if err != nil {
		return nil, err
	}
	return t, nil
}
