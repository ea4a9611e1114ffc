package guard

import (
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"

	smath "github.com/ava-labs/avalanchego/utils/math"
)

// OutputClaim describes one output after the root output.
type OutputClaim struct {
	Output    txpreimage.Output `json:"output"`
	TypeIndex int8              `json:"typeIndex"`
	OwnerAddr []byte            `json:"ownerAddr,omitempty"`
	Amount    uint64            `json:"amount,omitempty"`
	// StateHash is the committed state hash of an untyped output.
	StateHash []byte `json:"stateHash,omitempty"`
}

// Witness is what a fungible guard spend supplies besides the sighash
// context.
type Witness struct {
	State   *ConstState                      `json:"state"`
	Inputs  [InputSlots]*covenant.CAT20State `json:"inputs"`
	Outputs []OutputClaim                    `json:"outputs"`
}

// Totals summarizes a cleared transfer.
type Totals struct {
	Types int               `json:"types"`
	In    [TypeSlots]uint64 `json:"in"`
	Out   [TypeSlots]uint64 `json:"out"`
	Burn  [TypeSlots]uint64 `json:"burn"`
	Root  []byte            `json:"root"`
}

// VerifyFungible checks that, per guarded token type, the inputs of the
// transaction hold exactly what its outputs hold plus the declared burn.
// ctx must come from a verified sighash of the guard input.
func VerifyFungible(ctx *sighash.Context, w *Witness) (*Totals, error) {
	s := w.State
	if s == nil {
		return nil, fmt.Errorf("%w: missing", ErrInvalidState)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	t := &Totals{}
	types, err := scanInputs(ctx, &s.TokenScripts, &s.TokenScriptIndexes, &s.InputStateHashes,
		func(i int, idx int8) ([]byte, error) {
			st := w.Inputs[i]
			if st == nil {
				return nil, fmt.Errorf("%w: no claimed state for input %d", ErrInputState, i)
			}
			if err := st.Validate(); err != nil {
				return nil, err
			}
			sum, err := smath.Add(t.In[idx], st.Amount)
			if err != nil {
				return nil, fmt.Errorf("%w (type=%d)", ErrOverflow, idx)
			}
			t.In[idx] = sum
			return st.StateHash(), nil
		},
	)
	if err != nil {
		return nil, err
	}
	t.Types = types

	outs := make([]txpreimage.StateOutput, 0, len(w.Outputs))
	for i, o := range w.Outputs {
		so := txpreimage.StateOutput{Output: o.Output}
		if o.TypeIndex == NoType {
			if err := checkUntyped(i+1, o.Output.Script, &s.TokenScripts, types); err != nil {
				return nil, err
			}
			so.StateHash = o.StateHash
		} else {
			if err := checkTyped(i+1, o.TypeIndex, o.Output.Script, &s.TokenScripts, types); err != nil {
				return nil, err
			}
			st := &covenant.CAT20State{OwnerAddr: o.OwnerAddr, Amount: o.Amount}
			if err := st.Validate(); err != nil {
				return nil, fmt.Errorf("output %d: %w", i+1, err)
			}
			sum, err := smath.Add(t.Out[o.TypeIndex], o.Amount)
			if err != nil {
				return nil, fmt.Errorf("%w (type=%d)", ErrOverflow, o.TypeIndex)
			}
			t.Out[o.TypeIndex] = sum
			so.StateHash = st.StateHash()
		}
		outs = append(outs, so)
	}

	for i := 0; i < TypeSlots; i++ {
		if i >= types {
			if s.TokenAmounts[i] != 0 || s.TokenBurnAmounts[i] != 0 {
				return nil, fmt.Errorf("%w (type=%d)", ErrUnusedType, i)
			}
			continue
		}
		if s.TokenAmounts[i] != t.In[i] {
			return nil, fmt.Errorf("%w (type=%d declared=%d inputs=%d)", ErrInputAmount, i, s.TokenAmounts[i], t.In[i])
		}
		spent, err := smath.Add(t.Out[i], s.TokenBurnAmounts[i])
		if err != nil {
			return nil, fmt.Errorf("%w (type=%d)", ErrOverflow, i)
		}
		if spent != t.In[i] {
			return nil, fmt.Errorf(
				"%w (type=%d in=%d out=%d burn=%d)",
				ErrNotConserved,
				i,
				t.In[i],
				t.Out[i],
				s.TokenBurnAmounts[i],
			)
		}
		t.Burn[i] = s.TokenBurnAmounts[i]
	}

	t.Root, err = commitOutputs(ctx, outs)
	if err != nil {
		return nil, err
	}
	return t, nil
}
