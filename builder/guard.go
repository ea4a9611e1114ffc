package builder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/guard"

	smath "github.com/ava-labs/avalanchego/utils/math"
)

var (
	ErrTooManyTypes = errors.New("too many token types for one guard")
	ErrInputSlot    = errors.New("guard input slot out of range or reused")
)

// TokenInput is a CAT20 input of a planned transfer.
type TokenInput struct {
	InputIndex int
	Script     []byte
	State      *covenant.CAT20State
}

// NftInput is a CAT721 input of a planned transfer.
type NftInput struct {
	InputIndex int
	Script     []byte
	State      *covenant.CAT721State
	Burn       bool
}

// typeSlot returns the slot of script, assigning the next free one.
func typeSlot(scripts *[guard.TypeSlots][]byte, script []byte) (int8, error) {
	for i, s := range scripts {
		if len(s) == 0 {
			scripts[i] = script
			return int8(i), nil
		}
		if bytes.Equal(s, script) {
			return int8(i), nil
		}
	}
	return 0, fmt.Errorf("%w (max=%d)", ErrTooManyTypes, guard.TypeSlots)
}

func claimSlot(indexes *[guard.InputSlots]int8, input int, idx int8) error {
	if input < 0 || input >= guard.InputSlots || indexes[input] != guard.NoType {
		return fmt.Errorf("%w (input=%d)", ErrInputSlot, input)
	}
	indexes[input] = idx
	return nil
}

// FungibleGuardState assembles the guard state clearing inputs, with burn
// giving the amount destroyed per token script.
func FungibleGuardState(inputs []TokenInput, burn map[string]uint64) (*guard.ConstState, error) {
	s := guard.NewConstState()
	for _, in := range inputs {
		idx, err := typeSlot(&s.TokenScripts, in.Script)
		if err != nil {
			return nil, err
		}
		if err := claimSlot(&s.TokenScriptIndexes, in.InputIndex, idx); err != nil {
			return nil, err
		}
		s.InputStateHashes[in.InputIndex] = in.State.StateHash()
		if s.TokenAmounts[idx], err = smath.Add(s.TokenAmounts[idx], in.State.Amount); err != nil {
			return nil, err
		}
	}
	for script, amount := range burn {
		idx, err := typeSlot(&s.TokenScripts, []byte(script))
		if err != nil {
			return nil, err
		}
		s.TokenBurnAmounts[idx] = amount
	}
	return s, s.Validate()
}

// NftGuardState assembles the NFT guard state clearing inputs.
func NftGuardState(inputs []NftInput) (*guard.NftConstState, error) {
	s := guard.NewNftConstState()
	for _, in := range inputs {
		idx, err := typeSlot(&s.NftScripts, in.Script)
		if err != nil {
			return nil, err
		}
		if err := claimSlot(&s.NftScriptIndexes, in.InputIndex, idx); err != nil {
			return nil, err
		}
		s.InputStateHashes[in.InputIndex] = in.State.StateHash()
		s.NftBurnMasks[in.InputIndex] = in.Burn
	}
	return s, s.Validate()
}
