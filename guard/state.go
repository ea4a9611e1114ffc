// Package guard verifies conservation across every token input and output
// of one transaction, so that each asset input only has to check that a
// guard is present and lists it.
package guard

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

const (
	// TypeSlots is the number of token types one guard clears.
	TypeSlots = consts.GuardTokenTypeMax
	// InputSlots is the number of inputs a guard can describe.
	InputSlots = consts.TxInputCountMax

	// NoType marks an input or output that carries no guarded token.
	NoType int8 = -1

	sentinelBase = 0xff
)

var (
	ErrInvalidState   = fmt.Errorf("%w: invalid guard state", consts.ErrStructuralMismatch)
	ErrTypeIndex      = fmt.Errorf("%w: token type index out of range", consts.ErrStructuralMismatch)
	ErrTypeAnchor     = fmt.Errorf("%w: token type count not anchored by inputs", consts.ErrStructuralMismatch)
	ErrDuplicateType  = fmt.Errorf("%w: token script listed twice", consts.ErrStructuralMismatch)
	ErrInputScript    = fmt.Errorf("%w: input script does not match its token type", consts.ErrStructuralMismatch)
	ErrInputState     = fmt.Errorf("%w: input state hash mismatch", consts.ErrStructuralMismatch)
	ErrOutputScript   = fmt.Errorf("%w: output script does not match its token type", consts.ErrStructuralMismatch)
	ErrUnguardedToken = fmt.Errorf("%w: untyped output pays to a guarded token script", consts.ErrStructuralMismatch)
	ErrGuardInput     = fmt.Errorf("%w: guard input is listed as a token input", consts.ErrStructuralMismatch)
	ErrInputAmount    = fmt.Errorf("%w: declared input total mismatch", consts.ErrConservationViolation)
	ErrNotConserved   = fmt.Errorf("%w: input total != output total + burn", consts.ErrConservationViolation)
	ErrUnusedType     = fmt.Errorf("%w: unused token type has nonzero totals", consts.ErrConservationViolation)
	ErrOverflow       = fmt.Errorf("%w: token total overflows", consts.ErrConservationViolation)
)

// Sentinel is the placeholder serialized for unused type slot i.
func Sentinel(i int) []byte {
	return []byte{byte(sentinelBase - i)}
}

func isSentinel(i int, b []byte) bool {
	return len(b) == 1 && b[0] == byte(sentinelBase-i)
}

// typeCount is the length of the leading run of used script slots.
func typeCount(scripts *[TypeSlots][]byte) int {
	n := 0
	for n < TypeSlots && len(scripts[n]) != 0 {
		n++
	}
	return n
}

// checkScripts rejects a gap in the used slots and duplicated scripts.
func checkScripts(scripts *[TypeSlots][]byte) error {
	n := typeCount(scripts)
	for i := n; i < TypeSlots; i++ {
		if len(scripts[i]) != 0 {
			return fmt.Errorf("%w: type slot %d used after unused slot %d", ErrInvalidState, i, n)
		}
	}
	for i := 0; i < n; i++ {
		if len(scripts[i]) > consts.MaxScriptSize {
			return fmt.Errorf("%w: type slot %d script length %d", ErrInvalidState, i, len(scripts[i]))
		}
		for j := 0; j < i; j++ {
			if bytes.Equal(scripts[i], scripts[j]) {
				return fmt.Errorf("%w (slots %d and %d)", ErrDuplicateType, j, i)
			}
		}
	}
	return nil
}

func checkIndexes(indexes *[InputSlots]int8, hashes *[InputSlots][]byte) error {
	for i, idx := range indexes {
		if idx < NoType || int(idx) >= TypeSlots {
			return fmt.Errorf("%w (input=%d index=%d)", ErrTypeIndex, i, idx)
		}
		if len(hashes[i]) != 0 && len(hashes[i]) != consts.Hash160Len {
			return fmt.Errorf("%w: input %d state hash length %d", ErrInvalidState, i, len(hashes[i]))
		}
	}
	return nil
}

// ConstState is the state of a fungible guard. It is fixed when the guard
// output is created, in the transaction before the transfer it clears.
type ConstState struct {
	// TokenScripts holds the guarded token scripts; nil marks an unused slot.
	TokenScripts [TypeSlots][]byte `json:"tokenScripts"`
	// TokenAmounts is the declared input total per type.
	TokenAmounts [TypeSlots]uint64 `json:"tokenAmounts"`
	// TokenBurnAmounts is the amount per type destroyed by the transfer.
	TokenBurnAmounts [TypeSlots]uint64 `json:"tokenBurnAmounts"`
	// InputStateHashes is the state hash of each input of the transfer.
	InputStateHashes [InputSlots][]byte `json:"inputStateHashes"`
	// TokenScriptIndexes maps each input to its type or NoType.
	TokenScriptIndexes [InputSlots]int8 `json:"tokenScriptIndexes"`
}

// NewConstState returns a state with every slot unused.
func NewConstState() *ConstState {
	s := &ConstState{}
	for i := range s.TokenScriptIndexes {
		s.TokenScriptIndexes[i] = NoType
	}
	return s
}

func (s *ConstState) Validate() error {
	if err := checkScripts(&s.TokenScripts); err != nil {
		return err
	}
	return checkIndexes(&s.TokenScriptIndexes, &s.InputStateHashes)
}

func (s *ConstState) Bytes() []byte {
	p := &wrappers.Packer{MaxSize: math.MaxInt32}
	packScripts(p, &s.TokenScripts)
	for _, a := range s.TokenAmounts {
		p.PackLong(a)
	}
	for _, a := range s.TokenBurnAmounts {
		p.PackLong(a)
	}
	packInputs(p, &s.InputStateHashes, &s.TokenScriptIndexes)
	return p.Bytes
}

func (s *ConstState) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}

// UnmarshalConstState decodes Bytes, turning sentinels back into nil slots.
func UnmarshalConstState(b []byte) (*ConstState, error) {
	s := &ConstState{}
	p := &wrappers.Packer{Bytes: b}
	unpackScripts(p, &s.TokenScripts)
	for i := range s.TokenAmounts {
		s.TokenAmounts[i] = p.UnpackLong()
	}
	for i := range s.TokenBurnAmounts {
		s.TokenBurnAmounts[i] = p.UnpackLong()
	}
	unpackInputs(p, &s.InputStateHashes, &s.TokenScriptIndexes)
	if err := finish(p, b); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

func packScripts(p *wrappers.Packer, scripts *[TypeSlots][]byte) {
	for i, script := range scripts {
		if len(script) == 0 {
			p.PackBytes(Sentinel(i))
			continue
		}
		p.PackBytes(script)
	}
}

func unpackScripts(p *wrappers.Packer, scripts *[TypeSlots][]byte) {
	for i := range scripts {
		b := p.UnpackBytes()
		switch {
		case isSentinel(i, b):
		case len(b) == 0:
			p.Add(fmt.Errorf("type slot %d is empty without a sentinel", i))
		default:
			scripts[i] = b
		}
	}
}

func packInputs(p *wrappers.Packer, hashes *[InputSlots][]byte, indexes *[InputSlots]int8) {
	for _, h := range hashes {
		p.PackBytes(h)
	}
	for _, idx := range indexes {
		p.PackByte(byte(idx))
	}
}

func unpackInputs(p *wrappers.Packer, hashes *[InputSlots][]byte, indexes *[InputSlots]int8) {
	for i := range hashes {
		if h := p.UnpackBytes(); len(h) != 0 {
			hashes[i] = h
		}
	}
	for i := range indexes {
		indexes[i] = int8(p.UnpackByte())
	}
}

func finish(p *wrappers.Packer, b []byte) error {
	if p.Err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, p.Err)
	}
	if p.Offset != len(b) {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidState, len(b)-p.Offset)
	}
	return nil
}

// NftConstState is the state of an NFT guard. Units are tracked by burn
// masks instead of amounts.
type NftConstState struct {
	NftScripts       [TypeSlots][]byte  `json:"nftScripts"`
	NftBurnMasks     [InputSlots]bool   `json:"nftBurnMasks"`
	InputStateHashes [InputSlots][]byte `json:"inputStateHashes"`
	NftScriptIndexes [InputSlots]int8   `json:"nftScriptIndexes"`
}

// NewNftConstState returns a state with every slot unused.
func NewNftConstState() *NftConstState {
	s := &NftConstState{}
	for i := range s.NftScriptIndexes {
		s.NftScriptIndexes[i] = NoType
	}
	return s
}

func (s *NftConstState) Validate() error {
	if err := checkScripts(&s.NftScripts); err != nil {
		return err
	}
	if err := checkIndexes(&s.NftScriptIndexes, &s.InputStateHashes); err != nil {
		return err
	}
	for i, burn := range s.NftBurnMasks {
		if burn && s.NftScriptIndexes[i] == NoType {
			return fmt.Errorf("%w: burn mask on untyped input %d", ErrInvalidState, i)
		}
	}
	return nil
}

func (s *NftConstState) Bytes() []byte {
	p := &wrappers.Packer{MaxSize: math.MaxInt32}
	packScripts(p, &s.NftScripts)
	for _, burn := range s.NftBurnMasks {
		p.PackBool(burn)
	}
	packInputs(p, &s.InputStateHashes, &s.NftScriptIndexes)
	return p.Bytes
}

func (s *NftConstState) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}

func UnmarshalNftConstState(b []byte) (*NftConstState, error) {
	s := &NftConstState{}
	p := &wrappers.Packer{Bytes: b}
	unpackScripts(p, &s.NftScripts)
	for i := range s.NftBurnMasks {
		s.NftBurnMasks[i] = p.UnpackBool()
	}
	unpackInputs(p, &s.InputStateHashes, &s.NftScriptIndexes)
	if err := finish(p, b); err != nil {
		return nil, err
	}
	return s, s.Validate()
}
