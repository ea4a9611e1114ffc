// Package commitment binds the custom state of every output of a
// transaction into a single 20-byte root carried by output 0.
package commitment

import (
	"bytes"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/hashing"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

// RootSlots is the number of state slots committed by one root. Slot i
// always describes output i+1.
const RootSlots = consts.StateOutputCountMax

const (
	rootScriptLen  = 2 + len(consts.ID) + 1 + consts.Hash160Len
	rootPushLen    = len(consts.ID) + 1 + consts.Hash160Len
	rootVersion    = 0x01
	opReturn       = 0x6a
	rootOutputSize = consts.SatoshisLen + 1 + rootScriptLen
)

var (
	ErrRootMismatch      = fmt.Errorf("%w: state hash root mismatch", consts.ErrStructuralMismatch)
	ErrInvalidSlot       = fmt.Errorf("%w: state hash slot must be empty or 20 bytes", consts.ErrStructuralMismatch)
	ErrInvalidRootScript = fmt.Errorf("%w: not a state hash root output", consts.ErrStructuralMismatch)
)

// StateHashList holds the state hashes of outputs 1..5. Unused slots are
// empty.
type StateHashList [RootSlots][]byte

// Hash160 returns RIPEMD160(SHA256(b)).
func Hash160(b []byte) []byte {
	return hashing.ComputeHash160(hashing.ComputeHash256(b))
}

// StateHash is the 20-byte commitment to one output's state bytes.
func StateHash(state []byte) []byte {
	return Hash160(state)
}

// Validate checks that every slot is either empty or a 20-byte hash.
func (l StateHashList) Validate() error {
	for i, slot := range l {
		if len(slot) != 0 && len(slot) != consts.Hash160Len {
			return fmt.Errorf("%w (slot=%d len=%d)", ErrInvalidSlot, i, len(slot))
		}
	}
	return nil
}

// BuildRoot folds the list into its root: hash160 over the concatenation of
// hash160(slot) for each slot, where an empty slot hashes as hash160('').
func BuildRoot(l StateHashList) []byte {
	preimage := make([]byte, 0, RootSlots*consts.Hash160Len)
	for _, slot := range l {
		preimage = append(preimage, Hash160(slot)...)
	}
	return Hash160(preimage)
}

// CheckRoot reports whether l commits to root.
func CheckRoot(l StateHashList, root []byte) bool {
	return VerifyRoot(l, root) == nil
}

// VerifyRoot is CheckRoot with the failure reason.
func VerifyRoot(l StateHashList, root []byte) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if len(root) != consts.Hash160Len || !bytes.Equal(BuildRoot(l), root) {
		return ErrRootMismatch
	}
	return nil
}

// RootOutputScript returns OP_RETURN 0x18 "cat" 0x01 <root>.
func RootOutputScript(root []byte) []byte {
	script := make([]byte, 0, rootScriptLen)
	script = append(script, opReturn, byte(rootPushLen))
	script = append(script, consts.ID...)
	script = append(script, rootVersion)
	script = append(script, root...)
	return script
}

// ParseRootOutputScript extracts the root from a root output script.
func ParseRootOutputScript(script []byte) ([]byte, error) {
	if len(script) != rootScriptLen {
		return nil, fmt.Errorf("%w (len=%d)", ErrInvalidRootScript, len(script))
	}
	prefix := RootOutputScript(nil)
	if !bytes.Equal(script[:len(prefix)], prefix) {
		return nil, ErrInvalidRootScript
	}
	return script[len(prefix):], nil
}

// RootOutput serializes the zero-value root output as it appears in a
// transaction: satoshis(8) | script length | script.
func RootOutput(root []byte) []byte {
	out := make([]byte, consts.SatoshisLen, rootOutputSize)
	out = append(out, byte(rootScriptLen))
	return append(out, RootOutputScript(root)...)
}
