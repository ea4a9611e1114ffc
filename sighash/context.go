package sighash

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

var (
	ErrPrevoutsMismatch     = fmt.Errorf("%w: prevouts do not match sighash", consts.ErrStructuralMismatch)
	ErrSpentScriptsMismatch = fmt.Errorf("%w: spent scripts do not match sighash", consts.ErrStructuralMismatch)
	ErrSpentAmountsMismatch = fmt.Errorf("%w: spent amounts do not match sighash", consts.ErrStructuralMismatch)
	ErrOutputsMismatch      = fmt.Errorf("%w: outputs do not match sighash", consts.ErrStructuralMismatch)
	ErrInputIndex           = fmt.Errorf("%w: input index out of range", consts.ErrStructuralMismatch)
	ErrSpendType            = fmt.Errorf("%w: not a tapscript spend", consts.ErrStructuralMismatch)
)

// Context is the set of facts about the spending transaction that become
// trusted once the reconstructed signature has verified.
type Context struct {
	Preimage     *Preimage
	Message      chainhash.Hash
	InputIndex   int
	Prevouts     [][]byte
	SpentScripts [][]byte
	SpentAmounts [][]byte
}

// InputCount is the number of inputs of the spending transaction.
func (c *Context) InputCount() int {
	return len(c.Prevouts)
}

// Prevout returns the trusted outpoint spent by input i.
func (c *Context) Prevout(i int) []byte {
	return c.Prevouts[i]
}

// OwnScript is the trusted script of the input being verified.
func (c *Context) OwnScript() []byte {
	return c.SpentScripts[c.InputIndex]
}

// VerifyOutputs checks that serialized outputs hash to sha_outputs.
func (c *Context) VerifyOutputs(outputs []byte) error {
	sum := sha256.Sum256(outputs)
	if !bytes.Equal(sum[:], c.Preimage.ShaOutputs) {
		return ErrOutputsMismatch
	}
	return nil
}

// VerifyContext runs Verify and then binds the witness-supplied prevouts,
// spent scripts and spent amounts to the hashes inside the verified message.
func VerifyContext(
	p *Preimage,
	prevouts [][]byte,
	spentScripts [][]byte,
	spentAmounts [][]byte,
	checker Checker,
) (*Context, error) {
	msg, err := Verify(p, checker)
	if err != nil {
		return nil, err
	}
	if p.SpendType[0] != SpendTypeTapscript || p.KeyVersion[0] != KeyVersionTapscript {
		return nil, ErrSpendType
	}

	n := len(prevouts)
	if n == 0 || n > consts.TxInputCountMax || len(spentScripts) != n || len(spentAmounts) != n {
		return nil, fmt.Errorf(
			"%w (prevouts=%d scripts=%d amounts=%d)",
			ErrInputIndex,
			n,
			len(spentScripts),
			len(spentAmounts),
		)
	}
	index := binary.LittleEndian.Uint32(p.InputIndex)
	if uint64(index) >= uint64(n) {
		return nil, fmt.Errorf("%w (index=%d inputs=%d)", ErrInputIndex, index, n)
	}

	if err := checkHash(prevouts, consts.OutpointLen, p.ShaPrevouts, ErrPrevoutsMismatch); err != nil {
		return nil, err
	}
	if err := checkHash(spentAmounts, consts.SatoshisLen, p.ShaSpentAmounts, ErrSpentAmountsMismatch); err != nil {
		return nil, err
	}
	if ShaScripts(spentScripts) != [32]byte(p.ShaSpentScripts) {
		return nil, ErrSpentScriptsMismatch
	}

	return &Context{
		Preimage:     p,
		Message:      msg,
		InputIndex:   int(index),
		Prevouts:     prevouts,
		SpentScripts: spentScripts,
		SpentAmounts: spentAmounts,
	}, nil
}

func checkHash(items [][]byte, size int, want []byte, mismatch error) error {
	for i, item := range items {
		if len(item) != size {
			return fmt.Errorf("%w: item %d has %d bytes", mismatch, i, len(item))
		}
	}
	sum := sha256.Sum256(bytes.Join(items, nil))
	if !bytes.Equal(sum[:], want) {
		return mismatch
	}
	return nil
}

// ShaScripts hashes scripts serialized with their compact-size prefix, as
// BIP-341 does for sha_scriptpubkeys.
func ShaScripts(scripts [][]byte) [32]byte {
	var buf bytes.Buffer
	for _, s := range scripts {
		_ = wire.WriteVarBytes(&buf, 0, s)
	}
	return sha256.Sum256(buf.Bytes())
}
