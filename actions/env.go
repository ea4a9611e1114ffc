package actions

import (
	"bytes"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var (
	ErrMissingEnv     = fmt.Errorf("%w: missing spend environment", consts.ErrStructuralMismatch)
	ErrLeafMismatch   = fmt.Errorf("%w: tapleaf hash is not the contract leaf", consts.ErrStructuralMismatch)
	ErrRootOutput     = fmt.Errorf("%w: spent output is the root output", consts.ErrStructuralMismatch)
	ErrPrevState      = fmt.Errorf("%w: state not committed by previous root", consts.ErrStructuralMismatch)
	ErrOwnerMismatch  = fmt.Errorf("%w: owner address mismatch", consts.ErrSignatureInvalid)
	ErrInputRef       = fmt.Errorf("%w: referenced input out of range", consts.ErrStructuralMismatch)
	ErrMintAmount     = fmt.Errorf("%w: minted amount mismatch", consts.ErrStructuralMismatch)
	ErrNextCounts     = fmt.Errorf("%w: next minter counts do not split the remainder", consts.ErrStructuralMismatch)
	ErrTooManyMinters = fmt.Errorf("%w: too many next minters", consts.ErrStructuralMismatch)
)

// Env is the part of the witness shared by every entry point: the sighash
// preimage of the input being spent, the per-input lists it commits to, and
// the checker standing in for OP_CHECKSIG.
type Env struct {
	Preimage     *sighash.Preimage `json:"preimage"`
	Prevouts     [][]byte          `json:"prevouts"`
	SpentScripts [][]byte          `json:"spentScripts"`
	SpentAmounts [][]byte          `json:"spentAmounts"`

	// Change is an optional trailing output without state.
	Change *txpreimage.Output `json:"change,omitempty"`
	// Postage is the value of every state output; zero means the default.
	Postage int64 `json:"postage,omitempty"`

	Checker sighash.Checker `json:"-"`
}

// open verifies the sighash of the spent input and binds it to contract:
// the trusted spent script must be the contract script and the signed
// tapleaf hash must be its leaf.
func (e *Env) open(c *covenant.Contract) (*sighash.Context, error) {
	if e == nil || e.Preimage == nil || e.Checker == nil {
		return nil, ErrMissingEnv
	}
	ctx, err := sighash.VerifyContext(e.Preimage, e.Prevouts, e.SpentScripts, e.SpentAmounts, e.Checker)
	if err != nil {
		return nil, err
	}
	if err := c.CheckScript(ctx.OwnScript()); err != nil {
		return nil, err
	}
	if !bytes.Equal(ctx.Preimage.TapLeafHash, sighash.LeafHash(c.Leaf)) {
		return nil, ErrLeafMismatch
	}
	return ctx, nil
}

func (e *Env) postage() int64 {
	if e.Postage == 0 {
		return consts.DefaultPostage
	}
	return e.Postage
}

func (e *Env) stateOutput(script []byte, stateHash []byte) txpreimage.StateOutput {
	out := txpreimage.PostageOutput(script, stateHash)
	out.Satoshis = txpreimage.SatoshiBytes(e.postage())
	return out
}

// commit appends the change output, rebuilds the root over outs and checks
// the serialization against sha_outputs.
func (e *Env) commit(ctx *sighash.Context, outs []txpreimage.StateOutput) ([]byte, error) {
	if e.Change != nil {
		outs = append(outs, txpreimage.StateOutput{Output: *e.Change})
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

// checkSig verifies a user or issuer signature through the env checker and
// binds the key to owner.
func (e *Env) checkSig(ctx *sighash.Context, owner []byte, pubKey []byte, sig []byte) error {
	if !bytes.Equal(covenant.OwnerAddrFromPubKey(pubKey), owner) {
		return ErrOwnerMismatch
	}
	return e.Checker.CheckSig(ctx.Message, sig, pubKey)
}

// PrevState proves the state of the spent output one hop back: prevTx is the
// transaction that created it and Hashes the list its root commits to.
type PrevState struct {
	Hashes commitment.StateHashList `json:"hashes"`
}

// prevTxHash is the txid of the output spent by input i.
func prevTxHash(ctx *sighash.Context, i int) []byte {
	return ctx.Prevout(i)[:consts.Hash256Len]
}

func outputIndex(ctx *sighash.Context, i int) (int, error) {
	_, vout, err := txpreimage.SplitOutpoint(ctx.Prevout(i))
	if err != nil {
		return 0, err
	}
	if vout == 0 || int(vout) > commitment.RootSlots {
		return 0, fmt.Errorf("%w (vout=%d)", ErrRootOutput, vout)
	}
	return int(vout), nil
}

// checkPrevState asserts that prevTx created the spent output and that its
// root commits stateHash in the spent output's slot.
func checkPrevState(ctx *sighash.Context, prevTx *txpreimage.Partial, prev *PrevState, stateHash []byte) error {
	if prevTx == nil || prev == nil {
		return backtrace.ErrMissingInfo
	}
	txid, err := prevTx.TxID()
	if err != nil {
		return err
	}
	if !bytes.Equal(txid[:], prevTxHash(ctx, ctx.InputIndex)) {
		return backtrace.ErrPrevTxHashMismatch
	}
	vout, err := outputIndex(ctx, ctx.InputIndex)
	if err != nil {
		return err
	}
	if err := txpreimage.VerifyPartialRoot(prevTx, prev.Hashes); err != nil {
		return err
	}
	if !bytes.Equal(prev.Hashes[vout-1], stateHash) {
		return fmt.Errorf("%w (slot=%d)", ErrPrevState, vout-1)
	}
	return nil
}

// checkInputState is checkPrevState for another input of the transaction,
// whose creating transaction is given as a Full preimage.
func checkInputState(ctx *sighash.Context, input int, prevTx *txpreimage.Full, prev *PrevState, stateHash []byte) error {
	if prevTx == nil || prev == nil {
		return backtrace.ErrMissingInfo
	}
	txid, err := prevTx.TxID()
	if err != nil {
		return err
	}
	if !bytes.Equal(txid[:], prevTxHash(ctx, input)) {
		return backtrace.ErrPrevTxHashMismatch
	}
	vout, err := outputIndex(ctx, input)
	if err != nil {
		return err
	}
	if err := txpreimage.VerifyFullRoot(prevTx, prev.Hashes); err != nil {
		return err
	}
	if !bytes.Equal(prev.Hashes[vout-1], stateHash) {
		return fmt.Errorf("%w (input=%d slot=%d)", ErrPrevState, input, vout-1)
	}
	return nil
}

func checkInputRef(ctx *sighash.Context, i int) error {
	if i < 0 || i >= ctx.InputCount() || i == ctx.InputIndex {
		return fmt.Errorf("%w (input=%d inputs=%d)", ErrInputRef, i, ctx.InputCount())
	}
	return nil
}
