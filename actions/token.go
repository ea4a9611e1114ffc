package actions

import (
	"bytes"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/guard"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var (
	ErrNoOwnerProof   = fmt.Errorf("%w: no owner signature or owning contract", consts.ErrSignatureInvalid)
	ErrGuardScript    = fmt.Errorf("%w: guard input does not carry the guard script", consts.ErrStructuralMismatch)
	ErrNotGuarded     = fmt.Errorf("%w: guard state does not list this input", consts.ErrStructuralMismatch)
	ErrGuardTypeMatch = fmt.Errorf("%w: guard lists this input under another token", consts.ErrStructuralMismatch)
)

// Ownership proves control of an asset: either a user key and its signature,
// or another input whose spent script hashes to the owner address.
type Ownership struct {
	PubKey             []byte `json:"pubKey,omitempty"`
	Sig                []byte `json:"sig,omitempty"`
	ContractInputIndex int    `json:"contractInputIndex"`
}

// UserOwnership is the key path.
func UserOwnership(pubKey []byte, sig []byte) Ownership {
	return Ownership{PubKey: pubKey, Sig: sig, ContractInputIndex: -1}
}

// ContractOwnership is the contract path.
func ContractOwnership(input int) Ownership {
	return Ownership{ContractInputIndex: input}
}

func (o *Ownership) verify(env *Env, ctx *sighash.Context, owner []byte) error {
	if len(o.PubKey) != 0 {
		return env.checkSig(ctx, owner, o.PubKey, o.Sig)
	}
	if o.ContractInputIndex < 0 {
		return ErrNoOwnerProof
	}
	if err := checkInputRef(ctx, o.ContractInputIndex); err != nil {
		return err
	}
	if !bytes.Equal(covenant.OwnerAddrFromScript(ctx.SpentScripts[o.ContractInputIndex]), owner) {
		return fmt.Errorf("%w (contract input=%d)", ErrOwnerMismatch, o.ContractInputIndex)
	}
	return nil
}

// GuardRef locates the guard input of the transaction and proves its
// state through the Full preimage of the transaction that created it.
type GuardRef struct {
	InputIndex int              `json:"inputIndex"`
	PrevTx     *txpreimage.Full `json:"prevTx"`
	Prev       PrevState        `json:"prev"`
}

// check verifies the guard input and that its state lists this input with
// ownScript and ownStateHash, returning the listed type index.
func (g *GuardRef) check(
	ctx *sighash.Context,
	guardScript []byte,
	stateHash []byte,
	scripts *[guard.TypeSlots][]byte,
	indexes *[guard.InputSlots]int8,
	hashes *[guard.InputSlots][]byte,
	ownStateHash []byte,
) error {
	if err := checkInputRef(ctx, g.InputIndex); err != nil {
		return err
	}
	if !bytes.Equal(ctx.SpentScripts[g.InputIndex], guardScript) {
		return fmt.Errorf("%w (input=%d)", ErrGuardScript, g.InputIndex)
	}
	if err := checkInputState(ctx, g.InputIndex, g.PrevTx, &g.Prev, stateHash); err != nil {
		return err
	}
	me := ctx.InputIndex
	idx := indexes[me]
	if idx < 0 || !bytes.Equal(hashes[me], ownStateHash) {
		return fmt.Errorf("%w (input=%d)", ErrNotGuarded, me)
	}
	if int(idx) >= guard.TypeSlots || !bytes.Equal(scripts[idx], ctx.OwnScript()) {
		return fmt.Errorf("%w (input=%d type=%d)", ErrGuardTypeMatch, me, idx)
	}
	return nil
}

// TokenTransfer is the witness of a CAT20 input spend.
type TokenTransfer struct {
	Params     covenant.AssetParams `json:"params"`
	State      covenant.CAT20State  `json:"state"`
	Prev       PrevState            `json:"prev"`
	Backtrace  *backtrace.Info      `json:"backtrace"`
	Owner      Ownership            `json:"owner"`
	Guard      GuardRef             `json:"guard"`
	GuardState *guard.ConstState    `json:"guardState"`
}

func (*TokenTransfer) GetTypeID() uint8 {
	return consts.CAT20ID
}

// TokenUnlock spends a CAT20 output. Amounts are left to the guard.
func TokenUnlock(env *Env, m *TokenTransfer) (*Result, error) {
	c, err := m.Params.CAT20Contract()
	if err != nil {
		return nil, err
	}
	if err := m.State.Validate(); err != nil {
		return nil, err
	}
	ctx, err := assetContext(env, c, m.Backtrace, &m.Params, &m.Prev, m.State.StateHash())
	if err != nil {
		return nil, err
	}
	if err := m.Owner.verify(env, ctx, m.State.OwnerAddr); err != nil {
		return nil, err
	}
	if m.GuardState == nil {
		return nil, fmt.Errorf("%w: missing guard state", guard.ErrInvalidState)
	}
	gs := m.GuardState
	if err := m.Guard.check(ctx, m.Params.GuardScript, gs.StateHash(),
		&gs.TokenScripts, &gs.TokenScriptIndexes, &gs.InputStateHashes, m.State.StateHash()); err != nil {
		return nil, err
	}
	return newResult(consts.CAT20ID, ctx), nil
}

// NftTransfer is the witness of a CAT721 input spend.
type NftTransfer struct {
	Params     covenant.AssetParams `json:"params"`
	State      covenant.CAT721State `json:"state"`
	Prev       PrevState            `json:"prev"`
	Backtrace  *backtrace.Info      `json:"backtrace"`
	Owner      Ownership            `json:"owner"`
	Guard      GuardRef             `json:"guard"`
	GuardState *guard.NftConstState `json:"guardState"`
}

func (*NftTransfer) GetTypeID() uint8 {
	return consts.CAT721ID
}

// NftUnlock spends a CAT721 output.
func NftUnlock(env *Env, m *NftTransfer) (*Result, error) {
	c, err := m.Params.CAT721Contract()
	if err != nil {
		return nil, err
	}
	if err := m.State.Validate(); err != nil {
		return nil, err
	}
	ctx, err := assetContext(env, c, m.Backtrace, &m.Params, &m.Prev, m.State.StateHash())
	if err != nil {
		return nil, err
	}
	if err := m.Owner.verify(env, ctx, m.State.OwnerAddr); err != nil {
		return nil, err
	}
	if m.GuardState == nil {
		return nil, fmt.Errorf("%w: missing guard state", guard.ErrInvalidState)
	}
	gs := m.GuardState
	if err := m.Guard.check(ctx, m.Params.GuardScript, gs.StateHash(),
		&gs.NftScripts, &gs.NftScriptIndexes, &gs.InputStateHashes, m.State.StateHash()); err != nil {
		return nil, err
	}
	res := newResult(consts.CAT721ID, ctx)
	res.LocalID = m.State.LocalID
	return res, nil
}

// assetContext opens the sighash of an asset input, proves its lineage from
// its minter or itself, and proves its state one hop back.
func assetContext(
	env *Env,
	c *covenant.Contract,
	info *backtrace.Info,
	params *covenant.AssetParams,
	prev *PrevState,
	stateHash []byte,
) (*sighash.Context, error) {
	ctx, err := env.open(c)
	if err != nil {
		return nil, err
	}
	if err := backtrace.VerifyToken(info, prevTxHash(ctx, ctx.InputIndex), params.MinterScript, c.Script); err != nil {
		return nil, err
	}
	if err := checkPrevState(ctx, info.PrevTx, prev, stateHash); err != nil {
		return nil, err
	}
	return ctx, nil
}
