package actions

import (
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

// ClosedMint is the witness of a closed minter spend.
type ClosedMint struct {
	Params    covenant.ClosedMinterParams `json:"params"`
	State     covenant.ClosedMinterState  `json:"state"`
	Prev      PrevState                   `json:"prev"`
	Backtrace *backtrace.Info             `json:"backtrace"`

	IssuerPubKey []byte `json:"issuerPubKey"`
	IssuerSig    []byte `json:"issuerSig"`

	// KeepMinter recreates the minter, with the same state, as output 1.
	KeepMinter  bool   `json:"keepMinter"`
	TokenOwner  []byte `json:"tokenOwner"`
	TokenAmount uint64 `json:"tokenAmount"`
}

func (*ClosedMint) GetTypeID() uint8 {
	return consts.ClosedMinterID
}

// ClosedMinterMint lets the issuer mint any positive amount.
func ClosedMinterMint(env *Env, m *ClosedMint) (*Result, error) {
	c, err := m.Params.Contract()
	if err != nil {
		return nil, err
	}
	if err := m.State.Validate(); err != nil {
		return nil, err
	}
	ctx, err := env.open(c)
	if err != nil {
		return nil, err
	}
	if err := env.checkSig(ctx, m.Params.IssuerAddr, m.IssuerPubKey, m.IssuerSig); err != nil {
		return nil, err
	}
	if err := backtrace.VerifyUnique(m.Backtrace, prevTxHash(ctx, ctx.InputIndex), m.Params.GenesisOutpoint, c.Script); err != nil {
		return nil, err
	}
	stateHash := m.State.StateHash()
	if err := checkPrevState(ctx, m.Backtrace.PrevTx, &m.Prev, stateHash); err != nil {
		return nil, err
	}

	token := &covenant.CAT20State{OwnerAddr: m.TokenOwner, Amount: m.TokenAmount}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("token output: %w", err)
	}
	res := newResult(consts.ClosedMinterID, ctx)
	outs := make([]txpreimage.StateOutput, 0, 3)
	if m.KeepMinter {
		outs = append(outs, env.stateOutput(c.Script, stateHash))
		res.NextStates = append(res.NextStates, stateHash)
	}
	outs = append(outs, env.stateOutput(m.State.TokenScript, token.StateHash()))

	res.Root, err = env.commit(ctx, outs)
	if err != nil {
		return nil, err
	}
	res.Minted = m.TokenAmount
	return res, nil
}
