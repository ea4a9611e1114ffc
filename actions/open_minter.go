package actions

import (
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"

	smath "github.com/ava-labs/avalanchego/utils/math"
)

var ErrMinterExhausted = fmt.Errorf("%w: open minter has no remaining count", consts.ErrSupplyExceeded)

// OpenMint is the witness of an open minter spend.
type OpenMint struct {
	Params    covenant.OpenMinterParams `json:"params"`
	State     covenant.OpenMinterState  `json:"state"`
	Prev      PrevState                 `json:"prev"`
	Backtrace *backtrace.Info           `json:"backtrace"`

	// NextRemainingCounts are the counts of the next minters, in output
	// order. Each must be positive.
	NextRemainingCounts []uint64 `json:"nextRemainingCounts"`
	TokenOwner          []byte   `json:"tokenOwner"`
	TokenAmount         uint64   `json:"tokenAmount"`

	// PreminerPubKey and PreminerSig authorize the premine mint.
	PreminerPubKey []byte `json:"preminerPubKey,omitempty"`
	PreminerSig    []byte `json:"preminerSig,omitempty"`
}

func (*OpenMint) GetTypeID() uint8 {
	return consts.OpenMinterID
}

// IsPremine reports whether this spend is the one premine mint.
func (m *OpenMint) IsPremine() bool {
	return !m.State.HasMintedBefore && m.Params.Premine() > 0
}

// OpenMinterMint lets anyone mint Limit tokens while the remaining count
// lasts, splitting the remainder among up to two next minters.
func OpenMinterMint(env *Env, m *OpenMint) (*Result, error) {
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
	if err := backtrace.VerifyUnique(m.Backtrace, prevTxHash(ctx, ctx.InputIndex), m.Params.GenesisOutpoint, c.Script); err != nil {
		return nil, err
	}
	if err := checkPrevState(ctx, m.Backtrace.PrevTx, &m.Prev, m.State.StateHash()); err != nil {
		return nil, err
	}

	if len(m.NextRemainingCounts) > consts.NextMinterCountMax {
		return nil, fmt.Errorf("%w (n=%d)", ErrTooManyMinters, len(m.NextRemainingCounts))
	}
	var sum uint64
	for i, n := range m.NextRemainingCounts {
		if n == 0 {
			return nil, fmt.Errorf("%w: next minter %d has zero count", ErrNextCounts, i)
		}
		if sum, err = smath.Add(sum, n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNextCounts, err)
		}
	}

	var want, amount uint64
	if m.IsPremine() {
		want, amount = m.State.RemainingCount, m.Params.Premine()
		if err := env.checkSig(ctx, m.Params.PremineAddr, m.PreminerPubKey, m.PreminerSig); err != nil {
			return nil, err
		}
	} else {
		if m.State.RemainingCount == 0 {
			return nil, ErrMinterExhausted
		}
		want, amount = m.State.RemainingCount-1, m.Params.Limit
	}
	if sum != want {
		return nil, fmt.Errorf("%w (sum=%d want=%d)", ErrNextCounts, sum, want)
	}
	if m.TokenAmount != amount {
		return nil, fmt.Errorf("%w (got=%d want=%d)", ErrMintAmount, m.TokenAmount, amount)
	}
	token := &covenant.CAT20State{OwnerAddr: m.TokenOwner, Amount: m.TokenAmount}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("token output: %w", err)
	}

	res := newResult(consts.OpenMinterID, ctx)
	outs := make([]txpreimage.StateOutput, 0, consts.NextMinterCountMax+2)
	for _, n := range m.NextRemainingCounts {
		next := &covenant.OpenMinterState{
			TokenScript:     m.State.TokenScript,
			HasMintedBefore: true,
			RemainingCount:  n,
		}
		h := next.StateHash()
		outs = append(outs, env.stateOutput(c.Script, h))
		res.NextStates = append(res.NextStates, h)
	}
	outs = append(outs, env.stateOutput(m.State.TokenScript, token.StateHash()))

	res.Root, err = env.commit(ctx, outs)
	if err != nil {
		return nil, err
	}
	res.Minted = amount
	return res, nil
}
