package actions

import (
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var ErrBranchExhausted = fmt.Errorf("%w: parallel minter id beyond max", consts.ErrSupplyExceeded)

// ParallelMint is the witness of a parallel NFT minter spend.
type ParallelMint struct {
	Params    covenant.NftParallelMinterParams `json:"params"`
	State     covenant.NftParallelMinterState  `json:"state"`
	Prev      PrevState                        `json:"prev"`
	Backtrace *backtrace.Info                  `json:"backtrace"`

	IssuerPubKey []byte `json:"issuerPubKey"`
	IssuerSig    []byte `json:"issuerSig"`
	NftOwner     []byte `json:"nftOwner"`
}

func (*ParallelMint) GetTypeID() uint8 {
	return consts.NftParallelID
}

// ChildIDs returns the local ids of the minters that follow a mint of id,
// dropping those at or beyond limit.
func ChildIDs(id uint64, limit uint64) []uint64 {
	children := make([]uint64, 0, consts.NextMinterCountMax)
	for _, child := range []uint64{2*id + 1, 2*id + 2} {
		if child < limit {
			children = append(children, child)
		}
	}
	return children
}

// ParallelMinterMint mints local id NextLocalID and forks the minter into
// the branches 2*id+1 and 2*id+2.
func ParallelMinterMint(env *Env, m *ParallelMint) (*Result, error) {
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
	if err := checkPrevState(ctx, m.Backtrace.PrevTx, &m.Prev, m.State.StateHash()); err != nil {
		return nil, err
	}

	id := m.State.NextLocalID
	if id >= m.Params.Max {
		return nil, fmt.Errorf("%w (id=%d max=%d)", ErrBranchExhausted, id, m.Params.Max)
	}
	nft := &covenant.CAT721State{OwnerAddr: m.NftOwner, LocalID: id}
	if err := nft.Validate(); err != nil {
		return nil, fmt.Errorf("nft output: %w", err)
	}

	res := newResult(consts.NftParallelID, ctx)
	outs := make([]txpreimage.StateOutput, 0, consts.NextMinterCountMax+2)
	for _, child := range ChildIDs(id, m.Params.Max) {
		next := &covenant.NftParallelMinterState{NftScript: m.State.NftScript, NextLocalID: child}
		h := next.StateHash()
		outs = append(outs, env.stateOutput(c.Script, h))
		res.NextStates = append(res.NextStates, h)
	}
	outs = append(outs, env.stateOutput(m.State.NftScript, nft.StateHash()))

	res.Root, err = env.commit(ctx, outs)
	if err != nil {
		return nil, err
	}
	res.Minted = 1
	res.LocalID = id
	return res, nil
}
