package actions

import (
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/guard"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

// GuardRelease is the witness of a fungible guard spend. PrevTx created the
// guard output and commits its state.
type GuardRelease struct {
	PrevTx  *txpreimage.Partial `json:"prevTx"`
	Prev    PrevState           `json:"prev"`
	Witness guard.Witness       `json:"witness"`
}

func (*GuardRelease) GetTypeID() uint8 {
	return consts.GuardID
}

// GuardUnlock clears every token input and output of the transaction.
func GuardUnlock(env *Env, m *GuardRelease) (*Result, error) {
	c, err := covenant.GuardContract()
	if err != nil {
		return nil, err
	}
	if m.Witness.State == nil {
		return nil, fmt.Errorf("%w: missing", guard.ErrInvalidState)
	}
	ctx, err := env.open(c)
	if err != nil {
		return nil, err
	}
	if err := checkPrevState(ctx, m.PrevTx, &m.Prev, m.Witness.State.StateHash()); err != nil {
		return nil, err
	}
	totals, err := guard.VerifyFungible(ctx, &m.Witness)
	if err != nil {
		return nil, err
	}
	res := newResult(consts.GuardID, ctx)
	res.Root = totals.Root
	for i := 0; i < totals.Types; i++ {
		res.Burned += totals.Burn[i]
	}
	return res, nil
}

// NftGuardRelease is the witness of an NFT guard spend.
type NftGuardRelease struct {
	PrevTx  *txpreimage.Partial `json:"prevTx"`
	Prev    PrevState           `json:"prev"`
	Witness guard.NftWitness    `json:"witness"`
}

func (*NftGuardRelease) GetTypeID() uint8 {
	return consts.NftGuardID
}

// NftGuardUnlock clears every NFT input and output of the transaction.
func NftGuardUnlock(env *Env, m *NftGuardRelease) (*Result, error) {
	c, err := covenant.NftGuardContract()
	if err != nil {
		return nil, err
	}
	if m.Witness.State == nil {
		return nil, fmt.Errorf("%w: missing", guard.ErrInvalidState)
	}
	ctx, err := env.open(c)
	if err != nil {
		return nil, err
	}
	if err := checkPrevState(ctx, m.PrevTx, &m.Prev, m.Witness.State.StateHash()); err != nil {
		return nil, err
	}
	totals, err := guard.VerifyNft(ctx, &m.Witness)
	if err != nil {
		return nil, err
	}
	res := newResult(consts.NftGuardID, ctx)
	res.Root = totals.Root
	for i := 0; i < totals.Types; i++ {
		res.Burned += uint64(totals.Burned[i])
	}
	return res, nil
}
