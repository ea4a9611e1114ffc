package actions

import (
	"errors"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/merkle"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var (
	ErrCollectionMinted = fmt.Errorf("%w: all local ids are minted", consts.ErrSupplyExceeded)
	ErrLeafMined        = fmt.Errorf("%w: leaf is already mined", consts.ErrSupplyExceeded)
)

// NftOpenMint is the witness of a Merkle-capped NFT minter spend.
type NftOpenMint struct {
	Params    covenant.NftOpenMinterParams `json:"params"`
	State     covenant.NftOpenMinterState  `json:"state"`
	Prev      PrevState                    `json:"prev"`
	Backtrace *backtrace.Info              `json:"backtrace"`

	// CommitInputIndex is the input whose trusted spent script is the
	// commit script of the leaf being mined.
	CommitInputIndex int           `json:"commitInputIndex"`
	Proof            *merkle.Proof `json:"proof"`
	NftOwner         []byte        `json:"nftOwner"`
}

func (*NftOpenMint) GetTypeID() uint8 {
	return consts.NftOpenMinterID
}

// NftOpenMinterMint mines leaf NextLocalID of the collection tree and
// creates its NFT.
func NftOpenMinterMint(env *Env, m *NftOpenMint) (*Result, error) {
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

	id := m.State.NextLocalID
	if id >= m.Params.Max {
		return nil, fmt.Errorf("%w (id=%d max=%d)", ErrCollectionMinted, id, m.Params.Max)
	}
	if err := checkInputRef(ctx, m.CommitInputIndex); err != nil {
		return nil, err
	}
	if m.Proof == nil || len(m.Proof.Siblings) != consts.MerkleProofLen {
		return nil, merkle.ErrProofShape
	}
	leaf := merkle.Leaf{
		CommitScript: ctx.SpentScripts[m.CommitInputIndex],
		LocalID:      id,
	}
	mined := leaf
	mined.IsMined = true
	root, err := merkle.UpdateLeaf(merkle.LeafHash(leaf), merkle.LeafHash(mined), m.Proof, m.State.MerkleRoot)
	if err != nil {
		if errors.Is(err, merkle.ErrRootMismatch) &&
			merkle.VerifyMembership(merkle.LeafHash(mined), m.Proof, m.State.MerkleRoot) == nil {
			return nil, fmt.Errorf("%w (id=%d)", ErrLeafMined, id)
		}
		return nil, err
	}

	nft := &covenant.CAT721State{OwnerAddr: m.NftOwner, LocalID: id}
	if err := nft.Validate(); err != nil {
		return nil, fmt.Errorf("nft output: %w", err)
	}
	res := newResult(consts.NftOpenMinterID, ctx)
	outs := make([]txpreimage.StateOutput, 0, 3)
	if id+1 < m.Params.Max {
		next := &covenant.NftOpenMinterState{
			NftScript:   m.State.NftScript,
			MerkleRoot:  root,
			NextLocalID: id + 1,
		}
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
