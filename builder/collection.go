package builder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/merkle"
)

// LeafTree is an off-chain mirror of an NFT open minter's tree.
type LeafTree interface {
	Len() int
	Leaf(index int) (merkle.Leaf, error)
	Proof(index int) (*merkle.Proof, error)
	Set(index int, leaf merkle.Leaf) error
	Root() []byte
}

var _ LeafTree = (*merkle.Tree)(nil)

// Collection is a deployed CAT721 collection. Exactly one of Open and
// Parallel is set; Tree mirrors an open minter.
type Collection struct {
	Genesis  wire.OutPoint
	Minter   *covenant.Contract
	Nft      *covenant.Contract
	Guard    *covenant.Contract
	Open     *covenant.NftOpenMinterParams
	Parallel *covenant.NftParallelMinterParams
	Tree     LeafTree
}

// NewCollectionTree fills a full-height tree with one unmined leaf per
// commit script, local ids in order.
func NewCollectionTree(commitScripts [][]byte) (*merkle.Tree, error) {
	tree, err := merkle.NewTree(merkle.Height)
	if err != nil {
		return nil, err
	}
	for i, script := range commitScripts {
		if err := tree.Append(merkle.Leaf{CommitScript: script, LocalID: uint64(i)}); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// DeployNftOpen deploys a Merkle-capped collection whose leaves are already
// in tree.
func (l *Ledger) DeployNftOpen(tree LeafTree) (*Collection, wire.OutPoint, error) {
	genesis := l.Fund(FeeScript, fundValue)
	params := covenant.NftOpenMinterParams{
		GenesisOutpoint: encodeOutpoint(genesis),
		Max:             uint64(tree.Len()),
	}
	minter, err := params.Contract()
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	nft, g, err := AssetContracts(minter, true)
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	state := &covenant.NftOpenMinterState{NftScript: nft.Script, MerkleRoot: tree.Root()}
	op, err := l.reveal(genesis, minter.Script, state.StateHash())
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	return &Collection{Genesis: genesis, Minter: minter, Nft: nft, Guard: g, Open: &params, Tree: tree}, op, nil
}

// DeployNftParallel deploys an issuer-controlled collection of max NFTs.
func (l *Ledger) DeployNftParallel(issuerAddr []byte, max uint64) (*Collection, wire.OutPoint, error) {
	genesis := l.Fund(FeeScript, fundValue)
	params := covenant.NftParallelMinterParams{
		GenesisOutpoint: encodeOutpoint(genesis),
		IssuerAddr:      issuerAddr,
		Max:             max,
	}
	minter, err := params.Contract()
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	nft, g, err := AssetContracts(minter, true)
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	state := &covenant.NftParallelMinterState{NftScript: nft.Script}
	op, err := l.reveal(genesis, minter.Script, state.StateHash())
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	return &Collection{Genesis: genesis, Minter: minter, Nft: nft, Guard: g, Parallel: &params}, op, nil
}

// NftOpenMintRequest describes one Merkle mint.
type NftOpenMintRequest struct {
	Minter wire.OutPoint
	State  covenant.NftOpenMinterState
	Owner  []byte
}

// MintNftOpen builds the mint of leaf State.NextLocalID. Input 1 spends a
// fresh output carrying the leaf's commit script. The tree is advanced when
// the ledger accepts the transaction.
func (l *Ledger) MintNftOpen(ctx context.Context, col *Collection, req *NftOpenMintRequest) (*Built, error) {
	if col.Open == nil || col.Tree == nil {
		return nil, ErrKindMismatch
	}
	id := req.State.NextLocalID
	if id >= col.Open.Max {
		return nil, fmt.Errorf("%w (id=%d max=%d)", actions.ErrCollectionMinted, id, col.Open.Max)
	}
	leaf, err := col.Tree.Leaf(int(id))
	if err != nil {
		return nil, err
	}
	proof, err := col.Tree.Proof(int(id))
	if err != nil {
		return nil, err
	}
	mined := leaf
	mined.IsMined = true
	root, err := merkle.UpdateLeaf(merkle.LeafHash(leaf), merkle.LeafHash(mined), proof, req.State.MerkleRoot)
	if err != nil {
		return nil, err
	}

	plan, proofs, err := l.minterPlan(ctx, req.Minter, col.Minter, col.Genesis)
	if err != nil {
		return nil, err
	}
	commit := l.Fund(leaf.CommitScript, fundValue)
	commitPrev, err := l.Output(commit)
	if err != nil {
		return nil, err
	}
	commitInput, err := plan.AddInput(commit, commitPrev)
	if err != nil {
		return nil, err
	}
	if id+1 < col.Open.Max {
		next := &covenant.NftOpenMinterState{NftScript: req.State.NftScript, MerkleRoot: root, NextLocalID: id + 1}
		if _, err := plan.AddStateOutput(col.Minter.Script, next.StateHash()); err != nil {
			return nil, err
		}
	}
	nft := &covenant.CAT721State{OwnerAddr: req.Owner, LocalID: id}
	if _, err := plan.AddStateOutput(req.State.NftScript, nft.StateHash()); err != nil {
		return nil, err
	}
	if err := plan.AddChange(FeeScript, changeValue); err != nil {
		return nil, err
	}
	if err := plan.Finalize(l.NonceLimit); err != nil {
		return nil, err
	}
	b, err := l.built(plan, &actions.NftOpenMint{
		Params:           *col.Open,
		State:            req.State,
		Prev:             proofs.Prev,
		Backtrace:        proofs.Backtrace,
		CommitInputIndex: commitInput,
		Proof:            proof,
		NftOwner:         req.Owner,
	}, 0)
	if err != nil {
		return nil, err
	}
	b.AfterAccept = func() error {
		return col.Tree.Set(int(id), mined)
	}
	return b, nil
}

// ParallelMintRequest describes one parallel mint.
type ParallelMintRequest struct {
	Minter wire.OutPoint
	State  covenant.NftParallelMinterState
	Issuer *btcec.PrivateKey
	Owner  []byte
}

// MintParallel builds the mint of State.NextLocalID. Outputs 1.. are the
// child minters from actions.ChildIDs; the NFT output follows them.
func (l *Ledger) MintParallel(ctx context.Context, col *Collection, req *ParallelMintRequest) (*Built, error) {
	if col.Parallel == nil {
		return nil, ErrKindMismatch
	}
	plan, proofs, err := l.minterPlan(ctx, req.Minter, col.Minter, col.Genesis)
	if err != nil {
		return nil, err
	}
	id := req.State.NextLocalID
	for _, child := range actions.ChildIDs(id, col.Parallel.Max) {
		next := &covenant.NftParallelMinterState{NftScript: req.State.NftScript, NextLocalID: child}
		if _, err := plan.AddStateOutput(col.Minter.Script, next.StateHash()); err != nil {
			return nil, err
		}
	}
	nft := &covenant.CAT721State{OwnerAddr: req.Owner, LocalID: id}
	if _, err := plan.AddStateOutput(req.State.NftScript, nft.StateHash()); err != nil {
		return nil, err
	}
	if err := plan.AddChange(FeeScript, changeValue); err != nil {
		return nil, err
	}
	if err := plan.Finalize(l.NonceLimit); err != nil {
		return nil, err
	}
	w := &actions.ParallelMint{
		Params:       *col.Parallel,
		State:        req.State,
		Prev:         proofs.Prev,
		Backtrace:    proofs.Backtrace,
		IssuerPubKey: XOnly(req.Issuer),
		NftOwner:     req.Owner,
	}
	if w.IssuerSig, err = Sign(req.Issuer, plan.Checker(0)); err != nil {
		return nil, err
	}
	return l.built(plan, w, 0)
}
