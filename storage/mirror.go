package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/hypersdk/state"

	"github.com/CATProtocol/cat-token-box-sub000/merkle"
)

// Mirror is an in-memory tree rebuilt from stored leaves that writes every
// leaf change back through.
type Mirror struct {
	ctx  context.Context
	mu   state.Mutable
	id   ids.ID
	tree *merkle.Tree
}

// Register stores the leaves of a new collection and its initial cursor.
func Register(ctx context.Context, mu state.Mutable, id ids.ID, commitScripts [][]byte) (*Mirror, error) {
	if _, err := GetCollection(ctx, mu, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionExists, id)
	}
	tree, err := merkle.NewTree(merkle.Height)
	if err != nil {
		return nil, err
	}
	for i, script := range commitScripts {
		leaf := merkle.Leaf{CommitScript: script, LocalID: uint64(i)}
		if err := tree.Append(leaf); err != nil {
			return nil, err
		}
		if err := PutLeaf(ctx, mu, id, leaf); err != nil {
			return nil, err
		}
	}
	c := &Collection{Max: uint64(len(commitScripts)), Root: tree.Root()}
	if err := PutCollection(ctx, mu, id, c); err != nil {
		return nil, err
	}
	return &Mirror{ctx: ctx, mu: mu, id: id, tree: tree}, nil
}

// Open rebuilds the mirror of a registered collection and checks it still
// reproduces the stored root.
func Open(ctx context.Context, mu state.Mutable, id ids.ID) (*Mirror, error) {
	c, err := GetCollection(ctx, mu, id)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.NewTree(merkle.Height)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < c.Max; i++ {
		leaf, err := GetLeaf(ctx, mu, id, i)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		if err := tree.Append(leaf); err != nil {
			return nil, err
		}
	}
	if !bytes.Equal(tree.Root(), c.Root) {
		return nil, fmt.Errorf("%w: stored leaves do not reproduce root %x", ErrInvalidCollection, c.Root)
	}
	return &Mirror{ctx: ctx, mu: mu, id: id, tree: tree}, nil
}

func (m *Mirror) ID() ids.ID { return m.id }

func (m *Mirror) Len() int { return m.tree.Len() }

func (m *Mirror) Leaf(index int) (merkle.Leaf, error) { return m.tree.Leaf(index) }

func (m *Mirror) Proof(index int) (*merkle.Proof, error) { return m.tree.Proof(index) }

func (m *Mirror) Root() []byte { return m.tree.Root() }

// Set replaces a leaf, persists it and moves the cursor past it. On a
// failed write the tree and the stored leaf keep their previous value.
func (m *Mirror) Set(index int, leaf merkle.Leaf) error {
	old, err := m.tree.Leaf(index)
	if err != nil {
		return err
	}
	c, err := GetCollection(m.ctx, m.mu, m.id)
	if err != nil {
		return err
	}
	if err := m.tree.Set(index, leaf); err != nil {
		return err
	}
	c.Root = m.tree.Root()
	if leaf.IsMined && leaf.LocalID >= c.NextLocalID {
		c.NextLocalID = leaf.LocalID + 1
	}
	if err := m.persist(c, leaf, old); err != nil {
		_ = m.tree.Set(index, old)
		return err
	}
	return nil
}

func (m *Mirror) persist(c *Collection, leaf, old merkle.Leaf) error {
	if err := PutLeaf(m.ctx, m.mu, m.id, leaf); err != nil {
		return err
	}
	if err := PutCollection(m.ctx, m.mu, m.id, c); err != nil {
		_ = PutLeaf(m.ctx, m.mu, m.id, old)
		return err
	}
	return nil
}

// Advance records the outpoint of the collection's live minter.
func (m *Mirror) Advance(minter []byte) error {
	c, err := GetCollection(m.ctx, m.mu, m.id)
	if err != nil {
		return err
	}
	c.Minter = minter
	return PutCollection(m.ctx, m.mu, m.id, c)
}

// Cursor returns the stored collection record.
func (m *Mirror) Cursor() (*Collection, error) {
	return GetCollection(m.ctx, m.mu, m.id)
}
