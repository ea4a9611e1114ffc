package merkle

import (
	"errors"
	"fmt"
)

var (
	ErrTreeFull     = errors.New("merkle tree is full")
	ErrLeafNotFound = errors.New("merkle leaf not found")
	ErrBadHeight    = errors.New("merkle height out of range")
)

// Tree is an off-chain mirror of a minter's tree. It must hash exactly as
// UpdateLeaf does or the proofs it produces will be rejected.
type Tree struct {
	height int
	leaves []Leaf
	levels [][][]byte
}

// NewTree returns an empty tree holding up to 2^(height-1) leaves.
func NewTree(height int) (*Tree, error) {
	if height < 1 || height > Height {
		return nil, fmt.Errorf("%w: %d", ErrBadHeight, height)
	}
	return &Tree{
		height: height,
		levels: make([][][]byte, height),
	}, nil
}

// Capacity is the maximum number of leaves.
func (t *Tree) Capacity() int {
	return 1 << (t.height - 1)
}

func (t *Tree) Height() int { return t.height }

func (t *Tree) Len() int { return len(t.leaves) }

// Append adds l as the next leaf.
func (t *Tree) Append(l Leaf) error {
	if len(t.leaves) >= t.Capacity() {
		return ErrTreeFull
	}
	t.leaves = append(t.leaves, l)
	t.levels[0] = append(t.levels[0], LeafHash(l))
	t.recompute(len(t.leaves) - 1)
	return nil
}

// Set replaces the leaf at index.
func (t *Tree) Set(index int, l Leaf) error {
	if index < 0 || index >= len(t.leaves) {
		return fmt.Errorf("%w: index %d", ErrLeafNotFound, index)
	}
	t.leaves[index] = l
	t.levels[0][index] = LeafHash(l)
	t.recompute(index)
	return nil
}

// Leaf returns the leaf at index.
func (t *Tree) Leaf(index int) (Leaf, error) {
	if index < 0 || index >= len(t.leaves) {
		return Leaf{}, fmt.Errorf("%w: index %d", ErrLeafNotFound, index)
	}
	return t.leaves[index], nil
}

// Root returns the current root.
func (t *Tree) Root() []byte {
	return t.node(t.height-1, 0)
}

// Proof returns the sibling path of the leaf at index.
func (t *Tree) Proof(index int) (*Proof, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("%w: index %d", ErrLeafNotFound, index)
	}
	p := &Proof{
		Siblings: make([][]byte, 0, t.height-1),
		IsLeft:   make([]bool, 0, t.height-1),
	}
	for d := 0; d < t.height-1; d++ {
		p.Siblings = append(p.Siblings, t.node(d, index^1))
		p.IsLeft = append(p.IsLeft, index%2 == 0)
		index /= 2
	}
	return p, nil
}

func (t *Tree) node(depth, index int) []byte {
	if index < len(t.levels[depth]) {
		return t.levels[depth][index]
	}
	return EmptyHash(depth)
}

func (t *Tree) recompute(index int) {
	for d := 0; d < t.height-1; d++ {
		parent := index / 2
		h := NodeHash(t.node(d, 2*parent), t.node(d, 2*parent+1))
		if parent < len(t.levels[d+1]) {
			t.levels[d+1][parent] = h
		} else {
			t.levels[d+1] = append(t.levels[d+1], h)
		}
		index = parent
	}
}
