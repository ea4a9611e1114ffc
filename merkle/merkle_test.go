package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

func commitScript(i int) []byte {
	return []byte{0x51, 0x20, byte(i), byte(i >> 8)}
}

func TestEmptyHashTable(t *testing.T) {
	e := commitment.Hash160(nil)
	require.Equal(t, e, EmptyHash(0))
	for d := 1; d < Height; d++ {
		e = NodeHash(e, e)
		require.Equal(t, e, EmptyHash(d), "depth %d", d)
	}
}

func TestEmptyTreeRoot(t *testing.T) {
	tree, err := NewTree(Height)
	require.NoError(t, err)
	require.Equal(t, EmptyHash(Height-1), tree.Root())
	require.Equal(t, consts.MerkleMaxLeaves, tree.Capacity())
}

// fullRoot hashes a complete tree level by level without empty padding.
func fullRoot(hashes [][]byte) [][]byte {
	for len(hashes) > 1 {
		next := make([][]byte, 0, len(hashes)/2)
		for i := 0; i < len(hashes); i += 2 {
			next = append(next, NodeHash(hashes[i], hashes[i+1]))
		}
		hashes = next
	}
	return hashes
}

func TestSequentialMintReachesAllMinedRoot(t *testing.T) {
	const k = 4
	tree, err := NewTree(k + 1)
	require.NoError(t, err)
	for i := 0; i < 1<<k; i++ {
		require.NoError(t, tree.Append(Leaf{CommitScript: commitScript(i), LocalID: uint64(i)}))
	}
	require.ErrorIs(t, tree.Append(Leaf{}), ErrTreeFull)

	root := tree.Root()
	var firstProof *Proof
	for i := 0; i < 1<<k; i++ {
		old, err := tree.Leaf(i)
		require.NoError(t, err)
		mined := old
		mined.IsMined = true

		proof, err := tree.Proof(i)
		require.NoError(t, err)
		require.Len(t, proof.Siblings, k)
		if i == 0 {
			firstProof = proof
		}

		newRoot, err := UpdateLeaf(LeafHash(old), LeafHash(mined), proof, root)
		require.NoError(t, err, "leaf %d", i)
		require.NoError(t, tree.Set(i, mined))
		require.Equal(t, tree.Root(), newRoot)
		root = newRoot
	}

	minedHashes := make([][]byte, 0, 1<<k)
	for i := 0; i < 1<<k; i++ {
		minedHashes = append(minedHashes, LeafHash(Leaf{CommitScript: commitScript(i), LocalID: uint64(i), IsMined: true}))
	}
	require.Equal(t, fullRoot(minedHashes)[0], root)

	// Replaying the first mint against the final root must fail.
	unmined := Leaf{CommitScript: commitScript(0), LocalID: 0}
	mined := unmined
	mined.IsMined = true
	_, err = UpdateLeaf(LeafHash(unmined), LeafHash(mined), firstProof, root)
	require.ErrorIs(t, err, ErrRootMismatch)
	require.ErrorIs(t, err, consts.ErrStructuralMismatch)
}

func TestPartialTreeUsesEmptySiblings(t *testing.T) {
	tree, err := NewTree(Height)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, tree.Append(Leaf{CommitScript: commitScript(i), LocalID: uint64(i)}))
	}
	proof, err := tree.Proof(2)
	require.NoError(t, err)
	require.Len(t, proof.Siblings, consts.MerkleProofLen)
	require.Equal(t, EmptyHash(0), proof.Siblings[0])
	for d := 2; d < consts.MerkleProofLen; d++ {
		require.Equal(t, EmptyHash(d), proof.Siblings[d], "depth %d", d)
	}

	leaf, err := tree.Leaf(2)
	require.NoError(t, err)
	require.NoError(t, VerifyMembership(LeafHash(leaf), proof, tree.Root()))
}

func TestLeafHashBindsFields(t *testing.T) {
	base := Leaf{CommitScript: commitScript(1), LocalID: 1}
	h := LeafHash(base)
	require.Len(t, h, consts.Hash160Len)

	mined := base
	mined.IsMined = true
	require.NotEqual(t, h, LeafHash(mined))

	other := base
	other.LocalID = 2
	require.NotEqual(t, h, LeafHash(other))

	script := base
	script.CommitScript = commitScript(2)
	require.NotEqual(t, h, LeafHash(script))
}

func TestUpdateLeafRejectsMalformedProof(t *testing.T) {
	p := &Proof{Siblings: [][]byte{make([]byte, 20)}, IsLeft: nil}
	_, err := UpdateLeaf(nil, nil, p, nil)
	require.ErrorIs(t, err, ErrProofShape)

	p = &Proof{Siblings: [][]byte{make([]byte, 19)}, IsLeft: []bool{true}}
	_, err = UpdateLeaf(nil, nil, p, nil)
	require.ErrorIs(t, err, ErrProofShape)
}
