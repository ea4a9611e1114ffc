// Package merkle implements the fixed-height binary tree that caps the
// supply of an NFT open minter. Leaves are minted strictly in order by
// flipping their mined flag, and each mint carries a single combined
// membership and transition proof.
package merkle

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

// Height is the number of levels including leaves and root.
const Height = consts.MerkleHeight

var (
	ErrRootMismatch = fmt.Errorf("%w: old leaf does not reproduce merkle root", consts.ErrStructuralMismatch)
	ErrProofShape   = fmt.Errorf("%w: malformed merkle proof", consts.ErrStructuralMismatch)
)

// emptyHashHex[d] is the root of an all-empty subtree of depth d, seeded by
// hash160('').
var emptyHashHex = [Height]string{
	"b472a266d0bd89c13706a4132ccfb16f7c3b9fcb",
	"dedc67ea808575d6b39666eb62dc949386e3176a",
	"bcd72713b594ea45d44512ca7912c625f7e69092",
	"3b88fe62080887e17b85b063070e4270f9a34488",
	"307710327c32401e029380901713b4375b22a0f4",
	"540a3e8619aade37529ad42c4bd95ed78ac427f1",
	"27df09234c753db1102d90afdffa9dbecc9e7a6b",
	"27406740c4ad95f439152037feac1801121d8f87",
	"a609359d772730c90dc19da80bd4dca08ede932a",
	"6897fa6a9f2fe754e5f704f5c379fc55bdb595ae",
	"5b1cd740da73cd8adf85a7a3f095e6f6cc17f903",
	"46bcc5e6828e97e61c6c2320ad230c595e87a76b",
	"a31107de48cc5d3f2cd82a72cbee13e59676ce86",
	"c57948e4e43b44b2508639f3490828e0aead1cba",
	"5e41fe916fec6508776ace4cae88cecd790dc0da",
}

// EmptyHash returns emptyHash[depth].
func EmptyHash(depth int) []byte {
	b, _ := hex.DecodeString(emptyHashHex[depth])
	return b
}

// Leaf is one mintable unit.
type Leaf struct {
	CommitScript []byte `json:"commitScript"`
	LocalID      uint64 `json:"localId"`
	IsMined      bool   `json:"isMined"`
}

// LeafHash is hash160(hash160(commitScript) | hash160(localId) | hash160(mined)).
func LeafHash(l Leaf) []byte {
	id := wrappers.Packer{Bytes: make([]byte, 0, wrappers.LongLen), MaxSize: wrappers.LongLen}
	id.PackLong(l.LocalID)
	mined := wrappers.Packer{Bytes: make([]byte, 0, wrappers.BoolLen), MaxSize: wrappers.BoolLen}
	mined.PackBool(l.IsMined)

	preimage := make([]byte, 0, 3*consts.Hash160Len)
	preimage = append(preimage, commitment.Hash160(l.CommitScript)...)
	preimage = append(preimage, commitment.Hash160(id.Bytes)...)
	preimage = append(preimage, commitment.Hash160(mined.Bytes)...)
	return commitment.Hash160(preimage)
}

// NodeHash is hash160(left | right).
func NodeHash(left, right []byte) []byte {
	b := make([]byte, 0, len(left)+len(right))
	b = append(b, left...)
	b = append(b, right...)
	return commitment.Hash160(b)
}

// Proof is the sibling path of one leaf. IsLeft[i] reports whether the
// running node is the left child at level i.
type Proof struct {
	Siblings [][]byte `json:"siblings"`
	IsLeft   []bool   `json:"isLeft"`
}

func (p *Proof) check() error {
	if len(p.Siblings) != len(p.IsLeft) {
		return fmt.Errorf("%w: siblings=%d sides=%d", ErrProofShape, len(p.Siblings), len(p.IsLeft))
	}
	for i, s := range p.Siblings {
		if len(s) != consts.Hash160Len {
			return fmt.Errorf("%w: sibling %d has %d bytes", ErrProofShape, i, len(s))
		}
	}
	return nil
}

func (p *Proof) walk(leafHash []byte) []byte {
	node := leafHash
	for i, sibling := range p.Siblings {
		if p.IsLeft[i] {
			node = NodeHash(node, sibling)
		} else {
			node = NodeHash(sibling, node)
		}
	}
	return node
}

// UpdateLeaf walks the same path twice: oldLeafHash must reproduce root,
// and the walk from newLeafHash is returned as the new root.
func UpdateLeaf(oldLeafHash, newLeafHash []byte, proof *Proof, root []byte) ([]byte, error) {
	if err := proof.check(); err != nil {
		return nil, err
	}
	if !bytes.Equal(proof.walk(oldLeafHash), root) {
		return nil, ErrRootMismatch
	}
	return proof.walk(newLeafHash), nil
}

// VerifyMembership checks that leafHash is in the tree with root.
func VerifyMembership(leafHash []byte, proof *Proof, root []byte) error {
	_, err := UpdateLeaf(leafHash, leafHash, proof, root)
	return err
}
