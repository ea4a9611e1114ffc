package covenant

import (
	"fmt"
	"math"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

var (
	ErrInvalidState  = fmt.Errorf("%w: invalid contract state", consts.ErrStructuralMismatch)
	ErrAmountZero    = fmt.Errorf("%w: amount is zero", consts.ErrStructuralMismatch)
	ErrTrailingState = fmt.Errorf("%w: trailing bytes after state", consts.ErrStructuralMismatch)
)

// encode runs f over a packer that cannot run out of room.
func encode(size int, f func(p *wrappers.Packer)) []byte {
	p := &wrappers.Packer{
		Bytes:   make([]byte, 0, size),
		MaxSize: math.MaxInt32,
	}
	f(p)
	return p.Bytes
}

func decode(b []byte, f func(p *wrappers.Packer)) error {
	p := &wrappers.Packer{Bytes: b}
	f(p)
	if p.Err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, p.Err)
	}
	if p.Offset != len(b) {
		return ErrTrailingState
	}
	return nil
}

func checkOwner(owner []byte) error {
	if len(owner) != consts.OwnerAddrLen {
		return fmt.Errorf("%w (len=%d)", ErrInvalidOwner, len(owner))
	}
	return nil
}

func checkScript(name string, script []byte) error {
	if len(script) == 0 || len(script) > consts.MaxScriptSize {
		return fmt.Errorf("%w: %s length %d", ErrInvalidState, name, len(script))
	}
	return nil
}

// CAT20State is the state of one fungible token output.
type CAT20State struct {
	OwnerAddr []byte `json:"ownerAddr"`
	Amount    uint64 `json:"amount"`
}

func (s *CAT20State) Validate() error {
	if err := checkOwner(s.OwnerAddr); err != nil {
		return err
	}
	if s.Amount == 0 {
		return ErrAmountZero
	}
	return nil
}

func (s *CAT20State) Bytes() []byte {
	return encode(wrappers.IntLen+len(s.OwnerAddr)+wrappers.LongLen, func(p *wrappers.Packer) {
		p.PackBytes(s.OwnerAddr)
		p.PackLong(s.Amount)
	})
}

func (s *CAT20State) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}

func UnmarshalCAT20State(b []byte) (*CAT20State, error) {
	s := &CAT20State{}
	if err := decode(b, func(p *wrappers.Packer) {
		s.OwnerAddr = p.UnpackBytes()
		s.Amount = p.UnpackLong()
	}); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

// CAT721State is the state of one NFT output.
type CAT721State struct {
	OwnerAddr []byte `json:"ownerAddr"`
	LocalID   uint64 `json:"localId"`
}

func (s *CAT721State) Validate() error {
	return checkOwner(s.OwnerAddr)
}

func (s *CAT721State) Bytes() []byte {
	return encode(wrappers.IntLen+len(s.OwnerAddr)+wrappers.LongLen, func(p *wrappers.Packer) {
		p.PackBytes(s.OwnerAddr)
		p.PackLong(s.LocalID)
	})
}

func (s *CAT721State) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}

func UnmarshalCAT721State(b []byte) (*CAT721State, error) {
	s := &CAT721State{}
	if err := decode(b, func(p *wrappers.Packer) {
		s.OwnerAddr = p.UnpackBytes()
		s.LocalID = p.UnpackLong()
	}); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

// ClosedMinterState is the state of an issuer-controlled CAT20 minter.
type ClosedMinterState struct {
	TokenScript []byte `json:"tokenScript"`
}

func (s *ClosedMinterState) Validate() error {
	return checkScript("tokenScript", s.TokenScript)
}

func (s *ClosedMinterState) Bytes() []byte {
	return encode(wrappers.IntLen+len(s.TokenScript), func(p *wrappers.Packer) {
		p.PackBytes(s.TokenScript)
	})
}

func (s *ClosedMinterState) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}

// OpenMinterState is the state of a permissionless CAT20 minter. Minting
// replaces it with up to two children whose counts split the remainder.
type OpenMinterState struct {
	TokenScript     []byte `json:"tokenScript"`
	HasMintedBefore bool   `json:"hasMintedBefore"`
	RemainingCount  uint64 `json:"remainingCount"`
}

func (s *OpenMinterState) Validate() error {
	return checkScript("tokenScript", s.TokenScript)
}

func (s *OpenMinterState) Bytes() []byte {
	return encode(wrappers.IntLen+len(s.TokenScript)+wrappers.BoolLen+wrappers.LongLen, func(p *wrappers.Packer) {
		p.PackBytes(s.TokenScript)
		p.PackBool(s.HasMintedBefore)
		p.PackLong(s.RemainingCount)
	})
}

func (s *OpenMinterState) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}

func UnmarshalOpenMinterState(b []byte) (*OpenMinterState, error) {
	s := &OpenMinterState{}
	if err := decode(b, func(p *wrappers.Packer) {
		s.TokenScript = p.UnpackBytes()
		s.HasMintedBefore = p.UnpackBool()
		s.RemainingCount = p.UnpackLong()
	}); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

// NftOpenMinterState is the state of a Merkle-capped NFT minter.
type NftOpenMinterState struct {
	NftScript   []byte `json:"nftScript"`
	MerkleRoot  []byte `json:"merkleRoot"`
	NextLocalID uint64 `json:"nextLocalId"`
}

func (s *NftOpenMinterState) Validate() error {
	if err := checkScript("nftScript", s.NftScript); err != nil {
		return err
	}
	if len(s.MerkleRoot) != consts.Hash160Len {
		return fmt.Errorf("%w: merkle root length %d", ErrInvalidState, len(s.MerkleRoot))
	}
	return nil
}

func (s *NftOpenMinterState) Bytes() []byte {
	return encode(2*wrappers.IntLen+len(s.NftScript)+len(s.MerkleRoot)+wrappers.LongLen, func(p *wrappers.Packer) {
		p.PackBytes(s.NftScript)
		p.PackBytes(s.MerkleRoot)
		p.PackLong(s.NextLocalID)
	})
}

func (s *NftOpenMinterState) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}

// NftParallelMinterState is the state of one branch of an issuer-controlled
// NFT minter whose branches form a binary tree of local ids.
type NftParallelMinterState struct {
	NftScript   []byte `json:"nftScript"`
	NextLocalID uint64 `json:"nextLocalId"`
}

func (s *NftParallelMinterState) Validate() error {
	return checkScript("nftScript", s.NftScript)
}

func (s *NftParallelMinterState) Bytes() []byte {
	return encode(wrappers.IntLen+len(s.NftScript)+wrappers.LongLen, func(p *wrappers.Packer) {
		p.PackBytes(s.NftScript)
		p.PackLong(s.NextLocalID)
	})
}

func (s *NftParallelMinterState) StateHash() []byte {
	return commitment.StateHash(s.Bytes())
}
