// Package storage is the off-chain mirror of minter lineages: per-collection
// Merkle leaves and cursor, and per-token minted totals. Values live behind
// hypersdk's state.Mutable so the same getters work over a database or an
// in-flight view.
package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/ava-labs/hypersdk/state"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/merkle"

	hconsts "github.com/ava-labs/hypersdk/consts"
	smath "github.com/ava-labs/avalanchego/utils/math"
)

const (
	collectionPrefix byte = iota
	leafPrefix
	mintedPrefix
)

const (
	CollectionChunks uint16 = 2
	LeafChunks       uint16 = 1
	MintedChunks     uint16 = 1
)

const maxRecordSize = 4 * 1024

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already registered")
	ErrInvalidCollection  = errors.New("invalid collection record")
	ErrInvalidMinted      = errors.New("invalid minted total")
)

// Store adapts an avalanchego database to state.Mutable under its own
// namespace.
type Store struct {
	db database.Database
}

var _ state.Mutable = (*Store)(nil)

func New(db database.Database, namespace []byte) *Store {
	return &Store{db: prefixdb.New(namespace, db)}
}

func (s *Store) GetValue(_ context.Context, key []byte) ([]byte, error) {
	return s.db.Get(key)
}

func (s *Store) Insert(_ context.Context, key []byte, value []byte) error {
	return s.db.Put(key, value)
}

func (s *Store) Remove(_ context.Context, key []byte) error {
	return s.db.Delete(key)
}

// LineageID names a minter lineage by its genesis outpoint.
func LineageID(genesisOutpoint []byte) ids.ID {
	return ids.ID(hashing.ComputeHash256Array(genesisOutpoint))
}

func lineageKey(prefix byte, id ids.ID, chunks uint16) []byte {
	k := make([]byte, 1+ids.IDLen+hconsts.Uint16Len)
	k[0] = prefix
	copy(k[1:], id[:])
	binary.BigEndian.PutUint16(k[1+ids.IDLen:], chunks)
	return k
}

// ========== Collection ==========

// Collection is the cursor of an NFT open minter: the outpoint of its live
// minter, the next local id and the root that minter commits.
type Collection struct {
	Max         uint64
	NextLocalID uint64
	Root        []byte
	Minter      []byte
}

func (c *Collection) validate() error {
	if c.Max == 0 || c.Max > consts.MerkleMaxLeaves || c.NextLocalID > c.Max {
		return fmt.Errorf("%w (max=%d next=%d)", ErrInvalidCollection, c.Max, c.NextLocalID)
	}
	if len(c.Root) != consts.Hash160Len {
		return fmt.Errorf("%w: root length %d", ErrInvalidCollection, len(c.Root))
	}
	if len(c.Minter) != 0 && len(c.Minter) != consts.OutpointLen {
		return fmt.Errorf("%w: minter outpoint length %d", ErrInvalidCollection, len(c.Minter))
	}
	return nil
}

func CollectionKey(id ids.ID) []byte {
	return lineageKey(collectionPrefix, id, CollectionChunks)
}

func PutCollection(ctx context.Context, mu state.Mutable, id ids.ID, c *Collection) error {
	if err := c.validate(); err != nil {
		return err
	}
	p := &wrappers.Packer{MaxSize: maxRecordSize}
	p.PackLong(c.Max)
	p.PackLong(c.NextLocalID)
	p.PackFixedBytes(c.Root)
	p.PackBytes(c.Minter)
	if p.Err != nil {
		return p.Err
	}
	return mu.Insert(ctx, CollectionKey(id), p.Bytes)
}

func GetCollection(ctx context.Context, im state.Immutable, id ids.ID) (*Collection, error) {
	v, err := im.GetValue(ctx, CollectionKey(id))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return parseCollection(v)
}

func parseCollection(v []byte) (*Collection, error) {
	p := &wrappers.Packer{Bytes: v}
	c := &Collection{
		Max:         p.UnpackLong(),
		NextLocalID: p.UnpackLong(),
		Root:        p.UnpackFixedBytes(consts.Hash160Len),
		Minter:      p.UnpackBytes(),
	}
	if p.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCollection, p.Err)
	}
	if p.Offset != len(v) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidCollection, len(v)-p.Offset)
	}
	return c, c.validate()
}

// ========== Leaf ==========

func LeafKey(id ids.ID, localID uint64) []byte {
	k := make([]byte, 1+ids.IDLen+wrappers.LongLen+hconsts.Uint16Len)
	k[0] = leafPrefix
	copy(k[1:], id[:])
	binary.BigEndian.PutUint64(k[1+ids.IDLen:], localID)
	binary.BigEndian.PutUint16(k[1+ids.IDLen+wrappers.LongLen:], LeafChunks)
	return k
}

func PutLeaf(ctx context.Context, mu state.Mutable, id ids.ID, leaf merkle.Leaf) error {
	p := &wrappers.Packer{MaxSize: maxRecordSize}
	p.PackBool(leaf.IsMined)
	p.PackBytes(leaf.CommitScript)
	if p.Err != nil {
		return p.Err
	}
	return mu.Insert(ctx, LeafKey(id, leaf.LocalID), p.Bytes)
}

func GetLeaf(ctx context.Context, im state.Immutable, id ids.ID, localID uint64) (merkle.Leaf, error) {
	v, err := im.GetValue(ctx, LeafKey(id, localID))
	if err != nil {
		return merkle.Leaf{}, err
	}
	p := &wrappers.Packer{Bytes: v}
	leaf := merkle.Leaf{
		IsMined:      p.UnpackBool(),
		CommitScript: p.UnpackBytes(),
		LocalID:      localID,
	}
	return leaf, p.Err
}

// ========== Minted ==========

func MintedKey(id ids.ID) []byte {
	return lineageKey(mintedPrefix, id, MintedChunks)
}

func GetMinted(ctx context.Context, im state.Immutable, id ids.ID) (uint64, error) {
	v, err := im.GetValue(ctx, MintedKey(id))
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return database.ParseUInt64(v)
}

// AddMinted adds amount to the total minted by a lineage, bounded by supply.
func AddMinted(ctx context.Context, mu state.Mutable, id ids.ID, amount uint64, supply uint64) (uint64, error) {
	minted, err := GetMinted(ctx, mu, id)
	if err != nil {
		return 0, err
	}
	total, err := smath.Add(minted, amount)
	if err != nil || total > supply {
		return 0, fmt.Errorf("%w: %w (minted=%d amount=%d supply=%d)", ErrInvalidMinted, consts.ErrSupplyExceeded, minted, amount, supply)
	}
	return total, mu.Insert(ctx, MintedKey(id), database.PackUInt64(total))
}
