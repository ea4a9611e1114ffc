package storage

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/CATProtocol/cat-token-box-sub000/builder"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/merkle"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

func commitScripts(n int) [][]byte {
	scripts := make([][]byte, n)
	for i := range scripts {
		scripts[i] = append([]byte{0x51, 0x20}, bytes.Repeat([]byte{byte(0x40 + i)}, 32)...)
	}
	return scripts
}

func TestKeysAreDisjoint(t *testing.T) {
	require := require.New(t)
	id := ids.GenerateTestID()
	c := CollectionKey(id)
	m := MintedKey(id)
	l := LeafKey(id, 0)
	require.NotEqual(c, m)
	require.NotEqual(c[0], l[0])
	require.Len(c, 1+ids.IDLen+2)
	require.Len(l, 1+ids.IDLen+8+2)
}

func TestRegisterAndReopen(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := memdb.New()
	s := New(db, []byte("cat"))
	id := ids.GenerateTestID()
	scripts := commitScripts(5)

	m, err := Register(ctx, s, id, scripts)
	require.NoError(err)
	want, err := builder.NewCollectionTree(scripts)
	require.NoError(err)
	require.Equal(want.Root(), m.Root())

	_, err = Register(ctx, s, id, scripts)
	require.ErrorIs(err, ErrCollectionExists)

	leaf, err := m.Leaf(2)
	require.NoError(err)
	leaf.IsMined = true
	require.NoError(m.Set(2, leaf))

	reopened, err := Open(ctx, New(db, []byte("cat")), id)
	require.NoError(err)
	require.Equal(m.Root(), reopened.Root())
	got, err := reopened.Leaf(2)
	require.NoError(err)
	require.True(got.IsMined)
	c, err := reopened.Cursor()
	require.NoError(err)
	require.Equal(uint64(3), c.NextLocalID)

	// Another namespace over the same database sees nothing.
	_, err = Open(ctx, New(db, []byte("other")), id)
	require.ErrorIs(err, ErrCollectionNotFound)
}

func TestOpenDetectsTamperedLeaf(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New(memdb.New(), nil)
	id := ids.GenerateTestID()
	_, err := Register(ctx, s, id, commitScripts(3))
	require.NoError(err)

	require.NoError(PutLeaf(ctx, s, id, merkle.Leaf{CommitScript: []byte{0x6a}, LocalID: 1}))
	_, err = Open(ctx, s, id)
	require.ErrorIs(err, ErrInvalidCollection)

	require.NoError(s.Remove(ctx, LeafKey(id, 1)))
	_, err = Open(ctx, s, id)
	require.ErrorIs(err, database.ErrNotFound)
}

func TestMintedTotal(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := New(memdb.New(), nil)
	id := ids.GenerateTestID()

	total, err := AddMinted(ctx, s, id, 60, 100)
	require.NoError(err)
	require.Equal(uint64(60), total)
	total, err = AddMinted(ctx, s, id, 40, 100)
	require.NoError(err)
	require.Equal(uint64(100), total)

	_, err = AddMinted(ctx, s, id, 1, 100)
	require.ErrorIs(err, consts.ErrSupplyExceeded)
	got, err := GetMinted(ctx, s, id)
	require.NoError(err)
	require.Equal(uint64(100), got)
}

func TestMirrorDrivesMints(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	db := memdb.New()
	s := New(db, []byte("cat"))
	l := builder.NewLedger()
	key, err := btcec.NewPrivateKey()
	require.NoError(err)
	owner := covenant.OwnerAddrFromPubKey(builder.XOnly(key))
	scripts := commitScripts(3)

	staging, err := builder.NewCollectionTree(scripts)
	require.NoError(err)
	col, op, err := l.DeployNftOpen(staging)
	require.NoError(err)

	id := LineageID(txpreimage.EncodeOutpoint(col.Genesis.Hash, col.Genesis.Index))
	m, err := Register(ctx, s, id, scripts)
	require.NoError(err)
	require.NoError(m.Advance(txpreimage.EncodeOutpoint(op.Hash, op.Index)))
	col.Tree = m

	seq := NewSequencer(nil)
	for i := 0; i < len(scripts); i++ {
		err := seq.Run(ctx, id, func(ctx context.Context) error {
			c, err := m.Cursor()
			if err != nil {
				return err
			}
			hash, index, err := txpreimage.SplitOutpoint(c.Minter)
			if err != nil {
				return err
			}
			minter := builder.NftOpenMintRequest{
				State: covenant.NftOpenMinterState{NftScript: col.Nft.Script, MerkleRoot: c.Root, NextLocalID: c.NextLocalID},
				Owner: owner,
			}
			minter.Minter.Hash, minter.Minter.Index = hash, index
			b, err := l.MintNftOpen(ctx, col, &minter)
			if err != nil {
				return err
			}
			if _, err := l.Accept(b); err != nil {
				return err
			}
			if c.NextLocalID+1 == c.Max {
				return m.Advance(nil)
			}
			next := b.Outpoint(1)
			return m.Advance(txpreimage.EncodeOutpoint(next.Hash, next.Index))
		})
		require.NoError(err)
	}

	reopened, err := Open(ctx, New(db, []byte("cat")), id)
	require.NoError(err)
	c, err := reopened.Cursor()
	require.NoError(err)
	require.Equal(uint64(3), c.NextLocalID)
	require.Empty(c.Minter)
	for i := 0; i < len(scripts); i++ {
		leaf, err := reopened.Leaf(i)
		require.NoError(err)
		require.True(leaf.IsMined)
	}
}

func TestSequencerSerializesPerLineage(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	seq := NewSequencer(nil)
	id := ids.GenerateTestID()

	var (
		wg      sync.WaitGroup
		running int
		counter int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = seq.Run(ctx, id, func(context.Context) error {
				running++
				if running != 1 {
					return errors.New("overlapping run")
				}
				counter++
				running--
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(32, counter)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	called := false
	err := seq.Run(cancelled, id, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(err, context.Canceled)
	require.False(called)
}

var errWrite = errors.New("write failed")

// failingStore fails every insert of failKey.
type failingStore struct {
	*Store
	failKey []byte
}

func (f *failingStore) Insert(ctx context.Context, key []byte, value []byte) error {
	if bytes.Equal(key, f.failKey) {
		return errWrite
	}
	return f.Store.Insert(ctx, key, value)
}

func TestMirrorSetKeepsStoreOnFailedWrite(t *testing.T) {
	for _, tc := range []struct {
		name    string
		failKey func(ids.ID) []byte
	}{
		{"leaf", func(id ids.ID) []byte { return LeafKey(id, 1) }},
		{"collection", CollectionKey},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()
			id := ids.GenerateTestID()
			s := &failingStore{Store: New(memdb.New(), []byte("cat"))}
			scripts := commitScripts(3)
			m, err := Register(ctx, s, id, scripts)
			require.NoError(err)
			root := m.Root()

			s.failKey = tc.failKey(id)
			err = m.Set(1, merkle.Leaf{CommitScript: scripts[1], LocalID: 1, IsMined: true})
			require.ErrorIs(err, errWrite)

			require.Equal(root, m.Root())
			leaf, err := m.Leaf(1)
			require.NoError(err)
			require.False(leaf.IsMined)
			stored, err := GetLeaf(ctx, s, id, 1)
			require.NoError(err)
			require.False(stored.IsMined)
			c, err := m.Cursor()
			require.NoError(err)
			require.Equal(root, c.Root)
			require.Zero(c.NextLocalID)

			s.failKey = nil
			require.NoError(m.Set(1, merkle.Leaf{CommitScript: scripts[1], LocalID: 1, IsMined: true}))
			c, err = m.Cursor()
			require.NoError(err)
			require.Equal(m.Root(), c.Root)
			require.Equal(uint64(2), c.NextLocalID)
		})
	}
}
