package builder

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
)

type party struct {
	key  *btcec.PrivateKey
	addr []byte
}

func newParty(t *testing.T) party {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return party{key: key, addr: covenant.OwnerAddrFromPubKey(XOnly(key))}
}

// split divides n between at most two next minters.
func split(n uint64) []uint64 {
	switch n {
	case 0:
		return nil
	case 1:
		return []uint64{1}
	default:
		return []uint64{n - n/2, n / 2}
	}
}

type openMinter struct {
	op    wire.OutPoint
	state covenant.OpenMinterState
}

func TestOpenMinterDrainsEveryBranch(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	alice := newParty(t)

	tok, op, err := l.DeployOpenToken(covenant.OpenMinterParams{MaxCount: 4, Limit: 100})
	require.NoError(err)
	require.False(tok.Open.Premine() > 0)

	queue := []openMinter{{op: op, state: *tok.Open.InitialState(tok.Token.Script)}}
	var (
		total uint64
		mints int
	)
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		next := split(m.state.RemainingCount - 1)
		b, err := l.MintOpen(ctx, tok, &OpenMintRequest{
			Minter:     m.op,
			State:      m.state,
			NextCounts: next,
			Owner:      alice.addr,
		})
		require.NoError(err)
		results, err := l.Accept(b)
		require.NoError(err)
		require.Len(results, 1)
		require.Len(results[0].NextStates, len(next))
		if mints == 0 {
			require.Equal([]uint64{2, 1}, next)
		}
		total += results[0].Minted
		mints++
		for i, n := range next {
			queue = append(queue, openMinter{
				op:    b.Outpoint(uint32(i + 1)),
				state: covenant.OpenMinterState{TokenScript: tok.Token.Script, HasMintedBefore: true, RemainingCount: n},
			})
		}
	}
	require.Equal(4, mints)
	require.Equal(uint64(400), total)
}

func TestOpenMinterRejects(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	alice := newParty(t)

	tok, op, err := l.DeployOpenToken(covenant.OpenMinterParams{MaxCount: 4, Limit: 100})
	require.NoError(err)
	state := *tok.Open.InitialState(tok.Token.Script)

	// Counts must split the remainder exactly.
	b, err := l.MintOpen(ctx, tok, &OpenMintRequest{Minter: op, State: state, NextCounts: []uint64{2, 2}, Owner: alice.addr})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, actions.ErrNextCounts)

	// A state the previous root does not commit.
	forged := state
	forged.RemainingCount = 10
	b, err = l.MintOpen(ctx, tok, &OpenMintRequest{Minter: op, State: forged, NextCounts: split(9), Owner: alice.addr})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, actions.ErrPrevState)

	b, err = l.MintOpen(ctx, tok, &OpenMintRequest{Minter: op, State: state, NextCounts: split(3), Owner: alice.addr})
	require.NoError(err)
	_, err = l.Accept(b)
	require.NoError(err)

	// The spent minter cannot mint again.
	b, err = l.MintOpen(ctx, tok, &OpenMintRequest{Minter: op, State: state, NextCounts: split(3), Owner: alice.addr})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, ErrDoubleSpend)
}

func TestOpenMinterPremine(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	preminer := newParty(t)
	mallory := newParty(t)

	tok, op, err := l.DeployOpenToken(covenant.OpenMinterParams{
		MaxCount:     5,
		PremineCount: 2,
		Limit:        10,
		PremineAddr:  preminer.addr,
	})
	require.NoError(err)
	state := *tok.Open.InitialState(tok.Token.Script)
	require.Equal(uint64(3), state.RemainingCount)

	for _, key := range []*btcec.PrivateKey{nil, mallory.key} {
		b, err := l.MintOpen(ctx, tok, &OpenMintRequest{
			Minter:     op,
			State:      state,
			NextCounts: split(3),
			Owner:      mallory.addr,
			Preminer:   key,
		})
		require.NoError(err)
		_, err = l.Accept(b)
		require.ErrorIs(err, consts.ErrSignatureInvalid)
	}

	b, err := l.MintOpen(ctx, tok, &OpenMintRequest{
		Minter:     op,
		State:      state,
		NextCounts: split(3),
		Owner:      preminer.addr,
		Preminer:   preminer.key,
	})
	require.NoError(err)
	results, err := l.Accept(b)
	require.NoError(err)
	require.Equal(uint64(20), results[0].Minted)
}

func TestClosedMinter(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	issuer := newParty(t)
	mallory := newParty(t)

	tok, op, err := l.DeployClosedToken(covenant.ClosedMinterParams{IssuerAddr: issuer.addr})
	require.NoError(err)

	b, err := l.MintClosed(ctx, tok, &ClosedMintRequest{Minter: op, Issuer: mallory.key, KeepMinter: true, Owner: mallory.addr, Amount: 1})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, consts.ErrSignatureInvalid)

	b, err = l.MintClosed(ctx, tok, &ClosedMintRequest{Minter: op, Issuer: issuer.key, KeepMinter: true, Owner: issuer.addr, Amount: 1000})
	require.NoError(err)
	results, err := l.Accept(b)
	require.NoError(err)
	require.Equal(uint64(1000), results[0].Minted)

	b, err = l.MintClosed(ctx, tok, &ClosedMintRequest{Minter: b.Outpoint(1), Issuer: issuer.key, Owner: issuer.addr, Amount: 5})
	require.NoError(err)
	results, err = l.Accept(b)
	require.NoError(err)
	require.Equal(uint64(5), results[0].Minted)
	require.Empty(results[0].NextStates)
}

func TestTokenTransfer(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	issuer := newParty(t)
	alice := newParty(t)
	bob := newParty(t)
	carol := newParty(t)

	tok, op, err := l.DeployClosedToken(covenant.ClosedMinterParams{IssuerAddr: issuer.addr})
	require.NoError(err)
	b, err := l.MintClosed(ctx, tok, &ClosedMintRequest{Minter: op, Issuer: issuer.key, Owner: alice.addr, Amount: 100})
	require.NoError(err)
	_, err = l.Accept(b)
	require.NoError(err)
	minted := TokenHolding{Outpoint: b.Outpoint(1), State: covenant.CAT20State{OwnerAddr: alice.addr, Amount: 100}, Key: alice.key}

	// Only the owner can move it.
	stolen := minted
	stolen.Key = bob.key
	b, err = l.Transfer(ctx, tok, &TransferRequest{Inputs: []TokenHolding{stolen}, Outputs: []Payment{{Owner: bob.addr, Amount: 100}}})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, consts.ErrSignatureInvalid)

	b, err = l.Transfer(ctx, tok, &TransferRequest{
		Inputs:  []TokenHolding{minted},
		Outputs: []Payment{{Owner: bob.addr, Amount: 60}, {Owner: alice.addr, Amount: 40}},
	})
	require.NoError(err)
	results, err := l.Accept(b)
	require.NoError(err)
	require.Len(results, 2)
	require.Equal(consts.GuardID, results[1].Kind)
	bobs := TokenHolding{Outpoint: b.Outpoint(1), State: covenant.CAT20State{OwnerAddr: bob.addr, Amount: 60}, Key: bob.key}
	alices := TokenHolding{Outpoint: b.Outpoint(2), State: covenant.CAT20State{OwnerAddr: alice.addr, Amount: 40}, Key: alice.key}

	// Outputs may not exceed inputs.
	b, err = l.Transfer(ctx, tok, &TransferRequest{Inputs: []TokenHolding{alices}, Outputs: []Payment{{Owner: alice.addr, Amount: 50}}})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, consts.ErrConservationViolation)

	b, err = l.Transfer(ctx, tok, &TransferRequest{
		Inputs:  []TokenHolding{bobs, alices},
		Outputs: []Payment{{Owner: carol.addr, Amount: 90}},
		Burn:    10,
	})
	require.NoError(err)
	results, err = l.Accept(b)
	require.NoError(err)
	require.Len(results, 3)
	require.Equal(uint64(10), results[2].Burned)
}

func commitScript(i int) []byte {
	return append([]byte{0x51, 0x20}, bytes.Repeat([]byte{byte(i + 1)}, 32)...)
}

func TestNftOpenCollection(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	alice := newParty(t)

	scripts := [][]byte{commitScript(0), commitScript(1), commitScript(2)}
	tree, err := NewCollectionTree(scripts)
	require.NoError(err)
	col, op, err := l.DeployNftOpen(tree)
	require.NoError(err)

	state := covenant.NftOpenMinterState{NftScript: col.Nft.Script, MerkleRoot: tree.Root()}
	for id := uint64(0); id < 3; id++ {
		b, err := l.MintNftOpen(ctx, col, &NftOpenMintRequest{Minter: op, State: state, Owner: alice.addr})
		require.NoError(err)
		results, err := l.Accept(b)
		require.NoError(err)
		require.Equal(id, results[0].LocalID)

		leaf, err := tree.Leaf(int(id))
		require.NoError(err)
		require.True(leaf.IsMined)
		if id < 2 {
			require.Len(results[0].NextStates, 1)
			op = b.Outpoint(1)
			state = covenant.NftOpenMinterState{NftScript: col.Nft.Script, MerkleRoot: tree.Root(), NextLocalID: id + 1}
		} else {
			require.Empty(results[0].NextStates)
		}
	}

	state.NextLocalID = 3
	_, err = l.MintNftOpen(ctx, col, &NftOpenMintRequest{Minter: op, State: state, Owner: alice.addr})
	require.ErrorIs(err, consts.ErrSupplyExceeded)
}

type nftHolding struct {
	op    wire.OutPoint
	state covenant.NftParallelMinterState
}

func TestNftParallelCollection(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	issuer := newParty(t)
	alice := newParty(t)
	bob := newParty(t)

	col, op, err := l.DeployNftParallel(issuer.addr, 5)
	require.NoError(err)

	b, err := l.MintParallel(ctx, col, &ParallelMintRequest{
		Minter: op,
		State:  covenant.NftParallelMinterState{NftScript: col.Nft.Script},
		Issuer: alice.key,
		Owner:  alice.addr,
	})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, consts.ErrSignatureInvalid)

	queue := []nftHolding{{op: op, state: covenant.NftParallelMinterState{NftScript: col.Nft.Script}}}
	nfts := make(map[uint64]NftHolding)
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		b, err := l.MintParallel(ctx, col, &ParallelMintRequest{Minter: m.op, State: m.state, Issuer: issuer.key, Owner: alice.addr})
		require.NoError(err)
		results, err := l.Accept(b)
		require.NoError(err)
		id := m.state.NextLocalID
		require.Equal(id, results[0].LocalID)

		children := actions.ChildIDs(id, 5)
		for i, child := range children {
			queue = append(queue, nftHolding{
				op:    b.Outpoint(uint32(i + 1)),
				state: covenant.NftParallelMinterState{NftScript: col.Nft.Script, NextLocalID: child},
			})
		}
		nfts[id] = NftHolding{
			Outpoint: b.Outpoint(uint32(len(children) + 1)),
			State:    covenant.CAT721State{OwnerAddr: alice.addr, LocalID: id},
			Key:      alice.key,
		}
	}
	require.Len(nfts, 5)

	burned := nfts[3]
	burned.Burn = true
	_, err = l.TransferNft(ctx, col, &NftTransferRequest{Inputs: []NftHolding{nfts[0], burned}})
	require.ErrorIs(err, ErrOwnerCount)

	b, err = l.TransferNft(ctx, col, &NftTransferRequest{
		Inputs: []NftHolding{nfts[0], burned},
		Owners: [][]byte{bob.addr},
	})
	require.NoError(err)
	results, err := l.Accept(b)
	require.NoError(err)
	require.Len(results, 3)
	require.Equal(uint64(0), results[0].LocalID)
	require.Equal(uint64(3), results[1].LocalID)
	require.Equal(uint64(1), results[2].Burned)
}

func TestFindNonce(t *testing.T) {
	require := require.New(t)
	l := NewLedger()
	g, err := covenant.GuardContract()
	require.NoError(err)

	plan := NewPlan()
	op := l.Fund(g.Script, fundValue)
	prev, err := l.Output(op)
	require.NoError(err)
	_, err = plan.AddCovenantInput(op, prev, g.Leaf)
	require.NoError(err)
	require.NoError(plan.AddChange(FeeScript, changeValue))

	// Some starting locktime has an unusable challenge; a single attempt
	// from there must fail and leave the locktime untouched.
	found := false
	for start := uint32(0); start < 256 && !found; start++ {
		plan.Tx.LockTime = start
		_, err := FindNonce(plan.Tx, plan.PrevOuts, plan.Covenants, 1)
		if err != nil {
			require.ErrorIs(err, ErrNonceSearchExhausted)
			require.Equal(start, plan.Tx.LockTime)
			found = true
		}
	}
	require.True(found)

	preimages, err := FindNonce(plan.Tx, plan.PrevOuts, plan.Covenants, DefaultNonceSearchLimit)
	require.NoError(err)
	require.Len(preimages, 1)
	require.True(preimages[0].Ready())
}

func TestMemSource(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	src := NewMemSource()

	_, err := src.RawTx(ctx, chainhash.Hash{})
	require.ErrorIs(err, ErrTxNotFound)

	tx := wire.NewMsgTx(txVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(1, FeeScript))
	txid := src.Add(tx)

	out, err := PrevOut(ctx, src, wire.OutPoint{Hash: txid})
	require.NoError(err)
	require.Equal(FeeScript, out.PkScript)
	_, err = PrevOut(ctx, src, wire.OutPoint{Hash: txid, Index: 1})
	require.ErrorIs(err, ErrOutputNotFound)
}

func TestAcceptRequiresSpendPerCovenantInput(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := NewLedger()
	issuer := newParty(t)
	alice := newParty(t)
	bob := newParty(t)

	tok, op, err := l.DeployClosedToken(covenant.ClosedMinterParams{IssuerAddr: issuer.addr})
	require.NoError(err)
	b, err := l.MintClosed(ctx, tok, &ClosedMintRequest{Minter: op, Issuer: issuer.key, Owner: alice.addr, Amount: 100})
	require.NoError(err)
	_, err = l.Accept(b)
	require.NoError(err)

	b, err = l.Transfer(ctx, tok, &TransferRequest{
		Inputs:  []TokenHolding{{Outpoint: b.Outpoint(1), State: covenant.CAT20State{OwnerAddr: alice.addr, Amount: 100}, Key: alice.key}},
		Outputs: []Payment{{Owner: bob.addr, Amount: 100}},
	})
	require.NoError(err)
	spends := b.Spends

	// Guard release dropped.
	b.Spends = spends[:1]
	_, err = l.Accept(b)
	require.ErrorIs(err, ErrUncoveredInput)

	b.Spends = nil
	_, err = l.Accept(b)
	require.ErrorIs(err, ErrUncoveredInput)

	// The token spend moved past the last input.
	env := *spends[0].Env
	pre := *env.Preimage
	pre.InputIndex = []byte{9, 0, 0, 0}
	env.Preimage = &pre
	moved := *spends[0]
	moved.Env = &env
	b.Spends = []*actions.Spend{&moved, spends[1]}
	_, err = l.Accept(b)
	require.ErrorIs(err, ErrSpendInputIndex)

	b.Spends = spends
	results, err := l.Accept(b)
	require.NoError(err)
	require.Len(results, 2)
}
