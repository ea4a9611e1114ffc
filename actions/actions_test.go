package actions_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/builder"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/merkle"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
)

func newKey(t *testing.T) (*btcec.PrivateKey, []byte) {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return key, covenant.OwnerAddrFromPubKey(builder.XOnly(key))
}

// closedMint deploys a closed token and builds, without accepting, a mint
// of amount to owner.
func closedMint(t *testing.T, l *builder.Ledger, owner []byte, amount uint64) (*builder.Token, *builder.Built) {
	t.Helper()
	issuer, issuerAddr := newKey(t)
	tok, op, err := l.DeployClosedToken(covenant.ClosedMinterParams{IssuerAddr: issuerAddr})
	require.NoError(t, err)
	b, err := l.MintClosed(context.Background(), tok, &builder.ClosedMintRequest{
		Minter: op,
		Issuer: issuer,
		Owner:  owner,
		Amount: amount,
	})
	require.NoError(t, err)
	return tok, b
}

func TestSpendDispatch(t *testing.T) {
	require := require.New(t)
	l := builder.NewLedger()
	_, owner := newKey(t)
	_, b := closedMint(t, l, owner, 7)
	s := b.Spends[0]
	require.Equal(consts.ClosedMinterID, s.Kind)

	w, err := s.Witness()
	require.NoError(err)
	require.IsType(&actions.ClosedMint{}, w)

	wrongKind := *s
	wrongKind.Kind = consts.GuardID
	_, err = wrongKind.Execute()
	require.ErrorIs(err, actions.ErrSpendMismatch)

	unknown := *s
	unknown.Kind = 0xee
	_, err = unknown.Execute()
	require.ErrorIs(err, actions.ErrUnknownSpend)

	res, err := s.Execute()
	require.NoError(err)
	require.Equal(uint64(7), res.Minted)
	require.Equal(uint32(0), res.InputIndex)
	require.Len(res.Message, consts.Hash256Len)
}

func TestResultBytes(t *testing.T) {
	require := require.New(t)
	l := builder.NewLedger()
	_, owner := newKey(t)
	_, b := closedMint(t, l, owner, 42)
	results, err := l.Accept(b)
	require.NoError(err)

	res := results[0]
	got, err := actions.UnmarshalResult(res.Bytes())
	require.NoError(err)
	require.Equal(res, got)

	_, err = actions.UnmarshalResult(nil)
	require.ErrorIs(err, actions.ErrUnmarshalEmptyResult)
}

func TestEnvTampering(t *testing.T) {
	l := builder.NewLedger()
	_, owner := newKey(t)

	tests := []struct {
		name   string
		tamper func(s *actions.Spend)
		err    error
	}{
		{
			name:   "missing checker",
			tamper: func(s *actions.Spend) { s.Env.Checker = nil },
			err:    actions.ErrMissingEnv,
		},
		{
			name: "swapped spent amounts",
			tamper: func(s *actions.Spend) {
				a := s.Env.SpentAmounts
				a[0], a[1] = a[1], a[0]
			},
			err: sighash.ErrSpentAmountsMismatch,
		},
		{
			name: "foreign spent script",
			tamper: func(s *actions.Spend) {
				s.Env.SpentScripts[1] = bytes.Clone(s.Env.SpentScripts[0])
			},
			err: sighash.ErrSpentScriptsMismatch,
		},
		{
			name: "wrong lineage input",
			tamper: func(s *actions.Spend) {
				s.ClosedMint.Backtrace.PrevTxInputIndex = 1
			},
			err: consts.ErrStructuralMismatch,
		},
		{
			name: "forged amount",
			tamper: func(s *actions.Spend) {
				s.ClosedMint.TokenAmount++
			},
			err: sighash.ErrOutputsMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, b := closedMint(t, l, owner, 1)
			s := b.Spends[0]
			tt.tamper(s)
			_, err := s.Execute()
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTokenContractOwnership(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := builder.NewLedger()
	key, alice := newKey(t)

	// Owned by the fee script, which the transfer spends at input 2.
	owner := covenant.OwnerAddrFromScript(builder.FeeScript)
	tok, b := closedMint(t, l, owner, 100)
	_, err := l.Accept(b)
	require.NoError(err)
	holding := builder.TokenHolding{
		Outpoint: b.Outpoint(1),
		State:    covenant.CAT20State{OwnerAddr: owner, Amount: 100},
		Key:      key,
	}

	transfer := func() *builder.Built {
		b, err := l.Transfer(ctx, tok, &builder.TransferRequest{
			Inputs:  []builder.TokenHolding{holding},
			Outputs: []builder.Payment{{Owner: alice, Amount: 100}},
		})
		require.NoError(err)
		return b
	}

	b = transfer()
	_, err = l.Accept(b)
	require.ErrorIs(err, consts.ErrSignatureInvalid)

	b = transfer()
	b.Spends[0].TokenTransfer.Owner = actions.ContractOwnership(1)
	_, err = b.Spends[0].Execute()
	require.ErrorIs(err, actions.ErrOwnerMismatch)

	b.Spends[0].TokenTransfer.Owner = actions.ContractOwnership(0)
	_, err = b.Spends[0].Execute()
	require.ErrorIs(err, actions.ErrInputRef)

	b.Spends[0].TokenTransfer.Owner = actions.ContractOwnership(2)
	results, err := l.Accept(b)
	require.NoError(err)
	require.Len(results, 2)
}

func TestGuardWitnessTampering(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := builder.NewLedger()
	key, alice := newKey(t)
	_, bob := newKey(t)

	tok, b := closedMint(t, l, alice, 100)
	_, err := l.Accept(b)
	require.NoError(err)
	holding := builder.TokenHolding{
		Outpoint: b.Outpoint(1),
		State:    covenant.CAT20State{OwnerAddr: alice, Amount: 100},
		Key:      key,
	}
	b, err = l.Transfer(ctx, tok, &builder.TransferRequest{
		Inputs:  []builder.TokenHolding{holding},
		Outputs: []builder.Payment{{Owner: bob, Amount: 100}},
	})
	require.NoError(err)
	token, release := b.Spends[0], b.Spends[1]

	// The token input checks the guard state against the guard's creating
	// transaction.
	forged := *token.TokenTransfer.GuardState
	forged.TokenAmounts[0]++
	honest := token.TokenTransfer.GuardState
	token.TokenTransfer.GuardState = &forged
	_, err = token.Execute()
	require.ErrorIs(err, actions.ErrPrevState)
	token.TokenTransfer.GuardState = honest

	// Redirecting an output changes what sha_outputs commits.
	claim := &release.GuardRelease.Witness.Outputs[0]
	claim.OwnerAddr = alice
	_, err = release.Execute()
	require.ErrorIs(err, sighash.ErrOutputsMismatch)
	claim.OwnerAddr = bob

	results, err := l.Accept(b)
	require.NoError(err)
	require.Equal(consts.GuardID, results[1].Kind)
	require.Zero(results[1].Burned)
}

func TestNftOpenMinterRejectsMinedLeaf(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := builder.NewLedger()
	_, owner := newKey(t)

	scripts := [][]byte{
		append([]byte{0x51, 0x20}, bytes.Repeat([]byte{0x0a}, 32)...),
		append([]byte{0x51, 0x20}, bytes.Repeat([]byte{0x0b}, 32)...),
	}
	tree, err := builder.NewCollectionTree(scripts)
	require.NoError(err)
	require.NoError(tree.Set(0, merkle.Leaf{CommitScript: scripts[0], IsMined: true}))

	col, op, err := l.DeployNftOpen(tree)
	require.NoError(err)
	b, err := l.MintNftOpen(ctx, col, &builder.NftOpenMintRequest{
		Minter: op,
		State:  covenant.NftOpenMinterState{NftScript: col.Nft.Script, MerkleRoot: tree.Root()},
		Owner:  owner,
	})
	require.NoError(err)
	_, err = l.Accept(b)
	require.ErrorIs(err, actions.ErrLeafMined)
	require.ErrorIs(err, consts.ErrSupplyExceeded)

	short := b.Spends[0].NftOpenMint.Proof
	short.Siblings = short.Siblings[1:]
	short.IsLeft = short.IsLeft[1:]
	_, err = b.Spends[0].Execute()
	require.ErrorIs(err, merkle.ErrProofShape)
}

func TestTokenUnlockRejectsNegativeGuardIndex(t *testing.T) {
	for _, idx := range []int8{-2, -5, -128} {
		require := require.New(t)
		ctx := context.Background()
		l := builder.NewLedger()
		key, alice := newKey(t)
		_, bob := newKey(t)

		tok, b := closedMint(t, l, alice, 100)
		_, err := l.Accept(b)
		require.NoError(err)
		holding := builder.TokenHolding{
			Outpoint: b.Outpoint(1),
			State:    covenant.CAT20State{OwnerAddr: alice, Amount: 100},
			Key:      key,
		}
		gs, err := builder.FungibleGuardState([]builder.TokenInput{
			{InputIndex: 0, Script: tok.Token.Script, State: &holding.State},
		}, nil)
		require.NoError(err)
		gs.TokenScriptIndexes[0] = idx

		b, err = l.TransferWithGuard(ctx, tok, &builder.TransferRequest{
			Inputs:  []builder.TokenHolding{holding},
			Outputs: []builder.Payment{{Owner: bob, Amount: 100}},
		}, gs)
		require.NoError(err)
		_, err = b.Spends[0].Execute()
		require.ErrorIs(err, actions.ErrNotGuarded, "index %d", idx)
		require.ErrorIs(err, consts.ErrStructuralMismatch)

		_, err = l.Accept(b)
		require.ErrorIs(err, actions.ErrNotGuarded)
	}
}

func TestNftUnlockRejectsNegativeGuardIndex(t *testing.T) {
	for _, idx := range []int8{-2, -5, -128} {
		require := require.New(t)
		ctx := context.Background()
		l := builder.NewLedger()
		issuer, issuerAddr := newKey(t)
		key, alice := newKey(t)
		_, bob := newKey(t)

		col, op, err := l.DeployNftParallel(issuerAddr, 1)
		require.NoError(err)
		b, err := l.MintParallel(ctx, col, &builder.ParallelMintRequest{
			Minter: op,
			State:  covenant.NftParallelMinterState{NftScript: col.Nft.Script},
			Issuer: issuer,
			Owner:  alice,
		})
		require.NoError(err)
		_, err = l.Accept(b)
		require.NoError(err)
		holding := builder.NftHolding{
			Outpoint: b.Outpoint(1),
			State:    covenant.CAT721State{OwnerAddr: alice},
			Key:      key,
		}
		gs, err := builder.NftGuardState([]builder.NftInput{
			{InputIndex: 0, Script: col.Nft.Script, State: &holding.State},
		})
		require.NoError(err)
		gs.NftScriptIndexes[0] = idx

		b, err = l.TransferNftWithGuard(ctx, col, &builder.NftTransferRequest{
			Inputs: []builder.NftHolding{holding},
			Owners: [][]byte{bob},
		}, gs)
		require.NoError(err)
		_, err = b.Spends[0].Execute()
		require.ErrorIs(err, actions.ErrNotGuarded, "index %d", idx)

		_, err = l.Accept(b)
		require.ErrorIs(err, actions.ErrNotGuarded)
	}
}
