package guard

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

type fixture struct {
	tokens [2][]byte
	guard  []byte
	owner  []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g, err := covenant.GuardContract()
	require.NoError(t, err)
	f := &fixture{guard: g.Script, owner: bytes.Repeat([]byte{0x11}, consts.OwnerAddrLen)}
	for i := range f.tokens {
		asset := &covenant.AssetParams{
			MinterScript: []byte{0x51, 0x20, byte(i)},
			GuardScript:  g.Script,
		}
		c, err := asset.CAT20Contract()
		require.NoError(t, err)
		f.tokens[i] = c.Script
	}
	return f
}

func contextFor(t *testing.T, spentScripts [][]byte, guardIndex int, outs []txpreimage.StateOutput) *sighash.Context {
	t.Helper()
	_, serialized, err := txpreimage.SerializeStateOutputs(outs)
	require.NoError(t, err)
	sum := sha256.Sum256(serialized)
	amounts := make([][]byte, len(spentScripts))
	prevouts := make([][]byte, len(spentScripts))
	for i := range spentScripts {
		amounts[i] = txpreimage.SatoshiBytes(consts.DefaultPostage)
		prevouts[i] = bytes.Repeat([]byte{byte(i)}, consts.OutpointLen)
	}
	return &sighash.Context{
		Preimage:     &sighash.Preimage{ShaOutputs: sum[:]},
		InputIndex:   guardIndex,
		Prevouts:     prevouts,
		SpentScripts: spentScripts,
		SpentAmounts: amounts,
	}
}

type tokenIn struct {
	typ    int8
	amount uint64
}

type tokenOut struct {
	typ    int8
	amount uint64
}

// transfer builds a guard witness for token inputs followed by the guard
// input, and a context whose outputs are exactly the claimed outputs.
func (f *fixture) transfer(t *testing.T, ins []tokenIn, outs []tokenOut, burn [TypeSlots]uint64) (*sighash.Context, *Witness) {
	t.Helper()
	s := NewConstState()
	w := &Witness{State: s}
	spent := make([][]byte, 0, len(ins)+1)
	for i, in := range ins {
		s.TokenScripts[in.typ] = f.tokens[in.typ]
		s.TokenAmounts[in.typ] += in.amount
		st := &covenant.CAT20State{OwnerAddr: f.owner, Amount: in.amount}
		s.InputStateHashes[i] = st.StateHash()
		s.TokenScriptIndexes[i] = in.typ
		w.Inputs[i] = st
		spent = append(spent, f.tokens[in.typ])
	}
	s.TokenBurnAmounts = burn
	spent = append(spent, f.guard)

	stateOuts := make([]txpreimage.StateOutput, 0, len(outs))
	for _, o := range outs {
		st := &covenant.CAT20State{OwnerAddr: f.owner, Amount: o.amount}
		out := txpreimage.PostageOutput(f.tokens[o.typ], st.StateHash())
		w.Outputs = append(w.Outputs, OutputClaim{
			Output:    out.Output,
			TypeIndex: o.typ,
			OwnerAddr: f.owner,
			Amount:    o.amount,
		})
		stateOuts = append(stateOuts, out)
	}
	return contextFor(t, spent, len(ins), stateOuts), w
}

func TestConservedPartition(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 40}, {0, 60}},
		[]tokenOut{{0, 25}, {0, 25}, {0, 50}},
		[TypeSlots]uint64{},
	)
	totals, err := VerifyFungible(ctx, w)
	require.NoError(t, err)
	require.Equal(t, 1, totals.Types)
	require.Equal(t, uint64(100), totals.In[0])
	require.Equal(t, uint64(100), totals.Out[0])
	require.Len(t, totals.Root, consts.Hash160Len)
}

func TestOutputShortWithoutBurn(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 40}, {0, 60}},
		[]tokenOut{{0, 49}, {0, 50}},
		[TypeSlots]uint64{},
	)
	_, err := VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrNotConserved)
	require.ErrorIs(t, err, consts.ErrConservationViolation)
}

func TestDeclaredBurn(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 40}, {0, 60}},
		[]tokenOut{{0, 49}, {0, 50}},
		[TypeSlots]uint64{1},
	)
	totals, err := VerifyFungible(ctx, w)
	require.NoError(t, err)
	require.Equal(t, uint64(1), totals.Burn[0])

	// Burning everything leaves no token outputs.
	ctx, w = f.transfer(t, []tokenIn{{0, 7}}, nil, [TypeSlots]uint64{7})
	_, err = VerifyFungible(ctx, w)
	require.NoError(t, err)
}

func TestTwoTypes(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 10}, {1, 5}, {0, 3}},
		[]tokenOut{{1, 5}, {0, 13}},
		[TypeSlots]uint64{},
	)
	totals, err := VerifyFungible(ctx, w)
	require.NoError(t, err)
	require.Equal(t, 2, totals.Types)

	// Moving value between types is not conservation.
	ctx, w = f.transfer(t,
		[]tokenIn{{0, 10}, {1, 5}},
		[]tokenOut{{1, 6}, {0, 9}},
		[TypeSlots]uint64{},
	)
	_, err = VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrNotConserved)
}

func TestTypeCountAnchoredByInputs(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 10}},
		[TypeSlots]uint64{},
	)
	// A second declared type with no input cannot be trusted.
	w.State.TokenScripts[1] = f.tokens[1]
	_, err := VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrTypeAnchor)

	// Outputs never widen the type count.
	ctx, w = f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 10}},
		[TypeSlots]uint64{},
	)
	w.Outputs[0].TypeIndex = 1
	_, err = VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrTypeIndex)
}

func TestUntypedOutputToTokenScript(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 10}},
		[TypeSlots]uint64{},
	)
	w.Outputs[0].TypeIndex = NoType
	_, err := VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrUnguardedToken)
}

func TestInputClaims(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 10}},
		[TypeSlots]uint64{},
	)
	w.Inputs[0] = &covenant.CAT20State{OwnerAddr: f.owner, Amount: 11}
	_, err := VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrInputState)

	ctx, w = f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 10}},
		[TypeSlots]uint64{},
	)
	ctx.SpentScripts[0] = f.tokens[1]
	_, err = VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrInputScript)

	ctx, w = f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 10}},
		[TypeSlots]uint64{},
	)
	w.State.TokenScriptIndexes[ctx.InputIndex] = 0
	_, err = VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrGuardInput)
}

func TestDeclaredInputTotal(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 10}},
		[TypeSlots]uint64{},
	)
	w.State.TokenAmounts[0] = 9
	_, err := VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrInputAmount)

	w.State.TokenAmounts[0] = 10
	w.State.TokenBurnAmounts[2] = 1
	_, err = VerifyFungible(ctx, w)
	require.ErrorIs(t, err, ErrUnusedType)
}

func TestOutputsBoundToSighash(t *testing.T) {
	f := newFixture(t)
	ctx, w := f.transfer(t,
		[]tokenIn{{0, 10}},
		[]tokenOut{{0, 4}, {0, 6}},
		[TypeSlots]uint64{},
	)
	w.Outputs[0].OwnerAddr = bytes.Repeat([]byte{0x22}, consts.OwnerAddrLen)
	_, err := VerifyFungible(ctx, w)
	require.ErrorIs(t, err, sighash.ErrOutputsMismatch)
}

func TestConstStateEncoding(t *testing.T) {
	f := newFixture(t)
	s := NewConstState()
	s.TokenScripts[0] = f.tokens[0]
	s.TokenAmounts[0] = 100
	s.TokenBurnAmounts[0] = 3
	s.InputStateHashes[1] = bytes.Repeat([]byte{0xab}, consts.Hash160Len)
	s.TokenScriptIndexes[1] = 0

	b := s.Bytes()
	// Unused type slots serialize as their sentinel byte.
	for i := 1; i < TypeSlots; i++ {
		require.True(t, bytes.Contains(b, append([]byte{0, 0, 0, 1}, Sentinel(i)...)), "slot %d", i)
	}
	got, err := UnmarshalConstState(b)
	require.NoError(t, err)
	require.Equal(t, s.TokenScripts, got.TokenScripts)
	require.Nil(t, got.TokenScripts[1])
	require.Equal(t, s.TokenScriptIndexes, got.TokenScriptIndexes)
	require.Equal(t, s.StateHash(), got.StateHash())

	_, err = UnmarshalConstState(append(b, 0))
	require.ErrorIs(t, err, ErrInvalidState)

	s.TokenScripts[2] = f.tokens[1]
	require.ErrorIs(t, s.Validate(), ErrInvalidState)

	s.TokenScripts[2] = nil
	s.TokenScripts[1] = f.tokens[0]
	require.ErrorIs(t, s.Validate(), ErrDuplicateType)
}

type nftIn struct {
	id   uint64
	burn bool
}

func (f *fixture) nftTransfer(t *testing.T, ins []nftIn, outIDs []uint64) (*sighash.Context, *NftWitness) {
	t.Helper()
	s := NewNftConstState()
	s.NftScripts[0] = f.tokens[0]
	w := &NftWitness{State: s}
	spent := make([][]byte, 0, len(ins)+1)
	for i, in := range ins {
		st := &covenant.CAT721State{OwnerAddr: f.owner, LocalID: in.id}
		s.InputStateHashes[i] = st.StateHash()
		s.NftScriptIndexes[i] = 0
		s.NftBurnMasks[i] = in.burn
		w.Inputs[i] = st
		spent = append(spent, f.tokens[0])
	}
	spent = append(spent, f.guard)

	stateOuts := make([]txpreimage.StateOutput, 0, len(outIDs))
	for _, id := range outIDs {
		st := &covenant.CAT721State{OwnerAddr: f.owner, LocalID: id}
		out := txpreimage.PostageOutput(f.tokens[0], st.StateHash())
		w.Outputs = append(w.Outputs, NftOutputClaim{
			Output:    out.Output,
			TypeIndex: 0,
			OwnerAddr: f.owner,
			LocalID:   id,
		})
		stateOuts = append(stateOuts, out)
	}
	return contextFor(t, spent, len(ins), stateOuts), w
}

func TestNftUnitSurvival(t *testing.T) {
	f := newFixture(t)
	ins := []nftIn{{id: 3}, {id: 7, burn: true}, {id: 9}}

	ctx, w := f.nftTransfer(t, ins, []uint64{3, 9})
	totals, err := VerifyNft(ctx, w)
	require.NoError(t, err)
	require.Equal(t, 3, totals.In[0])
	require.Equal(t, 2, totals.Out[0])
	require.Equal(t, 1, totals.Burned[0])

	ctx, w = f.nftTransfer(t, ins, []uint64{9, 3})
	_, err = VerifyNft(ctx, w)
	require.ErrorIs(t, err, ErrUnitMismatch)

	ctx, w = f.nftTransfer(t, ins, []uint64{3})
	_, err = VerifyNft(ctx, w)
	require.ErrorIs(t, err, ErrUnitMissing)
	require.ErrorIs(t, err, consts.ErrConservationViolation)

	ctx, w = f.nftTransfer(t, ins, []uint64{3, 7, 9})
	_, err = VerifyNft(ctx, w)
	require.ErrorIs(t, err, ErrUnitMismatch)
}

func TestNftConstStateEncoding(t *testing.T) {
	s := NewNftConstState()
	s.NftScripts[0] = []byte{0x51, 0x20, 0x01}
	s.NftScriptIndexes[0] = 0
	s.NftBurnMasks[0] = true
	s.InputStateHashes[0] = bytes.Repeat([]byte{0x01}, consts.Hash160Len)

	got, err := UnmarshalNftConstState(s.Bytes())
	require.NoError(t, err)
	require.Equal(t, s, got)

	s.NftBurnMasks[1] = true
	require.ErrorIs(t, s.Validate(), ErrInvalidState)
}
