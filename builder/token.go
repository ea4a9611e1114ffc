package builder

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/backtrace"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

const (
	fundValue   int64 = 10_000
	changeValue int64 = 5_000
)

// FeeScript is the script of every fee input and change output: a taproot
// output keyed directly on the NUMS point.
var FeeScript = append([]byte{0x51, 0x20}, covenant.NUMSBytes...)

var ErrKindMismatch = errors.New("token was not deployed with this minter kind")

// Token is a deployed CAT20 token. Exactly one of Open and Closed is set.
type Token struct {
	Genesis wire.OutPoint
	Minter  *covenant.Contract
	Token   *covenant.Contract
	Guard   *covenant.Contract
	Open    *covenant.OpenMinterParams
	Closed  *covenant.ClosedMinterParams
}

func encodeOutpoint(op wire.OutPoint) []byte {
	return txpreimage.EncodeOutpoint(op.Hash, op.Index)
}

// Outpoint names output i of b.Tx.
func (b *Built) Outpoint(i uint32) wire.OutPoint {
	return wire.OutPoint{Hash: b.Tx.TxHash(), Index: i}
}

// AssetContracts derives the asset and guard contracts of a minter.
func AssetContracts(minter *covenant.Contract, nft bool) (*covenant.Contract, *covenant.Contract, error) {
	var (
		g   *covenant.Contract
		err error
	)
	if nft {
		g, err = covenant.NftGuardContract()
	} else {
		g, err = covenant.GuardContract()
	}
	if err != nil {
		return nil, nil, err
	}
	asset := &covenant.AssetParams{MinterScript: minter.Script, GuardScript: g.Script}
	var c *covenant.Contract
	if nft {
		c, err = asset.CAT721Contract()
	} else {
		c, err = asset.CAT20Contract()
	}
	if err != nil {
		return nil, nil, err
	}
	return c, g, nil
}

// reveal spends a funding outpoint into a single state output at index 1.
// Deploys reveal the first minter this way and transfers their guard.
func (l *Ledger) reveal(funding wire.OutPoint, script []byte, stateHash []byte) (wire.OutPoint, error) {
	prev, err := l.Output(funding)
	if err != nil {
		return wire.OutPoint{}, err
	}
	plan := NewPlan()
	if _, err := plan.AddInput(funding, prev); err != nil {
		return wire.OutPoint{}, err
	}
	if _, err := plan.AddStateOutput(script, stateHash); err != nil {
		return wire.OutPoint{}, err
	}
	if err := plan.Finalize(l.NonceLimit); err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: l.Record(plan.Tx, plan.States), Index: 1}, nil
}

// DeployOpenToken creates the genesis outpoint, fixes it into params and
// reveals the first open minter.
func (l *Ledger) DeployOpenToken(params covenant.OpenMinterParams) (*Token, wire.OutPoint, error) {
	genesis := l.Fund(FeeScript, fundValue)
	params.GenesisOutpoint = encodeOutpoint(genesis)
	minter, err := params.Contract()
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	token, g, err := AssetContracts(minter, false)
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	op, err := l.reveal(genesis, minter.Script, params.InitialState(token.Script).StateHash())
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	return &Token{Genesis: genesis, Minter: minter, Token: token, Guard: g, Open: &params}, op, nil
}

// DeployClosedToken is DeployOpenToken for an issuer-controlled minter.
func (l *Ledger) DeployClosedToken(params covenant.ClosedMinterParams) (*Token, wire.OutPoint, error) {
	genesis := l.Fund(FeeScript, fundValue)
	params.GenesisOutpoint = encodeOutpoint(genesis)
	minter, err := params.Contract()
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	token, g, err := AssetContracts(minter, false)
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	state := &covenant.ClosedMinterState{TokenScript: token.Script}
	op, err := l.reveal(genesis, minter.Script, state.StateHash())
	if err != nil {
		return nil, wire.OutPoint{}, err
	}
	return &Token{Genesis: genesis, Minter: minter, Token: token, Guard: g, Closed: &params}, op, nil
}

// minterPlan starts a mint: the minter input, a fee input, and the proofs
// of the minter's lineage and previous state.
func (l *Ledger) minterPlan(
	ctx context.Context,
	minter wire.OutPoint,
	c *covenant.Contract,
	genesis wire.OutPoint,
) (*Plan, *mintProofs, error) {
	prev, err := l.Output(minter)
	if err != nil {
		return nil, nil, err
	}
	plan := NewPlan()
	if _, err := plan.AddCovenantInput(minter, prev, c.Leaf); err != nil {
		return nil, nil, err
	}
	fee := l.Fund(FeeScript, fundValue)
	feePrev, err := l.Output(fee)
	if err != nil {
		return nil, nil, err
	}
	if _, err := plan.AddInput(fee, feePrev); err != nil {
		return nil, nil, err
	}
	info, err := BacktraceFor(ctx, l.Source, minter, &genesis, c.Script)
	if err != nil {
		return nil, nil, err
	}
	ps, err := l.PrevState(minter)
	if err != nil {
		return nil, nil, err
	}
	return plan, &mintProofs{Backtrace: info, Prev: ps}, nil
}

type mintProofs struct {
	Backtrace *backtrace.Info
	Prev      actions.PrevState
}

func (l *Ledger) built(plan *Plan, w actions.Typed, input int) (*Built, error) {
	spend, err := actions.NewSpend(plan.Env(input), w)
	if err != nil {
		return nil, err
	}
	return &Built{Tx: plan.Tx, States: plan.States, Spends: []*actions.Spend{spend}}, nil
}

// OpenMintRequest describes one open mint.
type OpenMintRequest struct {
	Minter     wire.OutPoint
	State      covenant.OpenMinterState
	NextCounts []uint64
	Owner      []byte
	// Preminer signs the premine mint.
	Preminer *btcec.PrivateKey
}

// MintOpen builds an open mint. Outputs 1..len(NextCounts) are the next
// minters; the token output follows them.
func (l *Ledger) MintOpen(ctx context.Context, tok *Token, req *OpenMintRequest) (*Built, error) {
	if tok.Open == nil {
		return nil, ErrKindMismatch
	}
	plan, proofs, err := l.minterPlan(ctx, req.Minter, tok.Minter, tok.Genesis)
	if err != nil {
		return nil, err
	}
	w := &actions.OpenMint{
		Params:              *tok.Open,
		State:               req.State,
		Prev:                proofs.Prev,
		Backtrace:           proofs.Backtrace,
		NextRemainingCounts: req.NextCounts,
		TokenOwner:          req.Owner,
		TokenAmount:         tok.Open.Limit,
	}
	if w.IsPremine() {
		w.TokenAmount = tok.Open.Premine()
	}
	for _, n := range req.NextCounts {
		next := &covenant.OpenMinterState{TokenScript: req.State.TokenScript, HasMintedBefore: true, RemainingCount: n}
		if _, err := plan.AddStateOutput(tok.Minter.Script, next.StateHash()); err != nil {
			return nil, err
		}
	}
	token := &covenant.CAT20State{OwnerAddr: req.Owner, Amount: w.TokenAmount}
	if _, err := plan.AddStateOutput(tok.Token.Script, token.StateHash()); err != nil {
		return nil, err
	}
	if err := plan.AddChange(FeeScript, changeValue); err != nil {
		return nil, err
	}
	if err := plan.Finalize(l.NonceLimit); err != nil {
		return nil, err
	}
	if w.IsPremine() && req.Preminer != nil {
		w.PreminerPubKey = XOnly(req.Preminer)
		if w.PreminerSig, err = Sign(req.Preminer, plan.Checker(0)); err != nil {
			return nil, err
		}
	}
	return l.built(plan, w, 0)
}

// ClosedMintRequest describes one closed mint.
type ClosedMintRequest struct {
	Minter     wire.OutPoint
	Issuer     *btcec.PrivateKey
	KeepMinter bool
	Owner      []byte
	Amount     uint64
}

// MintClosed builds a closed mint. When KeepMinter is set output 1 is the
// recreated minter.
func (l *Ledger) MintClosed(ctx context.Context, tok *Token, req *ClosedMintRequest) (*Built, error) {
	if tok.Closed == nil {
		return nil, ErrKindMismatch
	}
	plan, proofs, err := l.minterPlan(ctx, req.Minter, tok.Minter, tok.Genesis)
	if err != nil {
		return nil, err
	}
	state := covenant.ClosedMinterState{TokenScript: tok.Token.Script}
	if req.KeepMinter {
		if _, err := plan.AddStateOutput(tok.Minter.Script, state.StateHash()); err != nil {
			return nil, err
		}
	}
	token := &covenant.CAT20State{OwnerAddr: req.Owner, Amount: req.Amount}
	if _, err := plan.AddStateOutput(tok.Token.Script, token.StateHash()); err != nil {
		return nil, err
	}
	if err := plan.AddChange(FeeScript, changeValue); err != nil {
		return nil, err
	}
	if err := plan.Finalize(l.NonceLimit); err != nil {
		return nil, err
	}
	w := &actions.ClosedMint{
		Params:       *tok.Closed,
		State:        state,
		Prev:         proofs.Prev,
		Backtrace:    proofs.Backtrace,
		IssuerPubKey: XOnly(req.Issuer),
		KeepMinter:   req.KeepMinter,
		TokenOwner:   req.Owner,
		TokenAmount:  req.Amount,
	}
	if w.IssuerSig, err = Sign(req.Issuer, plan.Checker(0)); err != nil {
		return nil, err
	}
	return l.built(plan, w, 0)
}
