package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/guard"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

var ErrOwnerCount = errors.New("receiver count does not match unburned inputs")

// TokenHolding is a CAT20 output to spend and the key of its owner.
type TokenHolding struct {
	Outpoint wire.OutPoint
	State    covenant.CAT20State
	Key      *btcec.PrivateKey
}

// Payment is one CAT20 output of a transfer.
type Payment struct {
	Owner  []byte
	Amount uint64
}

// TransferRequest moves CAT20 holdings of one token. Burn is destroyed.
type TransferRequest struct {
	Inputs  []TokenHolding
	Outputs []Payment
	Burn    uint64
}

// NftHolding is a CAT721 output to spend. Burn destroys it.
type NftHolding struct {
	Outpoint wire.OutPoint
	State    covenant.CAT721State
	Key      *btcec.PrivateKey
	Burn     bool
}

// NftTransferRequest moves CAT721 holdings of one collection. Owners[i]
// receives the i-th unburned input.
type NftTransferRequest struct {
	Inputs []NftHolding
	Owners [][]byte
}

func assetParams(minter, g *covenant.Contract) covenant.AssetParams {
	return covenant.AssetParams{MinterScript: minter.Script, GuardScript: g.Script}
}

// CreateGuard records a transaction whose output 1 is g carrying stateHash.
func (l *Ledger) CreateGuard(g *covenant.Contract, stateHash []byte) (wire.OutPoint, error) {
	return l.reveal(l.Fund(FeeScript, fundValue), g.Script, stateHash)
}

type guardProofs struct {
	full    *txpreimage.Full
	partial *txpreimage.Partial
	prev    actions.PrevState
}

func (l *Ledger) guardProofs(ctx context.Context, op wire.OutPoint) (*guardProofs, error) {
	tx, err := l.Source.RawTx(ctx, op.Hash)
	if err != nil {
		return nil, err
	}
	full, err := txpreimage.FullFromMsgTx(tx)
	if err != nil {
		return nil, err
	}
	partial, err := txpreimage.PartialFromMsgTx(tx)
	if err != nil {
		return nil, err
	}
	prev, err := l.PrevState(op)
	if err != nil {
		return nil, err
	}
	return &guardProofs{full: full, partial: partial, prev: prev}, nil
}

// transferPlan spends the asset outpoints at inputs 0..n-1 and the guard at
// input n, followed by a fee input when the transaction has room.
func (l *Ledger) transferPlan(assets []wire.OutPoint, asset, g *covenant.Contract, guardOp wire.OutPoint) (*Plan, int, error) {
	if len(assets) == 0 || len(assets) >= consts.TxInputCountMax {
		return nil, 0, fmt.Errorf("%w (asset inputs=%d)", ErrPlanFull, len(assets))
	}
	plan := NewPlan()
	for _, op := range assets {
		prev, err := l.Output(op)
		if err != nil {
			return nil, 0, err
		}
		if _, err := plan.AddCovenantInput(op, prev, asset.Leaf); err != nil {
			return nil, 0, err
		}
	}
	prev, err := l.Output(guardOp)
	if err != nil {
		return nil, 0, err
	}
	guardIndex, err := plan.AddCovenantInput(guardOp, prev, g.Leaf)
	if err != nil {
		return nil, 0, err
	}
	if len(plan.Tx.TxIn) < consts.TxInputCountMax {
		fee := l.Fund(FeeScript, fundValue)
		feePrev, err := l.Output(fee)
		if err != nil {
			return nil, 0, err
		}
		if _, err := plan.AddInput(fee, feePrev); err != nil {
			return nil, 0, err
		}
	}
	return plan, guardIndex, nil
}

// addChange appends the change output when there is room and returns its
// untyped claim.
func addChange(plan *Plan) (*txpreimage.Output, error) {
	if len(plan.Tx.TxOut) >= consts.TxOutputCountMax {
		return nil, nil
	}
	if err := plan.AddChange(FeeScript, changeValue); err != nil {
		return nil, err
	}
	out := txpreimage.OutputOf(plan.Tx.TxOut[len(plan.Tx.TxOut)-1])
	return &out, nil
}

// Transfer creates a guard for the holdings and builds the transaction
// spending them with it.
func (l *Ledger) Transfer(ctx context.Context, tok *Token, req *TransferRequest) (*Built, error) {
	inputs := make([]TokenInput, len(req.Inputs))
	for i := range req.Inputs {
		inputs[i] = TokenInput{InputIndex: i, Script: tok.Token.Script, State: &req.Inputs[i].State}
	}
	var burn map[string]uint64
	if req.Burn > 0 {
		burn = map[string]uint64{string(tok.Token.Script): req.Burn}
	}
	gs, err := FungibleGuardState(inputs, burn)
	if err != nil {
		return nil, err
	}
	return l.TransferWithGuard(ctx, tok, req, gs)
}

// TransferWithGuard is Transfer through a guard carrying gs as given. gs is
// not checked against the request.
func (l *Ledger) TransferWithGuard(ctx context.Context, tok *Token, req *TransferRequest, gs *guard.ConstState) (*Built, error) {
	assets := make([]wire.OutPoint, len(req.Inputs))
	for i := range req.Inputs {
		assets[i] = req.Inputs[i].Outpoint
	}
	guardOp, err := l.CreateGuard(tok.Guard, gs.StateHash())
	if err != nil {
		return nil, err
	}
	plan, guardIndex, err := l.transferPlan(assets, tok.Token, tok.Guard, guardOp)
	if err != nil {
		return nil, err
	}

	w := guard.Witness{State: gs}
	for i := range req.Inputs {
		w.Inputs[i] = &req.Inputs[i].State
	}
	for _, pay := range req.Outputs {
		st := &covenant.CAT20State{OwnerAddr: pay.Owner, Amount: pay.Amount}
		idx, err := plan.AddStateOutput(tok.Token.Script, st.StateHash())
		if err != nil {
			return nil, err
		}
		w.Outputs = append(w.Outputs, guard.OutputClaim{
			Output:    txpreimage.OutputOf(plan.Tx.TxOut[idx]),
			OwnerAddr: pay.Owner,
			Amount:    pay.Amount,
		})
	}
	change, err := addChange(plan)
	if err != nil {
		return nil, err
	}
	if change != nil {
		w.Outputs = append(w.Outputs, guard.OutputClaim{Output: *change, TypeIndex: guard.NoType})
	}
	if err := plan.Finalize(l.NonceLimit); err != nil {
		return nil, err
	}

	gp, err := l.guardProofs(ctx, guardOp)
	if err != nil {
		return nil, err
	}
	params := assetParams(tok.Minter, tok.Guard)
	spends := make([]*actions.Spend, 0, len(req.Inputs)+1)
	for i, in := range req.Inputs {
		t := &actions.TokenTransfer{
			Params:     params,
			State:      in.State,
			Guard:      actions.GuardRef{InputIndex: guardIndex, PrevTx: gp.full, Prev: gp.prev},
			GuardState: gs,
		}
		if t.Backtrace, err = BacktraceFor(ctx, l.Source, in.Outpoint, nil, tok.Minter.Script, tok.Token.Script); err != nil {
			return nil, err
		}
		if t.Prev, err = l.PrevState(in.Outpoint); err != nil {
			return nil, err
		}
		sig, err := Sign(in.Key, plan.Checker(i))
		if err != nil {
			return nil, err
		}
		t.Owner = actions.UserOwnership(XOnly(in.Key), sig)
		spend, err := actions.NewSpend(plan.Env(i), t)
		if err != nil {
			return nil, err
		}
		spends = append(spends, spend)
	}
	spend, err := actions.NewSpend(plan.Env(guardIndex), &actions.GuardRelease{PrevTx: gp.partial, Prev: gp.prev, Witness: w})
	if err != nil {
		return nil, err
	}
	return &Built{Tx: plan.Tx, States: plan.States, Spends: append(spends, spend)}, nil
}

// TransferNft is Transfer for a CAT721 collection.
func (l *Ledger) TransferNft(ctx context.Context, col *Collection, req *NftTransferRequest) (*Built, error) {
	inputs := make([]NftInput, len(req.Inputs))
	for i := range req.Inputs {
		in := &req.Inputs[i]
		inputs[i] = NftInput{InputIndex: i, Script: col.Nft.Script, State: &in.State, Burn: in.Burn}
	}
	gs, err := NftGuardState(inputs)
	if err != nil {
		return nil, err
	}
	return l.TransferNftWithGuard(ctx, col, req, gs)
}

// TransferNftWithGuard is TransferNft through a guard carrying gs as given.
func (l *Ledger) TransferNftWithGuard(ctx context.Context, col *Collection, req *NftTransferRequest, gs *guard.NftConstState) (*Built, error) {
	var survivors []uint64
	for _, in := range req.Inputs {
		if !in.Burn {
			survivors = append(survivors, in.State.LocalID)
		}
	}
	if len(survivors) != len(req.Owners) {
		return nil, fmt.Errorf("%w (owners=%d unburned=%d)", ErrOwnerCount, len(req.Owners), len(survivors))
	}
	assets := make([]wire.OutPoint, len(req.Inputs))
	for i := range req.Inputs {
		assets[i] = req.Inputs[i].Outpoint
	}
	guardOp, err := l.CreateGuard(col.Guard, gs.StateHash())
	if err != nil {
		return nil, err
	}
	plan, guardIndex, err := l.transferPlan(assets, col.Nft, col.Guard, guardOp)
	if err != nil {
		return nil, err
	}

	w := guard.NftWitness{State: gs}
	for i := range req.Inputs {
		w.Inputs[i] = &req.Inputs[i].State
	}
	for i, owner := range req.Owners {
		st := &covenant.CAT721State{OwnerAddr: owner, LocalID: survivors[i]}
		idx, err := plan.AddStateOutput(col.Nft.Script, st.StateHash())
		if err != nil {
			return nil, err
		}
		w.Outputs = append(w.Outputs, guard.NftOutputClaim{
			Output:    txpreimage.OutputOf(plan.Tx.TxOut[idx]),
			OwnerAddr: owner,
			LocalID:   survivors[i],
		})
	}
	change, err := addChange(plan)
	if err != nil {
		return nil, err
	}
	if change != nil {
		w.Outputs = append(w.Outputs, guard.NftOutputClaim{Output: *change, TypeIndex: guard.NoType})
	}
	if err := plan.Finalize(l.NonceLimit); err != nil {
		return nil, err
	}

	gp, err := l.guardProofs(ctx, guardOp)
	if err != nil {
		return nil, err
	}
	params := assetParams(col.Minter, col.Guard)
	spends := make([]*actions.Spend, 0, len(req.Inputs)+1)
	for i, in := range req.Inputs {
		t := &actions.NftTransfer{
			Params:     params,
			State:      in.State,
			Guard:      actions.GuardRef{InputIndex: guardIndex, PrevTx: gp.full, Prev: gp.prev},
			GuardState: gs,
		}
		if t.Backtrace, err = BacktraceFor(ctx, l.Source, in.Outpoint, nil, col.Minter.Script, col.Nft.Script); err != nil {
			return nil, err
		}
		if t.Prev, err = l.PrevState(in.Outpoint); err != nil {
			return nil, err
		}
		sig, err := Sign(in.Key, plan.Checker(i))
		if err != nil {
			return nil, err
		}
		t.Owner = actions.UserOwnership(XOnly(in.Key), sig)
		spend, err := actions.NewSpend(plan.Env(i), t)
		if err != nil {
			return nil, err
		}
		spends = append(spends, spend)
	}
	spend, err := actions.NewSpend(plan.Env(guardIndex), &actions.NftGuardRelease{PrevTx: gp.partial, Prev: gp.prev, Witness: w})
	if err != nil {
		return nil, err
	}
	return &Built{Tx: plan.Tx, States: plan.States, Spends: append(spends, spend)}, nil
}
