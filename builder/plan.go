package builder

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
)

const txVersion = 2

var ErrPlanFull = fmt.Errorf("%w: transaction is full", txpreimage.ErrUnsupportedTxShape)

// Plan is a transaction under construction. Output 0 is reserved for the
// state hash root, which Finalize fills in.
type Plan struct {
	Tx        *wire.MsgTx
	PrevOuts  []*wire.TxOut
	Covenants []Covenant
	States    commitment.StateHashList

	Preimages []*sighash.Preimage

	change *txpreimage.Output
}

func NewPlan() *Plan {
	tx := wire.NewMsgTx(txVersion)
	tx.AddTxOut(wire.NewTxOut(0, nil))
	return &Plan{Tx: tx}
}

// AddInput spends op, whose output is prev, without a covenant.
func (p *Plan) AddInput(op wire.OutPoint, prev *wire.TxOut) (int, error) {
	if len(p.Tx.TxIn) >= consts.TxInputCountMax {
		return 0, fmt.Errorf("%w (inputs=%d)", ErrPlanFull, len(p.Tx.TxIn))
	}
	p.Tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	p.PrevOuts = append(p.PrevOuts, prev)
	return len(p.Tx.TxIn) - 1, nil
}

// AddCovenantInput spends op through the contract leaf.
func (p *Plan) AddCovenantInput(op wire.OutPoint, prev *wire.TxOut, leaf []byte) (int, error) {
	i, err := p.AddInput(op, prev)
	if err != nil {
		return 0, err
	}
	p.Covenants = append(p.Covenants, Covenant{InputIndex: i, Leaf: leaf})
	return i, nil
}

// AddOutput appends an output committing stateHash, which may be empty.
func (p *Plan) AddOutput(script []byte, value int64, stateHash []byte) (int, error) {
	if p.change != nil {
		return 0, fmt.Errorf("%w: output after change", ErrPlanFull)
	}
	n := len(p.Tx.TxOut)
	if n >= consts.TxOutputCountMax {
		return 0, fmt.Errorf("%w (outputs=%d)", ErrPlanFull, n)
	}
	p.Tx.AddTxOut(wire.NewTxOut(value, script))
	p.States[n-1] = stateHash
	return n, nil
}

// AddChange appends a trailing output without state. Nothing may follow it.
func (p *Plan) AddChange(script []byte, value int64) error {
	if _, err := p.AddOutput(script, value, nil); err != nil {
		return err
	}
	out := txpreimage.OutputOf(p.Tx.TxOut[len(p.Tx.TxOut)-1])
	p.change = &out
	return nil
}

// AddStateOutput appends an output with the default postage.
func (p *Plan) AddStateOutput(script []byte, stateHash []byte) (int, error) {
	return p.AddOutput(script, consts.DefaultPostage, stateHash)
}

// Finalize writes the root output and searches a locktime that makes every
// covenant input signable.
func (p *Plan) Finalize(nonceLimit int) error {
	root := commitment.BuildRoot(p.States)
	p.Tx.TxOut[0].PkScript = commitment.RootOutputScript(root)
	if len(p.Covenants) == 0 {
		return nil
	}
	preimages, err := FindNonce(p.Tx, p.PrevOuts, p.Covenants, nonceLimit)
	if err != nil {
		return err
	}
	p.Preimages = preimages
	return nil
}

// Preimage returns the preimage found for covenant input i.
func (p *Plan) Preimage(i int) *sighash.Preimage {
	for j, c := range p.Covenants {
		if c.InputIndex == i {
			return p.Preimages[j]
		}
	}
	return nil
}

// Env builds the environment of covenant input i.
func (p *Plan) Env(i int) *actions.Env {
	c := p.covenant(i)
	env := NewEnv(p.Tx, i, p.PrevOuts, c.Leaf, p.Preimage(i))
	env.Change = p.change
	return env
}

// Checker returns the checker of covenant input i, for signing.
func (p *Plan) Checker(i int) *sighash.TxChecker {
	return NewChecker(p.Tx, i, p.PrevOuts, p.covenant(i).Leaf)
}

func (p *Plan) covenant(i int) Covenant {
	for _, c := range p.Covenants {
		if c.InputIndex == i {
			return c
		}
	}
	return Covenant{InputIndex: i}
}
