package builder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

var (
	ErrUnknownStates   = errors.New("no state hash list recorded for transaction")
	ErrDoubleSpend     = errors.New("output already spent")
	ErrUncoveredInput  = errors.New("covenant input has no spend")
	ErrSpendInputIndex = errors.New("spend does not name an input of the transaction")
)

// Built is a finalized transaction together with the spends that must all
// verify for it to be accepted.
type Built struct {
	Tx     *wire.MsgTx
	States commitment.StateHashList
	Spends []*actions.Spend

	// AfterAccept runs once the transaction is recorded.
	AfterAccept func() error
}

// SpendVerifier checks the spends of one transaction.
type SpendVerifier interface {
	VerifySpends(ctx context.Context, spends []*actions.Spend) ([]*actions.Result, error)
}

// Ledger simulates a chain: it records transactions, the state hash list
// each one committed, and accepts a transaction only when every covenant
// spend in it verifies.
type Ledger struct {
	Source     *MemSource
	NonceLimit int
	Log        logging.Logger
	// Verifier, when set, replaces in-order execution of the spends.
	Verifier SpendVerifier

	mu      sync.Mutex
	states  map[chainhash.Hash]commitment.StateHashList
	spent   map[wire.OutPoint]chainhash.Hash
	funding uint32
}

func NewLedger() *Ledger {
	return &Ledger{
		Source:     NewMemSource(),
		NonceLimit: DefaultNonceSearchLimit,
		Log:        logging.NoLog{},
		states:     make(map[chainhash.Hash]commitment.StateHashList),
		spent:      make(map[wire.OutPoint]chainhash.Hash),
	}
}

// Fund creates an output paying value to script out of nothing.
func (l *Ledger) Fund(script []byte, value int64) wire.OutPoint {
	l.mu.Lock()
	l.funding++
	n := l.funding
	l.mu.Unlock()

	var seed chainhash.Hash
	binary.LittleEndian.PutUint32(seed[:], n)
	seed[consts.Hash256Len-1] = 0xfe
	tx := wire.NewMsgTx(txVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&seed, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, script))
	return wire.OutPoint{Hash: l.Source.Add(tx), Index: 0}
}

// Record stores tx without verification and marks its inputs spent.
func (l *Ledger) Record(tx *wire.MsgTx, states commitment.StateHashList) chainhash.Hash {
	txid := l.Source.Add(tx)
	l.mu.Lock()
	l.states[txid] = states
	for _, in := range tx.TxIn {
		l.spent[in.PreviousOutPoint] = txid
	}
	l.mu.Unlock()
	return txid
}

// Unspent fails if any input of tx is already spent.
func (l *Ledger) Unspent(tx *wire.MsgTx) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, in := range tx.TxIn {
		if by, ok := l.spent[in.PreviousOutPoint]; ok {
			return fmt.Errorf("%w: input %d (%s) spent by %s", ErrDoubleSpend, i, in.PreviousOutPoint, by)
		}
	}
	return nil
}

// Accept executes every spend of b and records b.Tx only if its inputs are
// unspent, every input locked by a covenant has a spend and all spends
// verify.
func (l *Ledger) Accept(b *Built) ([]*actions.Result, error) {
	if err := l.Unspent(b.Tx); err != nil {
		return nil, err
	}
	if err := l.covered(b); err != nil {
		return nil, err
	}
	results, err := l.verify(b.Spends)
	if err != nil {
		l.Log.Debug("rejected tx",
			zap.Stringer("tx", b.Tx.TxHash()),
			zap.Error(err),
		)
		return nil, err
	}
	txid := l.Record(b.Tx, b.States)
	if b.AfterAccept != nil {
		if err := b.AfterAccept(); err != nil {
			return nil, err
		}
	}
	l.Log.Debug("accepted tx",
		zap.Stringer("tx", txid),
		zap.Int("spends", len(b.Spends)),
	)
	return results, nil
}

// covered fails unless every input spending a state output has a spend at
// its index.
func (l *Ledger) covered(b *Built) error {
	have := make(map[uint32]bool, len(b.Spends))
	for i, s := range b.Spends {
		if s.Env == nil || s.Env.Preimage == nil || len(s.Env.Preimage.InputIndex) != 4 {
			return fmt.Errorf("%w (spend=%d)", ErrSpendInputIndex, i)
		}
		in := binary.LittleEndian.Uint32(s.Env.Preimage.InputIndex)
		if int(in) >= len(b.Tx.TxIn) {
			return fmt.Errorf("%w (spend=%d input=%d inputs=%d)", ErrSpendInputIndex, i, in, len(b.Tx.TxIn))
		}
		have[in] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, in := range b.Tx.TxIn {
		if have[uint32(i)] || !l.stateOutputLocked(in.PreviousOutPoint) {
			continue
		}
		return fmt.Errorf("%w: input %d (%s)", ErrUncoveredInput, i, in.PreviousOutPoint)
	}
	return nil
}

// stateOutputLocked reports whether op carries a recorded state hash, which
// only covenant outputs do. Callers hold l.mu.
func (l *Ledger) stateOutputLocked(op wire.OutPoint) bool {
	states, ok := l.states[op.Hash]
	if !ok || op.Index == 0 || int(op.Index) > len(states) {
		return false
	}
	return len(states[op.Index-1]) != 0
}

func (l *Ledger) verify(spends []*actions.Spend) ([]*actions.Result, error) {
	if l.Verifier != nil && len(spends) > 0 {
		return l.Verifier.VerifySpends(context.Background(), spends)
	}
	results := make([]*actions.Result, 0, len(spends))
	for i, s := range spends {
		res, err := s.Execute()
		if err != nil {
			return nil, fmt.Errorf("spend %d (%s): %w", i, consts.KindName(s.Kind), err)
		}
		results = append(results, res)
	}
	return results, nil
}

// PrevState returns the state hash list committed by the transaction that
// created op.
func (l *Ledger) PrevState(op wire.OutPoint) (actions.PrevState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	states, ok := l.states[op.Hash]
	if !ok {
		return actions.PrevState{}, fmt.Errorf("%w: %s", ErrUnknownStates, op.Hash)
	}
	return actions.PrevState{Hashes: states}, nil
}

// Output fetches the output at op.
func (l *Ledger) Output(op wire.OutPoint) (*wire.TxOut, error) {
	return PrevOut(context.Background(), l.Source, op)
}
