package builder

import (
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/sighash"
)

// DefaultNonceSearchLimit bounds the locktime values tried by FindNonce.
const DefaultNonceSearchLimit = 4096

var ErrNonceSearchExhausted = errors.New("no locktime yields a usable challenge")

// Covenant names an input of tx spent through a contract leaf.
type Covenant struct {
	InputIndex int
	Leaf       []byte
}

// FindNonce bumps tx.LockTime until the challenge of every covenant input
// admits a signature, trying at most limit values. On success tx carries
// the found locktime and the preimages are returned in covenants order.
func FindNonce(tx *wire.MsgTx, prevOuts []*wire.TxOut, covenants []Covenant, limit int) ([]*sighash.Preimage, error) {
	if limit <= 0 {
		limit = DefaultNonceSearchLimit
	}
	start := tx.LockTime
	for attempt := 0; attempt < limit; attempt++ {
		if uint64(start)+uint64(attempt) > math.MaxUint32 {
			break
		}
		tx.LockTime = start + uint32(attempt)
		preimages, ok, err := tryNonce(tx, prevOuts, covenants)
		if err != nil {
			return nil, err
		}
		if ok {
			return preimages, nil
		}
	}
	tx.LockTime = start
	return nil, fmt.Errorf("%w (start=%d tried=%d)", ErrNonceSearchExhausted, start, limit)
}

func tryNonce(tx *wire.MsgTx, prevOuts []*wire.TxOut, covenants []Covenant) ([]*sighash.Preimage, bool, error) {
	preimages := make([]*sighash.Preimage, 0, len(covenants))
	for _, c := range covenants {
		p, err := sighash.FromTx(tx, c.InputIndex, prevOuts, c.Leaf)
		if err != nil {
			return nil, false, err
		}
		if !p.Ready() {
			return nil, false, nil
		}
		preimages = append(preimages, p)
	}
	return preimages, true, nil
}
