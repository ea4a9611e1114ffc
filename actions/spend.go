// Package actions holds the per-kind entry points. Each one opens the
// sighash of its own input, proves lineage and previous state, applies the
// rule of its kind and rebuilds the outputs it is responsible for.
package actions

import (
	"errors"
	"fmt"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

var (
	ErrUnknownSpend  = errors.New("unknown spend kind")
	ErrSpendMismatch = errors.New("spend kind does not match its witness")
)

// Spend is one input to verify: its kind discriminates exactly one of the
// witness pointers.
type Spend struct {
	Kind uint8 `json:"kind"`
	Env  *Env  `json:"env"`

	ClosedMint      *ClosedMint      `json:"closedMint,omitempty"`
	OpenMint        *OpenMint        `json:"openMint,omitempty"`
	NftOpenMint     *NftOpenMint     `json:"nftOpenMint,omitempty"`
	ParallelMint    *ParallelMint    `json:"parallelMint,omitempty"`
	TokenTransfer   *TokenTransfer   `json:"tokenTransfer,omitempty"`
	NftTransfer     *NftTransfer     `json:"nftTransfer,omitempty"`
	GuardRelease    *GuardRelease    `json:"guardRelease,omitempty"`
	NftGuardRelease *NftGuardRelease `json:"nftGuardRelease,omitempty"`
}

// Typed is implemented by every witness.
type Typed interface {
	GetTypeID() uint8
}

// NewSpend wraps a witness in a Spend of its kind.
func NewSpend(env *Env, w Typed) (*Spend, error) {
	s := &Spend{Kind: w.GetTypeID(), Env: env}
	switch w := w.(type) {
	case *ClosedMint:
		s.ClosedMint = w
	case *OpenMint:
		s.OpenMint = w
	case *NftOpenMint:
		s.NftOpenMint = w
	case *ParallelMint:
		s.ParallelMint = w
	case *TokenTransfer:
		s.TokenTransfer = w
	case *NftTransfer:
		s.NftTransfer = w
	case *GuardRelease:
		s.GuardRelease = w
	case *NftGuardRelease:
		s.NftGuardRelease = w
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownSpend, w)
	}
	return s, nil
}

// Witness returns the witness selected by Kind.
func (s *Spend) Witness() (Typed, error) {
	var w Typed
	switch s.Kind {
	case consts.ClosedMinterID:
		w = s.ClosedMint
	case consts.OpenMinterID:
		w = s.OpenMint
	case consts.NftOpenMinterID:
		w = s.NftOpenMint
	case consts.NftParallelID:
		w = s.ParallelMint
	case consts.CAT20ID:
		w = s.TokenTransfer
	case consts.CAT721ID:
		w = s.NftTransfer
	case consts.GuardID:
		w = s.GuardRelease
	case consts.NftGuardID:
		w = s.NftGuardRelease
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSpend, s.Kind)
	}
	if isNil(w) {
		return nil, fmt.Errorf("%w (kind=%s)", ErrSpendMismatch, consts.KindName(s.Kind))
	}
	return w, nil
}

func isNil(w Typed) bool {
	switch w := w.(type) {
	case *ClosedMint:
		return w == nil
	case *OpenMint:
		return w == nil
	case *NftOpenMint:
		return w == nil
	case *ParallelMint:
		return w == nil
	case *TokenTransfer:
		return w == nil
	case *NftTransfer:
		return w == nil
	case *GuardRelease:
		return w == nil
	case *NftGuardRelease:
		return w == nil
	}
	return w == nil
}

// Execute runs the entry point of the spend's kind.
func (s *Spend) Execute() (*Result, error) {
	w, err := s.Witness()
	if err != nil {
		return nil, err
	}
	switch w := w.(type) {
	case *ClosedMint:
		return ClosedMinterMint(s.Env, w)
	case *OpenMint:
		return OpenMinterMint(s.Env, w)
	case *NftOpenMint:
		return NftOpenMinterMint(s.Env, w)
	case *ParallelMint:
		return ParallelMinterMint(s.Env, w)
	case *TokenTransfer:
		return TokenUnlock(s.Env, w)
	case *NftTransfer:
		return NftUnlock(s.Env, w)
	case *GuardRelease:
		return GuardUnlock(s.Env, w)
	case *NftGuardRelease:
		return NftGuardUnlock(s.Env, w)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownSpend, w)
	}
}
