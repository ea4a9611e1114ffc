package zk

import "errors"

var (
	ErrInvalidEnvelope      = errors.New("invalid proof envelope")
	ErrVerifierUnavailable  = errors.New("proof verifier unavailable")
	ErrUnsupportedCircuit   = errors.New("unsupported proof circuit")
	ErrCircuitMismatch      = errors.New("proof circuit mismatch")
	ErrProofTypeMismatch    = errors.New("proof type mismatch")
	ErrPublicInputsMismatch = errors.New("proof public inputs mismatch")
	ErrVerificationFailed   = errors.New("proof verification failed")
	ErrPreimageLength       = errors.New("preimage length does not match circuit")
)
