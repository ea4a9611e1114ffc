package consts

import "errors"

// Verification failures. Every rejection wraps exactly one of these.
var (
	ErrStructuralMismatch    = errors.New("structural mismatch")
	ErrConservationViolation = errors.New("conservation violation")
	ErrSupplyExceeded        = errors.New("supply exceeded")
	ErrSignatureInvalid      = errors.New("signature invalid")
)
