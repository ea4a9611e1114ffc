// Package sighash reconstructs the BIP-341/342 signature message of the
// spending transaction from witness fields and derives the only valid
// signature for it under the generator point, so that a covenant can trust
// facts about its own transaction once that signature verifies.
package sighash

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

const (
	sigHashEpoch   = 0x00
	sigHashDefault = 0x00

	// SpendTypeTapscript is ext_flag=1 without annex.
	SpendTypeTapscript  = 0x02
	KeyVersionTapscript = 0x00

	// MaxELastByte bounds the carried low byte of the challenge.
	MaxELastByte = 127

	ChallengeLen  = 32
	SignatureLen  = 64
	messagePrefix = 2
	preimageLen   = messagePrefix + 4 + 4 + 5*consts.Hash256Len + 1 + 4 + consts.Hash256Len + 1 + 4
)

// GeneratorXOnly is the x coordinate of the secp256k1 generator G. It is
// both the public key and the nonce point of every reconstructed signature.
var GeneratorXOnly = [32]byte{
	0x79, 0xbe, 0x66, 0x7e, 0xf9, 0xdc, 0xbb, 0xac,
	0x55, 0xa0, 0x62, 0x95, 0xce, 0x87, 0x0b, 0x07,
	0x02, 0x9b, 0xfc, 0xdb, 0x2d, 0xce, 0x28, 0xd9,
	0x59, 0xf2, 0x81, 0x5b, 0x16, 0xf8, 0x17, 0x98,
}

// BlankCodeSepPos is the code separator position when none was executed.
var BlankCodeSepPos = []byte{0xff, 0xff, 0xff, 0xff}

var (
	ErrInvalidField      = fmt.Errorf("%w: invalid sighash preimage field", consts.ErrStructuralMismatch)
	ErrChallengeMismatch = fmt.Errorf("%w: carried challenge does not match message", consts.ErrSignatureInvalid)
	ErrChallengeLowByte  = fmt.Errorf("%w: challenge low byte out of range", consts.ErrSignatureInvalid)
	ErrScalarOverflow    = fmt.Errorf("%w: signature scalar overflows group order", consts.ErrSignatureInvalid)
	ErrBadSignature      = fmt.Errorf("%w: schnorr verification failed", consts.ErrSignatureInvalid)
)

// Preimage holds the witness-supplied fields of the signature message plus
// the challenge split into its upper 31 bytes and its low byte.
type Preimage struct {
	TxVersion       []byte `json:"txVersion"`
	LockTime        []byte `json:"lockTime"`
	ShaPrevouts     []byte `json:"shaPrevouts"`
	ShaSpentAmounts []byte `json:"shaSpentAmounts"`
	ShaSpentScripts []byte `json:"shaSpentScripts"`
	ShaSequences    []byte `json:"shaSequences"`
	ShaOutputs      []byte `json:"shaOutputs"`
	SpendType       []byte `json:"spendType"`
	InputIndex      []byte `json:"inputIndex"`
	TapLeafHash     []byte `json:"tapLeafHash"`
	KeyVersion      []byte `json:"keyVersion"`
	CodeSepPos      []byte `json:"codeSepPos"`

	E         []byte `json:"e"`
	ELastByte byte   `json:"eLastByte"`
}

func (p *Preimage) check() error {
	fields := []struct {
		name string
		b    []byte
		want int
	}{
		{"txVersion", p.TxVersion, consts.TxVersionLen},
		{"lockTime", p.LockTime, consts.LockTimeLen},
		{"shaPrevouts", p.ShaPrevouts, consts.Hash256Len},
		{"shaSpentAmounts", p.ShaSpentAmounts, consts.Hash256Len},
		{"shaSpentScripts", p.ShaSpentScripts, consts.Hash256Len},
		{"shaSequences", p.ShaSequences, consts.Hash256Len},
		{"shaOutputs", p.ShaOutputs, consts.Hash256Len},
		{"spendType", p.SpendType, 1},
		{"inputIndex", p.InputIndex, 4},
		{"tapLeafHash", p.TapLeafHash, consts.Hash256Len},
		{"keyVersion", p.KeyVersion, 1},
		{"codeSepPos", p.CodeSepPos, 4},
	}
	for _, f := range fields {
		if len(f.b) != f.want {
			return fmt.Errorf("%w: %s length got=%d want=%d", ErrInvalidField, f.name, len(f.b), f.want)
		}
	}
	return nil
}

// BuildMessagePreimage returns epoch | hash_type | the twelve fields, the
// exact byte string hashed under the TapSighash tag.
func BuildMessagePreimage(p *Preimage) ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	b := make([]byte, 0, preimageLen)
	b = append(b, sigHashEpoch, sigHashDefault)
	b = append(b, p.TxVersion...)
	b = append(b, p.LockTime...)
	b = append(b, p.ShaPrevouts...)
	b = append(b, p.ShaSpentAmounts...)
	b = append(b, p.ShaSpentScripts...)
	b = append(b, p.ShaSequences...)
	b = append(b, p.ShaOutputs...)
	b = append(b, p.SpendType...)
	b = append(b, p.InputIndex...)
	b = append(b, p.TapLeafHash...)
	b = append(b, p.KeyVersion...)
	b = append(b, p.CodeSepPos...)
	return b, nil
}

// Message reconstructs the 32-byte signature message.
func Message(p *Preimage) (chainhash.Hash, error) {
	b, err := BuildMessagePreimage(p)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *chainhash.TaggedHash(chainhash.TagTapSighash, b), nil
}

// Challenge derives e = TaggedHash("BIP0340/challenge", G.x | G.x | m) mod n.
func Challenge(msg chainhash.Hash) [ChallengeLen]byte {
	h := chainhash.TaggedHash(chainhash.TagBIP0340Challenge, GeneratorXOnly[:], GeneratorXOnly[:], msg[:])
	var e btcec.ModNScalar
	e.SetByteSlice(h[:])
	return e.Bytes()
}

// Signature returns the signature (R=G, s=e+1) valid for the message whose
// challenge is e under public key G.
func Signature(e [ChallengeLen]byte) ([]byte, error) {
	if e[ChallengeLen-1] >= MaxELastByte {
		return nil, fmt.Errorf("%w (low byte=%d)", ErrChallengeLowByte, e[ChallengeLen-1])
	}
	s := e
	s[ChallengeLen-1]++

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(s[:]); overflow {
		return nil, ErrScalarOverflow
	}

	sig := make([]byte, 0, SignatureLen)
	sig = append(sig, GeneratorXOnly[:]...)
	return append(sig, s[:]...), nil
}

// SplitChallenge produces the E/ELastByte witness pair for e.
func SplitChallenge(e [ChallengeLen]byte) ([]byte, byte) {
	return append([]byte(nil), e[:ChallengeLen-1]...), e[ChallengeLen-1]
}

// Verify reconstructs the message, checks the carried challenge, derives the
// signature and hands it to checker. It returns the message only once every
// step succeeded.
func Verify(p *Preimage, checker Checker) (chainhash.Hash, error) {
	msg, err := Message(p)
	if err != nil {
		return chainhash.Hash{}, err
	}
	e := Challenge(msg)
	if len(p.E) != ChallengeLen-1 ||
		!bytes.Equal(p.E, e[:ChallengeLen-1]) ||
		p.ELastByte != e[ChallengeLen-1] {
		return chainhash.Hash{}, ErrChallengeMismatch
	}
	sig, err := Signature(e)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if err := checker.CheckSig(msg, sig, GeneratorXOnly[:]); err != nil {
		return chainhash.Hash{}, err
	}
	return msg, nil
}
