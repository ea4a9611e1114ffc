package zk

import (
	"bytes"
	"encoding/binary"
	"strings"
)

const (
	envelopeMagic     = "CZK1"
	envelopeHeaderLen = 14 // magic(4) + proof_type(1) + circuit_len(1) + proof_len(4) + witness_len(4)
	maxCircuitIDLen   = 63

	// MaxEnvelopeSize bounds a whole envelope.
	MaxEnvelopeSize = 64 * 1024
)

// Envelope is a proof together with the public witness it was produced
// against and the circuit it claims.
type Envelope struct {
	ProofType     uint8
	CircuitID     string
	Proof         []byte
	PublicWitness []byte
}

// Bytes encodes e as
// magic(4) | proof_type(1) | circuit_len(1) | proof_len(4) | witness_len(4) | circuit_id | proof | public_witness
func (e *Envelope) Bytes() ([]byte, error) {
	circuitID := strings.TrimSpace(e.CircuitID)
	if e.ProofType == 0 || len(e.Proof) == 0 || len(e.PublicWitness) == 0 {
		return nil, ErrInvalidEnvelope
	}
	if !validCircuitID(circuitID) {
		return nil, ErrInvalidEnvelope
	}
	total := envelopeHeaderLen + len(circuitID) + len(e.Proof) + len(e.PublicWitness)
	if total > MaxEnvelopeSize {
		return nil, ErrInvalidEnvelope
	}

	out := make([]byte, 0, total)
	out = append(out, envelopeMagic...)
	out = append(out, e.ProofType)
	out = append(out, byte(len(circuitID)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(e.Proof)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(e.PublicWitness)))
	out = append(out, circuitID...)
	out = append(out, e.Proof...)
	out = append(out, e.PublicWitness...)
	return out, nil
}

// ParseEnvelope decodes blob, rejecting any length that does not add up.
func ParseEnvelope(blob []byte) (*Envelope, error) {
	if len(blob) < envelopeHeaderLen || len(blob) > MaxEnvelopeSize {
		return nil, ErrInvalidEnvelope
	}
	if !bytes.Equal(blob[:len(envelopeMagic)], []byte(envelopeMagic)) {
		return nil, ErrInvalidEnvelope
	}
	proofType := blob[4]
	circuitLen := int(blob[5])
	proofLen := int(binary.BigEndian.Uint32(blob[6:10]))
	witnessLen := int(binary.BigEndian.Uint32(blob[10:14]))
	if proofType == 0 || circuitLen == 0 || circuitLen > maxCircuitIDLen || proofLen <= 0 || witnessLen <= 0 {
		return nil, ErrInvalidEnvelope
	}
	if len(blob) != envelopeHeaderLen+circuitLen+proofLen+witnessLen {
		return nil, ErrInvalidEnvelope
	}

	circuitEnd := envelopeHeaderLen + circuitLen
	proofEnd := circuitEnd + proofLen
	e := &Envelope{
		ProofType:     proofType,
		CircuitID:     string(blob[envelopeHeaderLen:circuitEnd]),
		Proof:         bytes.Clone(blob[circuitEnd:proofEnd]),
		PublicWitness: bytes.Clone(blob[proofEnd:]),
	}
	if !validCircuitID(e.CircuitID) {
		return nil, ErrInvalidEnvelope
	}
	return e, nil
}

func validCircuitID(circuitID string) bool {
	if len(circuitID) == 0 || len(circuitID) > maxCircuitIDLen {
		return false
	}
	for _, r := range circuitID {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			continue
		}
		return false
	}
	return true
}
