package zk

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	bn254fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	plonkbn254 "github.com/consensys/gnark/backend/plonk/bn254"
	"github.com/consensys/gnark/backend/witness"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

type Config struct {
	Groth16VerifyingKeyPath string
	PlonkVerifyingKeyPath   string
	RequiredCircuitID       string
}

// Verifier checks txid attestations against the verifying keys it holds.
// It is safe for concurrent use once built.
type Verifier struct {
	groth16VK         *groth16bn254.VerifyingKey
	plonkVK           *plonkbn254.VerifyingKey
	requiredCircuitID string
}

func NewVerifier(cfg Config) (*Verifier, error) {
	var (
		g   *groth16bn254.VerifyingKey
		p   *plonkbn254.VerifyingKey
		err error
	)
	if path := strings.TrimSpace(cfg.Groth16VerifyingKeyPath); path != "" {
		if g, err = loadGroth16VK(path); err != nil {
			return nil, fmt.Errorf("load groth16 vk: %w", err)
		}
	}
	if path := strings.TrimSpace(cfg.PlonkVerifyingKeyPath); path != "" {
		if p, err = loadPlonkVK(path); err != nil {
			return nil, fmt.Errorf("load plonk vk: %w", err)
		}
	}
	return NewVerifierWithKeys(g, p, cfg.RequiredCircuitID)
}

// NewVerifierWithKeys builds a verifier from keys already in memory. At
// least one key must be set.
func NewVerifierWithKeys(g *groth16bn254.VerifyingKey, p *plonkbn254.VerifyingKey, requiredCircuitID string) (*Verifier, error) {
	if g == nil && p == nil {
		return nil, ErrVerifierUnavailable
	}
	v := &Verifier{
		groth16VK:         g,
		plonkVK:           p,
		requiredCircuitID: strings.TrimSpace(requiredCircuitID),
	}
	if v.requiredCircuitID != "" && !isSupportedCircuitID(v.requiredCircuitID) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCircuit, v.requiredCircuitID)
	}
	return v, nil
}

// VerifyTxid checks that blob is an envelope proving knowledge of a
// transaction whose txid, in hash byte order, is txid.
func (v *Verifier) VerifyTxid(blob []byte, txid []byte) error {
	e, err := ParseEnvelope(blob)
	if err != nil {
		return err
	}
	if err := v.Verify(e.ProofType, e.CircuitID, e.Proof, txid, e.PublicWitness); err != nil {
		if isEnvelopeError(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}

func (v *Verifier) Verify(
	proofType uint8,
	circuitID string,
	proof []byte,
	digest []byte,
	publicWitness []byte,
) error {
	circuitID = strings.TrimSpace(circuitID)
	if v.requiredCircuitID != "" && circuitID != v.requiredCircuitID {
		return ErrCircuitMismatch
	}
	if !isSupportedCircuitID(circuitID) {
		return ErrUnsupportedCircuit
	}

	switch proofType {
	case consts.ProofTypeGroth16:
		if v.groth16VK == nil {
			return ErrVerifierUnavailable
		}
		return verifyGroth16(v.groth16VK, proof, digest, publicWitness)
	case consts.ProofTypePlonk:
		if v.plonkVK == nil {
			return ErrVerifierUnavailable
		}
		return verifyPlonk(v.plonkVK, proof, digest, publicWitness)
	default:
		return ErrProofTypeMismatch
	}
}

func isEnvelopeError(err error) bool {
	for _, target := range []error{
		ErrInvalidEnvelope,
		ErrVerifierUnavailable,
		ErrUnsupportedCircuit,
		ErrCircuitMismatch,
		ErrProofTypeMismatch,
		ErrPublicInputsMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func loadGroth16VK(path string) (*groth16bn254.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vk := new(groth16bn254.VerifyingKey)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, err
	}
	return vk, nil
}

func loadPlonkVK(path string) (*plonkbn254.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vk := new(plonkbn254.VerifyingKey)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, err
	}
	return vk, nil
}

func verifyGroth16(vk *groth16bn254.VerifyingKey, proofBytes, digest, publicWitnessBytes []byte) error {
	proof := new(groth16bn254.Proof)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return err
	}
	publicWitness, err := buildPublicWitnessVector(digest, publicWitnessBytes)
	if err != nil {
		return err
	}
	return groth16bn254.Verify(proof, vk, publicWitness)
}

func verifyPlonk(vk *plonkbn254.VerifyingKey, proofBytes, digest, publicWitnessBytes []byte) error {
	proof := new(plonkbn254.Proof)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return err
	}
	publicWitness, err := buildPublicWitnessVector(digest, publicWitnessBytes)
	if err != nil {
		return err
	}
	return plonkbn254.Verify(proof, vk, publicWitness)
}

// buildPublicWitnessVector decodes the public witness and requires it to be
// exactly the digest, one byte per field element.
func buildPublicWitnessVector(digest []byte, publicWitnessBytes []byte) (bn254fr.Vector, error) {
	if len(publicWitnessBytes) == 0 || len(digest) != TxidLen {
		return nil, ErrInvalidEnvelope
	}

	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	if err := w.UnmarshalBinary(publicWitnessBytes); err != nil {
		return nil, err
	}
	if pub, err := w.Public(); err == nil {
		w = pub
	}

	vec, ok := w.Vector().(bn254fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected witness vector type %T", w.Vector())
	}
	if len(vec) != TxidLen {
		return nil, fmt.Errorf("%w: public witness has %d elements", ErrInvalidEnvelope, len(vec))
	}
	for i := 0; i < TxidLen; i++ {
		if !vec[i].IsUint64() || vec[i].Uint64() != uint64(digest[i]) {
			return nil, ErrPublicInputsMismatch
		}
	}
	return vec, nil
}

func isSupportedCircuitID(circuitID string) bool {
	return circuitID == consts.ProofCircuitTxidV1
}
