package zk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

// TxidProver produces groth16 txid attestations for preimages of one
// length. Setup is trusted and meant for tooling and tests.
type TxidProver struct {
	preimageLen int
	ccs         constraint.ConstraintSystem
	pk          groth16.ProvingKey
	vk          *groth16bn254.VerifyingKey
}

func SetupTxidProver(preimageLen int) (*TxidProver, error) {
	if preimageLen <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrPreimageLength, preimageLen)
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, NewTxidCircuit(preimageLen))
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	vkBN, ok := vk.(*groth16bn254.VerifyingKey)
	if !ok {
		return nil, fmt.Errorf("unexpected verifying key type %T", vk)
	}
	return &TxidProver{preimageLen: preimageLen, ccs: ccs, pk: pk, vk: vkBN}, nil
}

func (p *TxidProver) PreimageLen() int { return p.preimageLen }

func (p *TxidProver) Constraints() int { return p.ccs.GetNbConstraints() }

func (p *TxidProver) VerifyingKey() *groth16bn254.VerifyingKey { return p.vk }

func (p *TxidProver) WriteVerifyingKey(w io.Writer) error {
	_, err := p.vk.WriteTo(w)
	return err
}

// Prove attests raw and returns the envelope together with the txid it
// proves.
func (p *TxidProver) Prove(raw []byte) (*Envelope, []byte, error) {
	if len(raw) != p.preimageLen {
		return nil, nil, fmt.Errorf("%w: got=%d expected=%d", ErrPreimageLength, len(raw), p.preimageLen)
	}
	assignment, txid, err := NewTxidAssignment(raw)
	if err != nil {
		return nil, nil, err
	}
	full, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("new witness: %w", err)
	}
	public, err := full.Public()
	if err != nil {
		return nil, nil, fmt.Errorf("public witness: %w", err)
	}
	publicBytes, err := public.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public witness: %w", err)
	}

	proof, err := groth16.Prove(p.ccs, p.pk, full)
	if err != nil {
		return nil, nil, fmt.Errorf("prove: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, nil, fmt.Errorf("serialize proof: %w", err)
	}
	return &Envelope{
		ProofType:     consts.ProofTypeGroth16,
		CircuitID:     consts.ProofCircuitTxidV1,
		Proof:         buf.Bytes(),
		PublicWitness: publicBytes,
	}, txid, nil
}
