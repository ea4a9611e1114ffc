package zk

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

func writeFile(path string, b []byte) error {
	return os.WriteFile(path, b, 0o600)
}

func TestEnvelopeLayout(t *testing.T) {
	require := require.New(t)
	e := &Envelope{
		ProofType:     consts.ProofTypeGroth16,
		CircuitID:     consts.ProofCircuitTxidV1,
		Proof:         []byte{1, 2, 3},
		PublicWitness: []byte{4, 5},
	}
	b, err := e.Bytes()
	require.NoError(err)

	offset := 0
	require.Equal([]byte("CZK1"), b[offset:offset+4])
	offset += 4
	require.Equal(consts.ProofTypeGroth16, b[offset])
	offset++
	require.Equal(byte(len(consts.ProofCircuitTxidV1)), b[offset])
	offset++
	require.Equal(uint32(3), binary.BigEndian.Uint32(b[offset:]))
	offset += 4
	require.Equal(uint32(2), binary.BigEndian.Uint32(b[offset:]))
	offset += 4
	require.Equal(consts.ProofCircuitTxidV1, string(b[offset:offset+len(consts.ProofCircuitTxidV1)]))
	offset += len(consts.ProofCircuitTxidV1)
	require.Equal([]byte{1, 2, 3, 4, 5}, b[offset:])

	got, err := ParseEnvelope(b)
	require.NoError(err)
	require.Equal(e, got)
}

func TestParseEnvelopeRejects(t *testing.T) {
	valid := &Envelope{
		ProofType:     consts.ProofTypeGroth16,
		CircuitID:     consts.ProofCircuitTxidV1,
		Proof:         []byte{1},
		PublicWitness: []byte{2},
	}
	good, err := valid.Bytes()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:envelopeHeaderLen-1] }},
		{"magic", func(b []byte) []byte { b[0] = 'V'; return b }},
		{"zero proof type", func(b []byte) []byte { b[4] = 0; return b }},
		{"trailing byte", func(b []byte) []byte { return append(b, 0) }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"bad circuit id", func(b []byte) []byte { b[envelopeHeaderLen] = 'A'; return b }},
		{"zero circuit len", func(b []byte) []byte { b[5] = 0; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			_, err := ParseEnvelope(b)
			require.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}

	_, err = (&Envelope{ProofType: 1, CircuitID: "Bad", Proof: []byte{1}, PublicWitness: []byte{1}}).Bytes()
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}
