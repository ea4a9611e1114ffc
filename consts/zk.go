package consts

const (
	ProofTypeGroth16 uint8 = 1
	ProofTypePlonk   uint8 = 2
)

// ProofCircuitTxidV1 attests that a private transaction serialization
// double-SHA256s to a public txid.
const ProofCircuitTxidV1 = "cat-txid-v1"
