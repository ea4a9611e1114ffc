package consts

const (
	Name    = "catvm"
	Version = "v0.1.0"
	// ID is the protocol tag carried in every state-hash-root output.
	ID = "cat"
)

// Transaction shape limits.
const (
	TxInputCountMax     = 6
	TxOutputCountMax    = 6
	StateOutputCountMax = TxOutputCountMax - 1
	GuardTokenTypeMax   = 4
	NextMinterCountMax  = 2
	MaxScriptSize       = 10_000

	DefaultPostage int64 = 330
)

// Fixed byte lengths of preimage fields.
const (
	Hash160Len       = 20
	Hash256Len       = 32
	TxVersionLen     = 4
	LockTimeLen      = 4
	SequenceLen      = 4
	OutputIndexLen   = 4
	OutpointLen      = Hash256Len + OutputIndexLen
	InputLen         = OutpointLen + 1 + SequenceLen
	SatoshisLen      = 8
	OwnerAddrLen     = Hash160Len
	TinyPrefixBlocks = 4
	TinyBlockMaxLen  = 80
)

// Merkle tree shape for the NFT open minter.
const (
	MerkleHeight    = 15
	MerkleProofLen  = MerkleHeight - 1
	MerkleMaxLeaves = 1 << MerkleProofLen
)

// TxidEnvelopeMaxBytes bounds a zk attestation envelope.
const TxidEnvelopeMaxBytes = 64 * 1024
