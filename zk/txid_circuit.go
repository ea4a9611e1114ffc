package zk

import (
	"fmt"

	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/consensys/gnark/frontend"
	gnarksha2 "github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/uints"
)

const TxidLen = hashing.HashLen

// TxidCircuit proves that Txid == SHA256(SHA256(Preimage)), the txid of a
// non-witness transaction serialization. Preimage is private and its length
// is fixed when the circuit is compiled; Txid is public, in hash byte order.
type TxidCircuit struct {
	Preimage []uints.U8
	Txid     [TxidLen]uints.U8 `gnark:",public"`
}

// NewTxidCircuit returns a circuit shape for preimages of n bytes.
func NewTxidCircuit(n int) *TxidCircuit {
	return &TxidCircuit{Preimage: make([]uints.U8, n)}
}

func (c *TxidCircuit) Define(api frontend.API) error {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return err
	}
	inner, err := gnarksha2.New(api)
	if err != nil {
		return err
	}
	inner.Write(c.Preimage)
	outer, err := gnarksha2.New(api)
	if err != nil {
		return err
	}
	outer.Write(inner.Sum())
	sum := outer.Sum()
	if len(sum) != TxidLen {
		return fmt.Errorf("unexpected digest size: %d", len(sum))
	}
	for i := 0; i < TxidLen; i++ {
		uapi.ByteAssertEq(c.Txid[i], sum[i])
	}
	return nil
}

// NewTxidAssignment assigns raw and its double-SHA256.
func NewTxidAssignment(raw []byte) (*TxidCircuit, []byte, error) {
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: empty preimage", ErrPreimageLength)
	}
	txid := hashing.ComputeHash256(hashing.ComputeHash256(raw))

	out := &TxidCircuit{Preimage: uints.NewU8Array(raw)}
	copy(out.Txid[:], uints.NewU8Array(txid))
	return out, txid, nil
}
