package actions

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/sighash"
)

const MaxResultSize = 1024

var ErrUnmarshalEmptyResult = errors.New("cannot unmarshal empty bytes as result")

// Result is what an accepted spend proves, in a form that can be embedded
// next to the witness or logged.
type Result struct {
	Kind       uint8    `json:"kind"`
	InputIndex uint32   `json:"inputIndex"`
	Message    []byte   `json:"message"`
	Root       []byte   `json:"root,omitempty"`
	Minted     uint64   `json:"minted,omitempty"`
	LocalID    uint64   `json:"localId,omitempty"`
	Burned     uint64   `json:"burned,omitempty"`
	NextStates [][]byte `json:"nextStates,omitempty"`
}

func newResult(kind uint8, ctx *sighash.Context) *Result {
	return &Result{
		Kind:       kind,
		InputIndex: uint32(ctx.InputIndex),
		Message:    append([]byte(nil), ctx.Message[:]...),
	}
}

func (r *Result) Bytes() []byte {
	p := &wrappers.Packer{
		Bytes:   make([]byte, 0, 256),
		MaxSize: MaxResultSize,
	}
	p.PackByte(r.Kind)
	p.PackInt(r.InputIndex)
	p.PackBytes(r.Message)
	p.PackBytes(r.Root)
	p.PackLong(r.Minted)
	p.PackLong(r.LocalID)
	p.PackLong(r.Burned)
	p.PackByte(byte(len(r.NextStates)))
	for _, s := range r.NextStates {
		p.PackBytes(s)
	}
	return p.Bytes
}

func UnmarshalResult(b []byte) (*Result, error) {
	if len(b) == 0 {
		return nil, ErrUnmarshalEmptyResult
	}
	p := &wrappers.Packer{Bytes: b}
	r := &Result{
		Kind:       p.UnpackByte(),
		InputIndex: p.UnpackInt(),
		Message:    p.UnpackBytes(),
		Root:       p.UnpackBytes(),
		Minted:     p.UnpackLong(),
		LocalID:    p.UnpackLong(),
		Burned:     p.UnpackLong(),
	}
	n := int(p.UnpackByte())
	if n > consts.NextMinterCountMax {
		return nil, fmt.Errorf("unexpected next state count: %d", n)
	}
	for i := 0; i < n; i++ {
		r.NextStates = append(r.NextStates, p.UnpackBytes())
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if r.Kind > consts.MaxContractKind {
		return nil, fmt.Errorf("unexpected result kind: %d", r.Kind)
	}
	if len(r.Root) == 0 {
		r.Root = nil
	}
	return r, nil
}
