package covenant

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/CATProtocol/cat-token-box-sub000/consts"

	smath "github.com/ava-labs/avalanchego/utils/math"
)

var ErrInvalidParams = errors.New("invalid contract params")

func checkOutpoint(outpoint []byte) error {
	if len(outpoint) != consts.OutpointLen {
		return fmt.Errorf("%w (len=%d)", ErrInvalidOutpoint, len(outpoint))
	}
	return nil
}

// ClosedMinterParams are the constants of a closed CAT20 minter.
type ClosedMinterParams struct {
	GenesisOutpoint []byte `json:"genesisOutpoint"`
	IssuerAddr      []byte `json:"issuerAddr"`
}

func (c *ClosedMinterParams) Validate() error {
	if err := checkOutpoint(c.GenesisOutpoint); err != nil {
		return err
	}
	return checkOwner(c.IssuerAddr)
}

func (c *ClosedMinterParams) Contract() (*Contract, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewContract(consts.ClosedMinterID, encode(0, func(p *wrappers.Packer) {
		p.PackFixedBytes(c.GenesisOutpoint)
		p.PackFixedBytes(c.IssuerAddr)
	}))
}

// OpenMinterParams are the constants of an open CAT20 minter. The premine
// amount is PremineCount*Limit and may be claimed once, by PremineAddr, on
// the first mint.
type OpenMinterParams struct {
	GenesisOutpoint []byte `json:"genesisOutpoint"`
	MaxCount        uint64 `json:"maxCount"`
	PremineCount    uint64 `json:"premineCount"`
	Limit           uint64 `json:"limit"`
	PremineAddr     []byte `json:"premineAddr"`
}

func (c *OpenMinterParams) Validate() error {
	if err := checkOutpoint(c.GenesisOutpoint); err != nil {
		return err
	}
	if c.MaxCount == 0 || c.Limit == 0 {
		return fmt.Errorf("%w: maxCount and limit must be > 0", ErrInvalidParams)
	}
	if c.PremineCount > c.MaxCount {
		return fmt.Errorf("%w: premineCount=%d > maxCount=%d", ErrInvalidParams, c.PremineCount, c.MaxCount)
	}
	if _, err := smath.Mul(c.MaxCount, c.Limit); err != nil {
		return fmt.Errorf("%w: max supply overflows", ErrInvalidParams)
	}
	if c.PremineCount > 0 {
		return checkOwner(c.PremineAddr)
	}
	return nil
}

// Premine is the amount minted by the premine mint.
func (c *OpenMinterParams) Premine() uint64 {
	return c.PremineCount * c.Limit
}

// InitialState is the state of the minter created by the genesis reveal.
func (c *OpenMinterParams) InitialState(tokenScript []byte) *OpenMinterState {
	return &OpenMinterState{
		TokenScript:    tokenScript,
		RemainingCount: c.MaxCount - c.PremineCount,
	}
}

func (c *OpenMinterParams) Contract() (*Contract, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewContract(consts.OpenMinterID, encode(0, func(p *wrappers.Packer) {
		p.PackFixedBytes(c.GenesisOutpoint)
		p.PackLong(c.MaxCount)
		p.PackLong(c.PremineCount)
		p.PackLong(c.Limit)
		p.PackBytes(c.PremineAddr)
	}))
}

// NftOpenMinterParams are the constants of a Merkle-capped NFT minter.
type NftOpenMinterParams struct {
	GenesisOutpoint []byte `json:"genesisOutpoint"`
	Max             uint64 `json:"max"`
}

func (c *NftOpenMinterParams) Validate() error {
	if err := checkOutpoint(c.GenesisOutpoint); err != nil {
		return err
	}
	if c.Max == 0 || c.Max > consts.MerkleMaxLeaves {
		return fmt.Errorf("%w: max=%d must be in [1,%d]", ErrInvalidParams, c.Max, consts.MerkleMaxLeaves)
	}
	return nil
}

func (c *NftOpenMinterParams) Contract() (*Contract, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewContract(consts.NftOpenMinterID, encode(0, func(p *wrappers.Packer) {
		p.PackFixedBytes(c.GenesisOutpoint)
		p.PackLong(c.Max)
	}))
}

// NftParallelMinterParams are the constants of an issuer-controlled NFT
// minter.
type NftParallelMinterParams struct {
	GenesisOutpoint []byte `json:"genesisOutpoint"`
	IssuerAddr      []byte `json:"issuerAddr"`
	Max             uint64 `json:"max"`
}

func (c *NftParallelMinterParams) Validate() error {
	if err := checkOutpoint(c.GenesisOutpoint); err != nil {
		return err
	}
	if c.Max == 0 {
		return fmt.Errorf("%w: max must be > 0", ErrInvalidParams)
	}
	return checkOwner(c.IssuerAddr)
}

func (c *NftParallelMinterParams) Contract() (*Contract, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewContract(consts.NftParallelID, encode(0, func(p *wrappers.Packer) {
		p.PackFixedBytes(c.GenesisOutpoint)
		p.PackFixedBytes(c.IssuerAddr)
		p.PackLong(c.Max)
	}))
}

// AssetParams are the constants of a CAT20 or CAT721 asset: the minter
// script it descends from and the guard script that clears its transfers.
type AssetParams struct {
	MinterScript []byte `json:"minterScript"`
	GuardScript  []byte `json:"guardScript"`
}

func (c *AssetParams) Validate() error {
	if err := checkScript("minterScript", c.MinterScript); err != nil {
		return err
	}
	return checkScript("guardScript", c.GuardScript)
}

func (c *AssetParams) contract(kind uint8) (*Contract, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewContract(kind, encode(0, func(p *wrappers.Packer) {
		p.PackBytes(c.MinterScript)
		p.PackBytes(c.GuardScript)
	}))
}

// CAT20Contract derives the fungible token script.
func (c *AssetParams) CAT20Contract() (*Contract, error) {
	return c.contract(consts.CAT20ID)
}

// CAT721Contract derives the NFT script.
func (c *AssetParams) CAT721Contract() (*Contract, error) {
	return c.contract(consts.CAT721ID)
}

// GuardContract is the single fungible guard contract.
func GuardContract() (*Contract, error) {
	return NewContract(consts.GuardID, nil)
}

// NftGuardContract is the single NFT guard contract.
func NftGuardContract() (*Contract, error) {
	return NewContract(consts.NftGuardID, nil)
}

// CheckScript asserts that the trusted spent script is c's script.
func (c *Contract) CheckScript(spent []byte) error {
	if string(c.Script) != string(spent) {
		return fmt.Errorf("%w (kind=%s)", ErrScriptMismatch, consts.KindName(c.Kind))
	}
	return nil
}
