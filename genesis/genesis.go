// Package genesis describes a token or collection deployment as a JSON
// document and derives everything its first reveal commits to.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ava-labs/avalanchego/utils/formatting"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/CATProtocol/cat-token-box-sub000/builder"
	"github.com/CATProtocol/cat-token-box-sub000/commitment"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"

	smath "github.com/ava-labs/avalanchego/utils/math"
)

const (
	KindCAT20Open      = "cat20-open"
	KindCAT20Closed    = "cat20-closed"
	KindCAT721Open     = "cat721-open"
	KindCAT721Parallel = "cat721-parallel"
)

const (
	maxNameLen   = 64
	maxSymbolLen = 16
)

var ErrInvalidGenesis = errors.New("invalid genesis")

// HexBytes is a byte string written as 0x-prefixed hex.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	s, err := formatting.Encode(formatting.HexNC, h)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*h = nil
		return nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	v, err := formatting.Decode(formatting.HexNC, s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

type Genesis struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`

	// GenesisTxid is in display (reversed) order, as block explorers show it.
	GenesisTxid string `json:"genesisTxid"`
	GenesisVout uint32 `json:"genesisVout"`

	// cat20-open
	MaxCount     uint64   `json:"maxCount,omitempty"`
	PremineCount uint64   `json:"premineCount,omitempty"`
	Limit        uint64   `json:"limit,omitempty"`
	PremineAddr  HexBytes `json:"premineAddr,omitempty"`

	// cat20-closed and cat721-parallel
	IssuerAddr HexBytes `json:"issuerAddr,omitempty"`

	// cat721-open and cat721-parallel
	Max uint64 `json:"max,omitempty"`
	// cat721-open: one commit script per local id.
	CommitScripts []HexBytes `json:"commitScripts,omitempty"`
}

// Load parses, defaults and validates a genesis document.
func Load(b []byte) (*Genesis, error) {
	g := &Genesis{}
	if err := json.Unmarshal(b, g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	applyDefaults(g)
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func applyDefaults(g *Genesis) {
	g.Kind = strings.ToLower(strings.TrimSpace(g.Kind))
	if g.Kind == "" {
		g.Kind = KindCAT20Open
	}
	g.Name = strings.TrimSpace(g.Name)
	g.Symbol = strings.TrimSpace(g.Symbol)
	if g.Kind == KindCAT721Open && g.Max == 0 {
		g.Max = uint64(len(g.CommitScripts))
	}
}

func (g *Genesis) validate() error {
	if g.Name == "" || len(g.Name) > maxNameLen {
		return fmt.Errorf("%w: name must be 1..%d bytes", ErrInvalidGenesis, maxNameLen)
	}
	if g.Symbol == "" || len(g.Symbol) > maxSymbolLen {
		return fmt.Errorf("%w: symbol must be 1..%d bytes", ErrInvalidGenesis, maxSymbolLen)
	}
	if _, err := g.Outpoint(); err != nil {
		return err
	}
	switch g.Kind {
	case KindCAT20Open:
		if g.MaxCount == 0 || g.Limit == 0 {
			return fmt.Errorf("%w: maxCount and limit must be > 0", ErrInvalidGenesis)
		}
		if g.PremineCount > 0 && len(g.PremineAddr) == 0 {
			return fmt.Errorf("%w: premineAddr required with premineCount", ErrInvalidGenesis)
		}
	case KindCAT20Closed:
		if len(g.IssuerAddr) == 0 {
			return fmt.Errorf("%w: issuerAddr required", ErrInvalidGenesis)
		}
	case KindCAT721Open:
		if len(g.CommitScripts) == 0 {
			return fmt.Errorf("%w: commitScripts required", ErrInvalidGenesis)
		}
		if g.Max != uint64(len(g.CommitScripts)) {
			return fmt.Errorf("%w: max=%d but %d commit scripts", ErrInvalidGenesis, g.Max, len(g.CommitScripts))
		}
	case KindCAT721Parallel:
		if len(g.IssuerAddr) == 0 || g.Max == 0 {
			return fmt.Errorf("%w: issuerAddr and max required", ErrInvalidGenesis)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidGenesis, g.Kind)
	}
	if strings.HasPrefix(g.Kind, "cat721") && g.Decimals != 0 {
		return fmt.Errorf("%w: collections have no decimals", ErrInvalidGenesis)
	}
	return nil
}

// Outpoint is the 36-byte genesis outpoint: txid in hash byte order then
// the little-endian output index.
func (g *Genesis) Outpoint() ([]byte, error) {
	txid, err := chainhash.NewHashFromStr(strings.TrimSpace(g.GenesisTxid))
	if err != nil || len(strings.TrimSpace(g.GenesisTxid)) != 2*consts.Hash256Len {
		return nil, fmt.Errorf("%w: genesisTxid must be %d hex chars", ErrInvalidGenesis, 2*consts.Hash256Len)
	}
	return txpreimage.EncodeOutpoint(*txid, g.GenesisVout), nil
}

// Deployment is what the genesis reveal creates: the minter at output 1
// with its initial state, and the scripts every later spend is checked
// against.
type Deployment struct {
	Kind            string   `json:"kind"`
	GenesisOutpoint HexBytes `json:"genesisOutpoint"`
	MinterScript    HexBytes `json:"minterScript"`
	AssetScript     HexBytes `json:"assetScript"`
	GuardScript     HexBytes `json:"guardScript"`
	MinterState     HexBytes `json:"minterState"`
	MinterStateHash HexBytes `json:"minterStateHash"`
	// StateRoot is the root the reveal commits in its first output.
	StateRoot  HexBytes `json:"stateRoot"`
	MerkleRoot HexBytes `json:"merkleRoot,omitempty"`
	// MaxSupply counts token units for CAT20 and NFTs for CAT721.
	MaxSupply uint64 `json:"maxSupply"`
}

type stateful interface {
	Bytes() []byte
	StateHash() []byte
}

// Derive computes the deployment of g.
func (g *Genesis) Derive() (*Deployment, error) {
	outpoint, err := g.Outpoint()
	if err != nil {
		return nil, err
	}

	var (
		minter *covenant.Contract
		nft    bool
		supply uint64
	)
	switch g.Kind {
	case KindCAT20Open:
		p := &covenant.OpenMinterParams{
			GenesisOutpoint: outpoint,
			MaxCount:        g.MaxCount,
			PremineCount:    g.PremineCount,
			Limit:           g.Limit,
			PremineAddr:     g.PremineAddr,
		}
		if minter, err = p.Contract(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
		}
		if supply, err = smath.Mul(g.MaxCount, g.Limit); err != nil {
			return nil, fmt.Errorf("%w: max supply overflows", ErrInvalidGenesis)
		}
	case KindCAT20Closed:
		p := &covenant.ClosedMinterParams{GenesisOutpoint: outpoint, IssuerAddr: g.IssuerAddr}
		if minter, err = p.Contract(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
		}
	case KindCAT721Open:
		p := &covenant.NftOpenMinterParams{GenesisOutpoint: outpoint, Max: g.Max}
		if minter, err = p.Contract(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
		}
		nft, supply = true, g.Max
	case KindCAT721Parallel:
		p := &covenant.NftParallelMinterParams{GenesisOutpoint: outpoint, IssuerAddr: g.IssuerAddr, Max: g.Max}
		if minter, err = p.Contract(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
		}
		nft, supply = true, g.Max
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidGenesis, g.Kind)
	}

	asset, guard, err := builder.AssetContracts(minter, nft)
	if err != nil {
		return nil, err
	}
	d := &Deployment{
		Kind:            g.Kind,
		GenesisOutpoint: outpoint,
		MinterScript:    minter.Script,
		AssetScript:     asset.Script,
		GuardScript:     guard.Script,
		MaxSupply:       supply,
	}

	var state stateful
	switch g.Kind {
	case KindCAT20Open:
		state = (&covenant.OpenMinterParams{MaxCount: g.MaxCount, PremineCount: g.PremineCount}).InitialState(asset.Script)
	case KindCAT20Closed:
		state = &covenant.ClosedMinterState{TokenScript: asset.Script}
	case KindCAT721Open:
		scripts := make([][]byte, len(g.CommitScripts))
		for i, s := range g.CommitScripts {
			scripts[i] = s
		}
		tree, err := builder.NewCollectionTree(scripts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
		}
		d.MerkleRoot = tree.Root()
		state = &covenant.NftOpenMinterState{NftScript: asset.Script, MerkleRoot: d.MerkleRoot}
	case KindCAT721Parallel:
		state = &covenant.NftParallelMinterState{NftScript: asset.Script}
	}
	d.MinterState = state.Bytes()
	d.MinterStateHash = state.StateHash()
	d.StateRoot = commitment.BuildRoot(commitment.StateHashList{d.MinterStateHash})
	return d, nil
}
