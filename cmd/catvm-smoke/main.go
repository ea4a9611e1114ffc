// catvm-smoke: in-process end-to-end run. Deploys and drains an open
// token, transfers it, mints a whole collection through the stored Merkle
// mirror and reports every step.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/CATProtocol/cat-token-box-sub000/builder"
	"github.com/CATProtocol/cat-token-box-sub000/covenant"
	"github.com/CATProtocol/cat-token-box-sub000/storage"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
	"github.com/CATProtocol/cat-token-box-sub000/vm"
)

type Report struct {
	Pass    bool               `json:"pass"`
	Error   string             `json:"error,omitempty"`
	Steps   []Step             `json:"steps"`
	Metrics vm.MetricsSnapshot `json:"metrics"`
}

type Step struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	TxID   string `json:"tx_id,omitempty"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

type party struct {
	key  *btcec.PrivateKey
	addr []byte
}

func newParty() (party, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return party{}, err
	}
	return party{key: key, addr: covenant.OwnerAddrFromPubKey(builder.XOnly(key))}, nil
}

func main() {
	log := logging.NewLogger("smoke", logging.NewWrappedCore(logging.Info, os.Stderr, logging.Plain.ConsoleEncoder()))
	engine, err := vm.New(vm.NewDefaultConfig(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	report := &Report{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, engine, log, report); err != nil {
		report.Pass = false
		report.Error = err.Error()
	} else {
		report.Pass = true
	}
	report.Metrics = engine.Metrics()

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if !report.Pass {
		os.Exit(1)
	}
}

type smoke struct {
	ctx    context.Context
	l      *builder.Ledger
	report *Report
}

// step runs fn and records its outcome. fn returns the accepted
// transaction, if any, and a detail line.
func (s *smoke) step(name string, fn func() (*builder.Built, string, error)) error {
	b, detail, err := fn()
	st := Step{Name: name, Detail: detail}
	if b != nil {
		st.TxID = b.Tx.TxHash().String()
	}
	if err != nil {
		st.Error = err.Error()
		s.report.Steps = append(s.report.Steps, st)
		return fmt.Errorf("%s: %w", name, err)
	}
	st.Pass = true
	s.report.Steps = append(s.report.Steps, st)
	return nil
}

func run(ctx context.Context, engine *vm.Engine, log logging.Logger, report *Report) error {
	l := builder.NewLedger()
	l.Log = log
	l.NonceLimit = engine.Config().NonceSearchLimit
	l.Verifier = engine
	s := &smoke{ctx: ctx, l: l, report: report}

	alice, err := newParty()
	if err != nil {
		return err
	}
	bob, err := newParty()
	if err != nil {
		return err
	}

	store := storage.New(memdb.New(), []byte("smoke"))
	seq := storage.NewSequencer(log)

	// ── Open token: deploy and drain every minter branch ──
	var (
		tok    *builder.Token
		minter wire.OutPoint
	)
	if err := s.step("deploy_open_token", func() (*builder.Built, string, error) {
		var err error
		tok, minter, err = l.DeployOpenToken(covenant.OpenMinterParams{MaxCount: 4, Limit: 100})
		return nil, fmt.Sprintf("minter=%s", minter), err
	}); err != nil {
		return err
	}

	lineage := storage.LineageID(txpreimage.EncodeOutpoint(tok.Genesis.Hash, tok.Genesis.Index))
	supply := tok.Open.MaxCount * tok.Open.Limit
	type branch struct {
		op    wire.OutPoint
		state covenant.OpenMinterState
	}
	queue := []branch{{op: minter, state: *tok.Open.InitialState(tok.Token.Script)}}
	var holdings []builder.TokenHolding
	for i := 0; len(queue) > 0; i++ {
		m := queue[0]
		queue = queue[1:]
		if err := s.step(fmt.Sprintf("open_mint_%d", i), func() (*builder.Built, string, error) {
			next := split(m.state.RemainingCount - 1)
			b, err := l.MintOpen(ctx, tok, &builder.OpenMintRequest{
				Minter:     m.op,
				State:      m.state,
				NextCounts: next,
				Owner:      alice.addr,
			})
			if err != nil {
				return nil, "", err
			}
			results, err := l.Accept(b)
			if err != nil {
				return b, "", err
			}
			total, err := storage.AddMinted(ctx, store, lineage, results[0].Minted, supply)
			if err != nil {
				return b, "", err
			}
			for j, n := range next {
				queue = append(queue, branch{
					op:    b.Outpoint(uint32(j + 1)),
					state: covenant.OpenMinterState{TokenScript: tok.Token.Script, HasMintedBefore: true, RemainingCount: n},
				})
			}
			holdings = append(holdings, builder.TokenHolding{
				Outpoint: b.Outpoint(uint32(len(next) + 1)),
				State:    covenant.CAT20State{OwnerAddr: alice.addr, Amount: results[0].Minted},
				Key:      alice.key,
			})
			return b, fmt.Sprintf("minted=%d total=%d/%d next=%v", results[0].Minted, total, supply, next), nil
		}); err != nil {
			return err
		}
	}

	// ── Transfer: three holdings to bob with change back to alice ──
	if err := s.step("transfer", func() (*builder.Built, string, error) {
		b, err := l.Transfer(ctx, tok, &builder.TransferRequest{
			Inputs: holdings[:3],
			Outputs: []builder.Payment{
				{Owner: bob.addr, Amount: 250},
				{Owner: alice.addr, Amount: 40},
			},
			Burn: 10,
		})
		if err != nil {
			return nil, "", err
		}
		results, err := l.Accept(b)
		if err != nil {
			return b, "", err
		}
		return b, fmt.Sprintf("spends=%d burned=%d", len(results), results[len(results)-1].Burned), nil
	}); err != nil {
		return err
	}

	// ── Collection: mint every leaf through the stored mirror ──
	scripts := make([][]byte, 3)
	for i := range scripts {
		scripts[i] = append([]byte{0x51, 0x20}, make([]byte, 32)...)
		scripts[i][2] = byte(i + 1)
	}
	staging, err := builder.NewCollectionTree(scripts)
	if err != nil {
		return err
	}
	col, op, err := l.DeployNftOpen(staging)
	if err != nil {
		return err
	}
	id := storage.LineageID(txpreimage.EncodeOutpoint(col.Genesis.Hash, col.Genesis.Index))
	mirror, err := storage.Register(ctx, store, id, scripts)
	if err != nil {
		return err
	}
	if err := mirror.Advance(txpreimage.EncodeOutpoint(op.Hash, op.Index)); err != nil {
		return err
	}
	col.Tree = mirror

	for i := range scripts {
		if err := s.step(fmt.Sprintf("nft_mint_%d", i), func() (*builder.Built, string, error) {
			var built *builder.Built
			err := seq.Run(ctx, id, func(ctx context.Context) error {
				c, err := mirror.Cursor()
				if err != nil {
					return err
				}
				hash, index, err := txpreimage.SplitOutpoint(c.Minter)
				if err != nil {
					return err
				}
				req := &builder.NftOpenMintRequest{
					Minter: wire.OutPoint{Hash: hash, Index: index},
					State:  covenant.NftOpenMinterState{NftScript: col.Nft.Script, MerkleRoot: c.Root, NextLocalID: c.NextLocalID},
					Owner:  bob.addr,
				}
				if built, err = l.MintNftOpen(ctx, col, req); err != nil {
					return err
				}
				if _, err := l.Accept(built); err != nil {
					return err
				}
				if c.NextLocalID+1 == c.Max {
					return mirror.Advance(nil)
				}
				next := built.Outpoint(1)
				return mirror.Advance(txpreimage.EncodeOutpoint(next.Hash, next.Index))
			})
			return built, fmt.Sprintf("localId=%d", i), err
		}); err != nil {
			return err
		}
	}

	return s.step("collection_exhausted", func() (*builder.Built, string, error) {
		reopened, err := storage.Open(ctx, store, id)
		if err != nil {
			return nil, "", err
		}
		c, err := reopened.Cursor()
		if err != nil {
			return nil, "", err
		}
		if c.NextLocalID != c.Max || len(c.Minter) != 0 {
			return nil, "", fmt.Errorf("collection not exhausted: next=%d max=%d", c.NextLocalID, c.Max)
		}
		return nil, fmt.Sprintf("minted=%d root=%x", c.NextLocalID, c.Root), nil
	})
}

// split divides n between at most two next minters.
func split(n uint64) []uint64 {
	switch n {
	case 0:
		return nil
	case 1:
		return []uint64{1}
	default:
		return []uint64{n - n/2, n / 2}
	}
}
