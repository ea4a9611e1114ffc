package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CATProtocol/cat-token-box-sub000/builder"
	"github.com/CATProtocol/cat-token-box-sub000/genesis"
	"github.com/CATProtocol/cat-token-box-sub000/txpreimage"
	"github.com/CATProtocol/cat-token-box-sub000/vm"
)

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readArg(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "@") {
		return os.ReadFile(arg[1:])
	}
	return []byte(arg), nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}

type tierResult struct {
	Tier  string `json:"tier"`
	Txid  string `json:"txid,omitempty"`
	Match bool   `json:"match"`
	Error string `json:"error,omitempty"`
}

func newTxidCommand() *cobra.Command {
	var output uint32
	cmd := &cobra.Command{
		Use:   "txid <raw-tx-hex|@file>",
		Short: "Reconstructs a transaction's id through every preimage tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			arg, err := readArg(args[0])
			if err != nil {
				return err
			}
			raw, err := decodeHex(string(arg))
			if err != nil {
				return fmt.Errorf("raw tx: %w", err)
			}
			tx := &wire.MsgTx{}
			if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
				return fmt.Errorf("raw tx: %w", err)
			}
			want := tx.TxHash()

			results := []tierResult{}
			check := func(p txpreimage.Preimage, err error) {
				r := tierResult{}
				if p != nil {
					r.Tier = p.Tier().String()
				}
				if err == nil {
					h, herr := txpreimage.ReconstructHash(p)
					err = herr
					r.Txid, r.Match = h.String(), h == want
				}
				if err != nil {
					r.Error = err.Error()
				}
				results = append(results, r)
			}
			full, err := txpreimage.FullFromMsgTx(tx)
			check(full, err)
			partial, err := txpreimage.PartialFromMsgTx(tx)
			check(partial, err)
			tiny, err := txpreimage.TinyFromMsgTx(tx, output)
			check(tiny, err)

			return printJSON(map[string]any{
				"txid":  want.String(),
				"tiers": results,
			})
		},
	}
	cmd.Flags().Uint32Var(&output, "output", 0, "output traced by the tiny tier")
	return cmd
}

func newDeployCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <genesis.json>",
		Short: "Derives the scripts and initial minter state of a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			g, err := genesis.Load(b)
			if err != nil {
				return err
			}
			d, err := g.Derive()
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
}

func newMerkleRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merkle-root <commit-script-hex>...",
		Short: "Computes the open-minter Merkle root of a collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			scripts := make([][]byte, len(args))
			for i, a := range args {
				s, err := decodeHex(a)
				if err != nil {
					return fmt.Errorf("commit script %d: %w", i, err)
				}
				scripts[i] = s
			}
			tree, err := builder.NewCollectionTree(scripts)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"leaves": tree.Len(),
				"root":   hex.EncodeToString(tree.Root()),
			})
		},
	}
}

func newAttestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attest <display-txid> <envelope-file>",
		Short: "Verifies a txid attestation with the CAT_ZK_* verifier config",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			txid, err := chainhash.NewHashFromStr(args[0])
			if err != nil {
				return fmt.Errorf("txid: %w", err)
			}
			envelope, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			cfg := vm.NewDefaultConfig()
			cfg.ZK.Enabled = true
			e, err := vm.New(cfg, log)
			if err != nil {
				return err
			}
			if err := e.VerifyAttestation(txid[:], envelope); err != nil {
				return err
			}
			log.Info("attestation verified", zap.Stringer("txid", txid))
			return nil
		},
	}
}
