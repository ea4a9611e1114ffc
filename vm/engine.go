// Package vm verifies batches of spends. Every spend carries its own sighash
// preimage and witnesses, so the spends of a batch are independent and are
// checked concurrently.
package vm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CATProtocol/cat-token-box-sub000/actions"
	"github.com/CATProtocol/cat-token-box-sub000/consts"
	"github.com/CATProtocol/cat-token-box-sub000/zk"
)

var ErrEmptyBatch = errors.New("empty spend batch")

type Engine struct {
	cfg      Config
	log      logging.Logger
	attestor *zk.Verifier
	metrics  *metricsCollector
}

// New resolves cfg against the environment and loads the attestation keys
// it names. A nil log discards output.
func New(cfg Config, log logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.NoLog{}
	}
	cfg = ResolveConfig(cfg)
	attestor, err := newAttestor(cfg.ZK)
	if err != nil {
		return nil, fmt.Errorf("zk verifier: %w", err)
	}
	log.Info("cat engine config",
		zap.Int("parallelism", cfg.Parallelism),
		zap.Int("nonceSearchLimit", cfg.NonceSearchLimit),
		zap.Bool("zkEnabled", cfg.ZK.Enabled),
		zap.Bool("zkStrict", cfg.ZK.Strict),
		zap.String("zkCircuit", cfg.ZK.RequiredCircuitID),
	)
	return &Engine{
		cfg:      cfg,
		log:      log,
		attestor: attestor,
		metrics:  newMetricsCollector(),
	}, nil
}

// WithAttestor replaces the attestation verifier, for keys held in memory.
func (e *Engine) WithAttestor(v *zk.Verifier) *Engine {
	e.attestor = v
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// VerifySpends executes every spend and returns their results in order. The
// first failure cancels the spends not yet started and is returned wrapped
// with the index and kind of the failing spend.
func (e *Engine) VerifySpends(ctx context.Context, spends []*actions.Spend) ([]*actions.Result, error) {
	if len(spends) == 0 {
		return nil, ErrEmptyBatch
	}
	results := make([]*actions.Result, len(spends))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for i, s := range spends {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res, err := s.Execute()
			e.metrics.recordSpend(s.Kind, time.Since(start), err)
			if err != nil {
				return fmt.Errorf("spend %d (%s): %w", i, consts.KindName(s.Kind), err)
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	e.metrics.recordBatch(err)
	if err != nil {
		e.log.Debug("rejected batch",
			zap.Int("spends", len(spends)),
			zap.Error(err),
		)
		return nil, err
	}
	e.log.Debug("verified batch",
		zap.Int("spends", len(spends)),
	)
	return results, nil
}

// VerifyAttestation checks a succinct proof that some transaction hashes to
// txid (hash byte order). Without a configured verifier it passes unless
// the engine is strict.
func (e *Engine) VerifyAttestation(txid []byte, envelope []byte) error {
	if e.attestor == nil {
		if e.cfg.ZK.Strict {
			e.metrics.recordAttestation(false, zk.ErrVerifierUnavailable)
			return zk.ErrVerifierUnavailable
		}
		e.metrics.recordAttestation(true, nil)
		return nil
	}
	err := e.attestor.VerifyTxid(envelope, txid)
	e.metrics.recordAttestation(false, err)
	if err != nil {
		e.log.Debug("rejected attestation",
			zap.Binary("txid", txid),
			zap.Error(err),
		)
	}
	return err
}

func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.snapshot()
}
