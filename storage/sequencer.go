package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
)

// Sequencer runs work against one lineage at a time. Each mint advances the
// lineage's cursor, so mints of the same lineage must not overlap; work on
// different lineages proceeds concurrently.
type Sequencer struct {
	log logging.Logger

	mu    sync.Mutex
	locks map[ids.ID]*sync.Mutex
}

func NewSequencer(log logging.Logger) *Sequencer {
	if log == nil {
		log = logging.NoLog{}
	}
	return &Sequencer{log: log, locks: make(map[ids.ID]*sync.Mutex)}
}

func (s *Sequencer) lock(id ids.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Run calls fn while holding id's lock. A context cancelled while waiting
// skips fn.
func (s *Sequencer) Run(ctx context.Context, id ids.ID, fn func(context.Context) error) error {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		s.log.Warn("sequenced work failed",
			zap.Stringer("lineage", id),
			zap.Error(err),
		)
		return err
	}
	s.log.Debug("sequenced work done",
		zap.Stringer("lineage", id),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
