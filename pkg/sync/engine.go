// Package sync hosts the top-level synchronization engine: it owns the set
// of configured accounts, runs one independent connection lifecycle per
// account, and exposes the outbound stream of canonical message records
// through the sink handed in at construction.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/common"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/config"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/imap"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/sink"
)

// Engine supervises all account sync tasks. Accounts are fully independent:
// they never share a connection or a cursor, and total failure of one
// account never affects the others. The only shared object is the sink,
// which must tolerate concurrent emission (every sink in pkg/sink does).
type Engine struct {
	log     zerolog.Logger
	tune    config.Sync
	sink    sink.Sink
	clients []*imap.Client

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an engine for the validated configuration. Zero accounts is a
// valid setup: the engine starts and performs no work.
func New(cfg *config.Config, log zerolog.Logger, s sink.Sink) *Engine {
	e := &Engine{
		log:  log.With().Str("component", "engine").Logger(),
		tune: cfg.Sync,
		sink: s,
	}
	for _, acc := range cfg.Accounts {
		e.clients = append(e.clients, imap.NewClient(acc, cfg.Sync, log, s))
	}
	return e
}

// Start launches one sync task per account and returns immediately. Sync
// failures after this point surface only through logs and Status; the
// interface is event-driven, not request/response.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}
	e.started = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if len(e.clients) == 0 {
		e.log.Warn().Msg("No accounts configured, engine is idle")
	}
	for _, c := range e.clients {
		e.wg.Add(1)
		go func(c *imap.Client) {
			defer e.wg.Done()
			defer common.RecoverToLog(e.log, "account sync")
			c.Run(runCtx)
		}(c)
	}
	e.log.Info().Int("accounts", len(e.clients)).Msg("Sync engine started")
	return nil
}

// Stop cancels every account task and waits for them to unwind: pending
// watchdogs are dropped, in-flight fetches abort without emitting their
// remaining messages, connections close, and no reconnect is attempted
// afterwards. Stop returns once all accounts acknowledged shutdown or the
// configured shutdown timeout expired.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started || e.cancel == nil {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info().Msg("Sync engine stopped")
		return nil
	case <-time.After(e.shutdownTimeout()):
		return fmt.Errorf("shutdown timed out after %s", e.shutdownTimeout())
	}
}

func (e *Engine) shutdownTimeout() time.Duration {
	if e.tune.ShutdownTimeout > 0 {
		return e.tune.ShutdownTimeout
	}
	return 30 * time.Second
}

// Status snapshots every account's lifecycle state.
func (e *Engine) Status() []imap.Status {
	out := make([]imap.Status, 0, len(e.clients))
	for _, c := range e.clients {
		out = append(out, c.Status())
	}
	return out
}
