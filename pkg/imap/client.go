package imap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/config"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/email"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/logging"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/reliability"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/sink"
)

// ConnState tracks where a connection is in its lifecycle.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateReady
	StateSyncing
	StateIdling
	StateFetching
	StateEnding
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateSyncing:
		return "syncing"
	case StateIdling:
		return "idling"
	case StateFetching:
		return "fetching"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

const watchedMailbox = "INBOX"

type dialFunc func() (session, <-chan mailboxUpdate, error)

// Client owns exactly one account's connection lifecycle: it establishes
// the session, runs the initial historical sync, hands control to the idle
// supervisor, and reconnects with backoff when the connection ends. A
// connection handle is destroyed and replaced on every reconnect, never
// reused.
type Client struct {
	cfg  config.Account
	tune config.Sync
	log  zerolog.Logger
	sink sink.Sink
	norm normalizer

	dial    dialFunc
	breaker *reliability.CircuitBreaker
	now     func() time.Time

	mu      sync.Mutex
	state   ConnState
	lastErr error
}

// NewClient builds the lifecycle manager for one account. It performs no
// I/O; Run drives the connection.
func NewClient(acc config.Account, tune config.Sync, log zerolog.Logger, s sink.Sink) *Client {
	logger := log.With().
		Str("account", acc.ID).
		Str("user", logging.MaskEmail(acc.Username)).
		Str("host", acc.Host).
		Logger()
	c := &Client{
		cfg:     acc,
		tune:    tune,
		log:     logger,
		sink:    s,
		norm:    email.NewNormalizer(logger),
		breaker: reliability.NewCircuitBreaker(5, 2*time.Minute),
		now:     time.Now,
	}
	c.dial = func() (session, <-chan mailboxUpdate, error) {
		return dialAccount(acc, logger)
	}
	return c
}

// Run drives the connection through connect → sync → idle → reconnect until
// ctx is cancelled. Connection and protocol errors stay local to this
// account: every failure path ends in a delayed reconnect, never in an
// early return.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.runSession(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			c.log.Info().Msg("Account sync stopped")
			return
		}

		delay := c.tune.ReconnectDelay
		if isCleanDisconnect(err) {
			delay = c.tune.CleanReconnectDelay
		}
		c.setState(StateDisconnected, err)
		c.log.Warn().Err(err).Dur("delay", delay).Msg("Connection ended, reconnecting after delay")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.setState(StateDisconnected, nil)
			return
		}
	}
}

// runSession owns one connection handle from dial to teardown.
func (c *Client) runSession(ctx context.Context) error {
	c.setState(StateConnecting, nil)

	var sess session
	var notify <-chan mailboxUpdate
	err := c.breaker.Execute(func() error {
		return reliability.RetryWithBackoff(ctx, reliability.ConnectRetryConfig(), func() error {
			s, n, err := c.dial()
			if err != nil {
				return err
			}
			if err := s.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
				_ = s.Close()
				return fmt.Errorf("login: %w", err)
			}
			sess, notify = s, n
			return nil
		})
	})
	if err != nil {
		return err
	}
	defer c.teardown(sess)

	sel, err := sess.Select(watchedMailbox, nil).Wait()
	if err != nil {
		return fmt.Errorf("select %s: %w", watchedMailbox, err)
	}
	c.setState(StateReady, nil)
	c.log.Info().Uint32("messages", sel.NumMessages).Msg("Mailbox selected")

	f := newFetcher(sess, c.log, c.norm, c.sink, c.cfg.ID, watchedMailbox, c.tune.BatchSize)

	// Historical backfill runs on every (re)connect. Re-emission of already
	// seen messages is covered by the deterministic record identifier;
	// consumers dedupe on it.
	c.setState(StateSyncing, nil)
	if err := c.initialSync(ctx, sess, f); err != nil {
		return err
	}

	sup := newSupervisor(sess, notify, f, c.log, c.tune.IdleWatchdog, sel.NumMessages, func(s ConnState) {
		c.setState(s, nil)
	})
	err = sup.run(ctx)
	if errors.Is(err, context.Canceled) {
		return err
	}
	return err
}

// initialSync fetches everything the server still has from the lookback
// window, oldest first.
func (c *Client) initialSync(ctx context.Context, sess session, f *fetcher) error {
	since := c.now().AddDate(0, 0, -c.tune.LookbackDays)
	criteria := &imap.SearchCriteria{Since: since}
	data, err := sess.Search(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("historical search: %w", err)
	}
	seqs := data.AllSeqNums()
	if len(seqs) == 0 {
		c.log.Info().Time("since", since).Msg("No historical messages to sync")
		return nil
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	c.log.Info().Time("since", since).Int("count", len(seqs)).Msg("Starting historical sync")
	if err := f.FetchSeqNums(ctx, seqs); err != nil {
		return fmt.Errorf("historical sync: %w", err)
	}
	c.log.Info().Int("count", len(seqs)).Msg("Historical sync complete")
	return nil
}

// teardown attempts a graceful logout with a short deadline and force-closes
// the connection either way.
func (c *Client) teardown(sess session) {
	c.setStateOnly(StateEnding)
	done := make(chan error, 1)
	go func() { done <- sess.Logout().Wait() }()
	select {
	case err := <-done:
		if err != nil {
			c.log.Debug().Err(err).Msg("IMAP logout failed")
		}
	case <-time.After(2 * time.Second):
		c.log.Debug().Msg("IMAP logout timed out, force closing")
	}
	_ = sess.Close()
}

func (c *Client) setState(s ConnState, err error) {
	c.mu.Lock()
	c.state = s
	if err != nil {
		c.lastErr = err
	} else if s == StateConnecting {
		c.lastErr = nil
	}
	c.mu.Unlock()
}

func (c *Client) setStateOnly(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Status is a point-in-time snapshot used for status reporting.
type Status struct {
	AccountID string `json:"account_id"`
	Host      string `json:"host"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// Status reports the account's current lifecycle state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		AccountID: c.cfg.ID,
		Host:      c.cfg.Host,
		State:     c.state.String(),
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
