package imap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// rangeFetcher is the slice of the fetcher the supervisor drives.
type rangeFetcher interface {
	FetchRange(ctx context.Context, from, to uint32) error
}

// supervisor keeps one ready, synced connection in IDLE and reacts to
// mailbox updates. It owns the sync cursor: the last known total message
// count, advanced only after a notification-triggered fetch succeeds.
//
// Idle and fetch are mutually exclusive phases; the connection never issues
// another command while an IDLE session is open.
type supervisor struct {
	sess     session
	notify   <-chan mailboxUpdate
	fetch    rangeFetcher
	log      zerolog.Logger
	watchdog time.Duration
	cursor   uint32
	setState func(ConnState)
}

func newSupervisor(sess session, notify <-chan mailboxUpdate, fetch rangeFetcher, log zerolog.Logger, watchdog time.Duration, cursor uint32, setState func(ConnState)) *supervisor {
	if watchdog <= 0 {
		watchdog = 25 * time.Minute
	}
	if setState == nil {
		setState = func(ConnState) {}
	}
	return &supervisor{
		sess:     sess,
		notify:   notify,
		fetch:    fetch,
		log:      log.With().Str("component", "idle").Logger(),
		watchdog: watchdog,
		cursor:   cursor,
		setState: setState,
	}
}

// run loops between idling and fetching until the context is cancelled or
// the connection fails. The caller owns reconnection.
func (s *supervisor) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		idle, err := s.sess.Idle()
		if err != nil {
			return fmt.Errorf("enter idle: %w", err)
		}
		s.setState(StateIdling)
		s.log.Debug().Uint32("cursor", s.cursor).Msg("IDLE session started")

		// The watchdog forces an idle-cycle restart before the server-side
		// timeout would end the session, even with zero new mail.
		watchdog := time.NewTimer(s.watchdog)

		select {
		case <-ctx.Done():
			watchdog.Stop()
			_ = idle.Close()
			_ = idle.Wait()
			return ctx.Err()

		case upd := <-s.notify:
			watchdog.Stop()
			if err := exitIdle(idle); err != nil {
				return err
			}
			if err := s.apply(ctx, upd.NumMessages); err != nil {
				return err
			}

		case <-watchdog.C:
			if err := exitIdle(idle); err != nil {
				return err
			}
			// Probe the connection between idle sessions; a dead socket
			// surfaces here instead of in a silently stalled IDLE.
			if err := s.sess.Noop().Wait(); err != nil {
				return fmt.Errorf("liveness check: %w", err)
			}
			s.log.Debug().Msg("Watchdog restarted IDLE cycle")
		}
	}
}

// exitIdle terminates the current IDLE session and surfaces any error the
// session ended with.
func exitIdle(idle idleWaiter) error {
	if err := idle.Close(); err != nil {
		return fmt.Errorf("exit idle: %w", err)
	}
	if err := idle.Wait(); err != nil {
		return fmt.Errorf("idle session: %w", err)
	}
	return nil
}

// apply handles one mailbox size report. New messages occupy the sequence
// range (cursor, newTotal]; the cursor advances only after the fetch
// succeeded so a failed fetch is retried after reconnect.
func (s *supervisor) apply(ctx context.Context, newTotal uint32) error {
	from, to, ok := fetchWindow(s.cursor, newTotal)
	if !ok {
		if newTotal < s.cursor {
			// The mailbox shrank (expunge); realign without fetching.
			s.log.Info().Uint32("cursor", s.cursor).Uint32("total", newTotal).Msg("Mailbox shrank, realigning cursor")
			s.cursor = newTotal
		}
		return nil
	}
	s.setState(StateFetching)
	s.log.Info().Uint32("from", from).Uint32("to", to).Msg("Fetching newly arrived messages")
	if err := s.fetch.FetchRange(ctx, from, to); err != nil {
		return err
	}
	s.cursor = newTotal
	return nil
}

// fetchWindow computes the sequence range of newly arrived messages from
// the previously recorded total and the freshly reported one. For N new
// messages on top of total T, the window is [T-N+1, T].
func fetchWindow(cursor, newTotal uint32) (from, to uint32, ok bool) {
	if newTotal <= cursor {
		return 0, 0, false
	}
	return cursor + 1, newTotal, true
}
