package imap

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/config"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/logging"
)

// The engine drives connections through a narrow slice of the go-imap
// client so that the lifecycle, fetch and idle logic can run against fakes
// in tests.

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}
type idleWaiter interface {
	Close() error
	Wait() error
}

type session interface {
	Login(username, password string) commandWaiter
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	Search(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Idle() (idleWaiter, error)
	Noop() commandWaiter
	Logout() commandWaiter
	Close() error
}

// mailboxUpdate carries a unilateral EXISTS report: the server's fresh total
// message count for the selected mailbox.
type mailboxUpdate struct {
	NumMessages uint32
}

type clientSession struct {
	cli *imapclient.Client
}

func (s clientSession) Login(username, password string) commandWaiter {
	return s.cli.Login(username, password)
}
func (s clientSession) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return s.cli.Select(mailbox, options)
}
func (s clientSession) Search(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return s.cli.Search(criteria, options)
}
func (s clientSession) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return s.cli.Fetch(numSet, options)
}
func (s clientSession) Idle() (idleWaiter, error) {
	cmd, err := s.cli.Idle()
	if err != nil {
		return nil, err
	}
	return cmd, nil
}
func (s clientSession) Noop() commandWaiter   { return s.cli.Noop() }
func (s clientSession) Logout() commandWaiter { return s.cli.Logout() }
func (s clientSession) Close() error          { return s.cli.Close() }

// protocolTracer captures IMAP protocol traffic for trace-level debugging.
// LOGIN lines are redacted so credentials never reach the logs; everything
// else is summarized to its byte count.
type protocolTracer struct {
	log zerolog.Logger
}

func (w *protocolTracer) Write(p []byte) (int, error) {
	data := strings.TrimSpace(string(p))
	if strings.Contains(strings.ToUpper(data), "LOGIN") {
		w.log.Trace().Str("imap_data", "[LOGIN command - credentials redacted]").Msg("IMAP protocol exchange")
	} else {
		w.log.Trace().Str("imap_data", logging.SummarizeWire(data)).Msg("IMAP protocol exchange")
	}
	return len(p), nil
}

// dialAccount opens one physical connection for the account and returns the
// session together with the channel on which unilateral mailbox updates
// arrive. The channel keeps the latest updates when the consumer lags; a
// stale intermediate total is harmless because only the newest one matters.
func dialAccount(cfg config.Account, log zerolog.Logger) (session, <-chan mailboxUpdate, error) {
	notify := make(chan mailboxUpdate, 16)
	opts := &imapclient.Options{
		DebugWriter: &protocolTracer{log: log},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				push(notify, mailboxUpdate{NumMessages: *data.NumMessages})
			},
		},
	}

	var cli *imapclient.Client
	var err error
	if cfg.TLS {
		tlsConfig := &tls.Config{ServerName: cfg.Host}
		if cfg.InsecureSkipVerify {
			// Explicit opt-in for development servers only.
			tlsConfig.InsecureSkipVerify = true
			log.Warn().Msg("TLS certificate validation disabled for this account")
		}
		opts.TLSConfig = tlsConfig
		cli, err = imapclient.DialTLS(cfg.Addr(), opts)
	} else {
		cli, err = imapclient.DialInsecure(cfg.Addr(), opts)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", cfg.Addr(), err)
	}
	return clientSession{cli: cli}, notify, nil
}

// push enqueues an update, evicting the oldest buffered one instead of
// blocking the client's reader goroutine.
func push(ch chan mailboxUpdate, u mailboxUpdate) {
	for {
		select {
		case ch <- u:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// isCleanDisconnect classifies connection teardown errors: the remote end
// closing the socket reads as EOF/reset rather than a protocol failure, and
// gets the shorter reconnect delay.
func isCleanDisconnect(err error) bool {
	if err == nil {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "use of closed network connection") ||
		strings.Contains(s, "connection reset by peer") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "eof")
}
