package imap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/config"
)

func testAccount() config.Account {
	return config.Account{
		ID:       "acct",
		Host:     "mail.example.com",
		Port:     993,
		Username: "alice@example.com",
		Password: "secret",
		TLS:      true,
	}
}

func testTune() config.Sync {
	return config.Sync{
		LookbackDays:        30,
		BatchSize:           10,
		IdleWatchdog:        time.Hour,
		ReconnectDelay:      5 * time.Millisecond,
		CleanReconnectDelay: time.Millisecond,
		ShutdownTimeout:     time.Second,
	}
}

func TestClientRunBackfillsThenIdlesThenFetchesUpdates(t *testing.T) {
	sess := newFakeSession()
	sess.selectData = &imap.SelectData{NumMessages: 3}
	sess.searchSeqs = []uint32{3, 1, 2}
	sess.fetchQueue = []*fakeFetch{
		{bufs: bufs(
			msgBuf(1, true, rawHeader("one"), []byte("b1")),
			msgBuf(2, false, rawHeader("two"), []byte("b2")),
			msgBuf(3, false, rawHeader("three"), []byte("b3")),
		)},
		{bufs: bufs(
			msgBuf(4, false, rawHeader("four"), []byte("b4")),
		)},
	}
	notify := make(chan mailboxUpdate, 1)

	s := &recordingSink{}
	c := NewClient(testAccount(), testTune(), zerolog.Nop(), s)
	c.dial = func() (session, <-chan mailboxUpdate, error) { return sess, notify, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	// First idle session means the historical sync already finished.
	waitIdle(t, sess)
	require.Equal(t, "alice@example.com", sess.user())
	require.Equal(t, []string{"acct-1", "acct-2", "acct-3"}, s.ids())
	require.True(t, s.msgs[0].Seen)
	require.Eventually(t, func() bool { return c.Status().State == "idling" }, 2*time.Second, time.Millisecond)

	notify <- mailboxUpdate{NumMessages: 4}
	waitIdle(t, sess)
	require.Equal(t, []string{"1:3", "4"}, sess.sets())
	require.Equal(t, []string{"acct-1", "acct-2", "acct-3", "acct-4"}, s.ids())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
	require.Equal(t, 1, sess.logouts())
	require.True(t, sess.isClosed())
	require.Equal(t, "disconnected", c.Status().State)
	require.Empty(t, c.Status().LastError)
}

func TestClientEmptyMailboxSkipsBackfill(t *testing.T) {
	sess := newFakeSession()
	sess.selectData = &imap.SelectData{NumMessages: 0}
	notify := make(chan mailboxUpdate)

	s := &recordingSink{}
	c := NewClient(testAccount(), testTune(), zerolog.Nop(), s)
	c.dial = func() (session, <-chan mailboxUpdate, error) { return sess, notify, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	waitIdle(t, sess)
	require.Empty(t, sess.sets())
	require.Zero(t, s.count())

	cancel()
	<-done
}

func TestClientReconnectsWithFreshSession(t *testing.T) {
	var dials atomic.Int32
	s := &recordingSink{}
	c := NewClient(testAccount(), testTune(), zerolog.Nop(), s)
	c.dial = func() (session, <-chan mailboxUpdate, error) {
		dials.Add(1)
		sess := newFakeSession()
		sess.searchErr = errors.New("historical search refused")
		return sess, nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return dials.Load() >= 2 }, 2*time.Second, time.Millisecond)

	cancel()
	<-done
	require.Equal(t, "disconnected", c.Status().State)
}

func TestClientRecordsLastError(t *testing.T) {
	sess := newFakeSession()
	sess.selectErr = errors.New("no such mailbox")

	c := NewClient(testAccount(), testTune(), zerolog.Nop(), &recordingSink{})
	c.dial = func() (session, <-chan mailboxUpdate, error) { return sess, nil, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		st := c.Status()
		return st.State == "disconnected" && st.LastError != ""
	}, 2*time.Second, time.Millisecond)

	cancel()
	<-done
	st := c.Status()
	require.Equal(t, "acct", st.AccountID)
	require.Equal(t, "mail.example.com", st.Host)
}

func TestConnStateString(t *testing.T) {
	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "ready", StateReady.String())
	require.Equal(t, "syncing", StateSyncing.String())
	require.Equal(t, "idling", StateIdling.String())
	require.Equal(t, "fetching", StateFetching.String())
	require.Equal(t, "ending", StateEnding.String())
	require.Equal(t, "unknown", ConnState(99).String())
}
