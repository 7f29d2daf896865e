package imap

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/email"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/models"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/sink"
)

// normalizer is the slice of email.Normalizer the fetcher needs.
type normalizer interface {
	Normalize(raw email.Raw) (*models.Message, error)
}

// fetchSections asks for the header and the body text as separate peek
// sub-fetches, so syncing never sets \Seen on the server.
var fetchSections = []*imap.FetchItemBodySection{
	{Specifier: imap.PartSpecifierHeader, Peek: true},
	{Specifier: imap.PartSpecifierText, Peek: true},
}

// fetcher retrieves sets of sequence numbers in bounded batches, joins each
// message's header/body fragments, normalizes and emits the result. One
// batch completes fully before the next one starts, which bounds the
// in-flight multi-part state per connection.
type fetcher struct {
	sess      session
	log       zerolog.Logger
	norm      normalizer
	sink      sink.Sink
	accountID string
	mailbox   string
	batchSize int
}

func newFetcher(sess session, log zerolog.Logger, norm normalizer, s sink.Sink, accountID, mailbox string, batchSize int) *fetcher {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &fetcher{
		sess:      sess,
		log:       log.With().Str("component", "fetcher").Logger(),
		norm:      norm,
		sink:      s,
		accountID: accountID,
		mailbox:   mailbox,
		batchSize: batchSize,
	}
}

// FetchRange fetches the contiguous sequence range [from, to] in ascending
// order.
func (f *fetcher) FetchRange(ctx context.Context, from, to uint32) error {
	if from == 0 || from > to {
		return nil
	}
	seqs := make([]uint32, 0, to-from+1)
	for n := from; n <= to; n++ {
		seqs = append(seqs, n)
	}
	return f.FetchSeqNums(ctx, seqs)
}

// FetchSeqNums fetches the given sequence numbers. A fetch-level failure
// aborts the remainder and propagates to the connection lifecycle, which
// restarts the whole sync; no partial-batch checkpoint is kept.
func (f *fetcher) FetchSeqNums(ctx context.Context, seqs []uint32) error {
	for start := 0; start < len(seqs); start += f.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + f.batchSize
		if end > len(seqs) {
			end = len(seqs)
		}
		if err := f.fetchBatch(ctx, seqs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fetcher) fetchBatch(ctx context.Context, seqs []uint32) error {
	var seqSet imap.SeqSet
	seqSet.AddNum(seqs...)

	opts := &imap.FetchOptions{
		Flags:       true,
		BodySection: fetchSections,
	}
	bufs, err := f.sess.Fetch(seqSet, opts).Collect()
	if err != nil {
		return fmt.Errorf("fetch %d..%d: %w", seqs[0], seqs[len(seqs)-1], err)
	}

	sort.Slice(bufs, func(i, j int) bool { return bufs[i].SeqNum < bufs[j].SeqNum })

	for _, buf := range bufs {
		// An aborted fetch must not emit the rest of its batch.
		if err := ctx.Err(); err != nil {
			return err
		}
		frag := absorb(buf)
		if !frag.complete() {
			f.log.Warn().Uint32("seq", frag.seqNum).Bool("has_header", frag.hasHeader).Bool("has_body", frag.hasBody).
				Msg("Dropping message with missing fragments")
			continue
		}
		msg, err := f.norm.Normalize(email.Raw{
			AccountID: f.accountID,
			Folder:    f.mailbox,
			SeqNum:    frag.seqNum,
			Seen:      frag.seen,
			Header:    frag.header,
			Body:      frag.body,
		})
		if err != nil {
			// Parse failures are absorbed per message; the batch and the
			// connection keep going.
			if errors.Is(err, email.ErrEmptyBody) {
				f.log.Warn().Uint32("seq", frag.seqNum).Msg("Dropping message without readable body")
			} else {
				f.log.Warn().Err(err).Uint32("seq", frag.seqNum).Msg("Dropping unparseable message")
			}
			continue
		}
		if err := f.sink.Emit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Emission is fire-and-forget: downstream delivery problems
			// are the collaborator's to retry.
			f.log.Warn().Err(err).Str("id", msg.ID).Msg("Sink rejected message")
		}
	}
	return nil
}
