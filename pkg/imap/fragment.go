package imap

import (
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// fragment accumulates the independently delivered pieces of one message
// during a fetch: the header section and the body text section arrive as
// separate sub-fetches, in no guaranteed order. A fragment is complete once
// both slots are filled; incomplete fragments are dropped, never emitted.
// The accumulator lives only for the duration of one message's retrieval.
type fragment struct {
	seqNum    uint32
	seen      bool
	header    []byte
	body      []byte
	hasHeader bool
	hasBody   bool
}

func (f *fragment) setHeader(b []byte) {
	f.header = append([]byte(nil), b...)
	f.hasHeader = true
}

func (f *fragment) setBody(b []byte) {
	f.body = append([]byte(nil), b...)
	f.hasBody = true
}

// complete reports whether both fragments have been received. A zero-length
// body section still counts as received; the empty-body drop decision
// belongs to the normalizer.
func (f *fragment) complete() bool {
	return f.hasHeader && f.hasBody
}

// absorb folds one fetched message buffer into a fragment, routing each body
// section to its slot and capturing the read flag as of fetch time.
func absorb(buf *imapclient.FetchMessageBuffer) *fragment {
	frag := &fragment{seqNum: buf.SeqNum}
	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			frag.seen = true
		}
	}
	for _, section := range buf.BodySection {
		if section.Section == nil {
			continue
		}
		switch section.Section.Specifier {
		case imap.PartSpecifierHeader:
			frag.setHeader(section.Bytes)
		case imap.PartSpecifierText:
			frag.setBody(section.Bytes)
		}
	}
	return frag
}
