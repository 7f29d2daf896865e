package imap

import (
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/require"
)

func TestAbsorbJoinsSectionsInEitherOrder(t *testing.T) {
	header := []byte("Subject: hi\r\n\r\n")
	body := []byte("hello")

	headerFirst := msgBuf(7, false, header, body)
	frag := absorb(headerFirst)
	require.True(t, frag.complete())
	require.Equal(t, uint32(7), frag.seqNum)
	require.Equal(t, header, frag.header)
	require.Equal(t, body, frag.body)

	bodyFirst := msgBuf(7, false, header, body)
	bodyFirst.BodySection[0], bodyFirst.BodySection[1] = bodyFirst.BodySection[1], bodyFirst.BodySection[0]
	frag = absorb(bodyFirst)
	require.True(t, frag.complete())
	require.Equal(t, header, frag.header)
	require.Equal(t, body, frag.body)
}

func TestAbsorbIncompleteWithoutBothSections(t *testing.T) {
	buf := &imapclient.FetchMessageBuffer{
		SeqNum: 3,
		BodySection: []imapclient.FetchBodySectionBuffer{
			{Section: &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}, Bytes: []byte("Subject: x\r\n\r\n")},
		},
	}
	frag := absorb(buf)
	require.True(t, frag.hasHeader)
	require.False(t, frag.hasBody)
	require.False(t, frag.complete())

	frag = absorb(&imapclient.FetchMessageBuffer{SeqNum: 4})
	require.False(t, frag.complete())
}

func TestAbsorbEmptyBodySectionCountsAsReceived(t *testing.T) {
	frag := absorb(msgBuf(5, false, []byte("Subject: x\r\n\r\n"), []byte{}))
	require.True(t, frag.complete())
	require.Empty(t, frag.body)
}

func TestAbsorbCapturesSeenFlag(t *testing.T) {
	frag := absorb(msgBuf(9, true, []byte("Subject: x\r\n\r\n"), []byte("b")))
	require.True(t, frag.seen)

	frag = absorb(msgBuf(10, false, []byte("Subject: x\r\n\r\n"), []byte("b")))
	require.False(t, frag.seen)
}

func TestAbsorbSkipsNilSections(t *testing.T) {
	buf := msgBuf(11, false, []byte("Subject: x\r\n\r\n"), []byte("b"))
	buf.BodySection = append(buf.BodySection, imapclient.FetchBodySectionBuffer{Bytes: []byte("stray")})
	frag := absorb(buf)
	require.True(t, frag.complete())
	require.Equal(t, []byte("b"), frag.body)
}

func TestFragmentCopiesSectionBytes(t *testing.T) {
	src := []byte("original")
	var frag fragment
	frag.setBody(src)
	src[0] = 'X'
	require.Equal(t, []byte("original"), frag.body)
}
