package email

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/models"
)

// PlaceholderSubject is used when a message carries no Subject header.
const PlaceholderSubject = "(no subject)"

// ErrEmptyBody marks a message whose MIME structure yielded neither a
// text/plain nor a text/html part. Such messages are dropped, not emitted.
var ErrEmptyBody = errors.New("message has no readable body")

// Raw is the transient accumulator handed over by the fetch pipeline: the
// header and body fragments of one message, as delivered by the server.
type Raw struct {
	AccountID string
	Folder    string
	SeqNum    uint32
	Seen      bool
	Header    []byte
	Body      []byte
}

// Normalizer converts raw header/body fragments into canonical message
// records. It is stateless apart from its clock and safe for concurrent use.
type Normalizer struct {
	log zerolog.Logger
	now func() time.Time
}

// NewNormalizer creates a normalizer logging through log.
func NewNormalizer(log zerolog.Logger) *Normalizer {
	return &Normalizer{
		log: log.With().Str("component", "normalizer").Logger(),
		now: time.Now,
	}
}

// Normalize parses the fragments into a models.Message. The returned record
// is complete and immutable; its ID is a deterministic function of account
// and sequence number, so refetching the same message yields the same ID.
//
// Messages without any text or HTML body return ErrEmptyBody and must be
// dropped by the caller. This includes attachment-only messages.
func (n *Normalizer) Normalize(raw Raw) (*models.Message, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(assemble(raw.Header, raw.Body)))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message %d: %w", raw.SeqNum, err)
	}
	if reader == nil {
		return nil, fmt.Errorf("parse message %d: %w", raw.SeqNum, err)
	}
	header := reader.Header

	subject, err := header.Subject()
	if err != nil || strings.TrimSpace(subject) == "" {
		subject = PlaceholderSubject
	}

	date, err := header.Date()
	if err != nil || date.IsZero() {
		date = n.now()
	}

	text, html, attachments := n.readParts(reader, raw.SeqNum)
	if text == "" && html != "" {
		text = htmlToText(html)
	}
	if strings.TrimSpace(text) == "" && html == "" {
		return nil, ErrEmptyBody
	}

	msg := &models.Message{
		ID:          models.MessageID(raw.AccountID, raw.SeqNum),
		AccountID:   raw.AccountID,
		Folder:      raw.Folder,
		Subject:     subject,
		From:        addressFrom(&header, "From"),
		To:          addressesFrom(&header, "To"),
		Cc:          addressesFrom(&header, "Cc"),
		Bcc:         addressesFrom(&header, "Bcc"),
		TextBody:    text,
		HTMLBody:    html,
		Date:        date,
		Seen:        raw.Seen,
		Attachments: attachments,
		Category:    models.CategoryUnclassified,
	}
	return msg, nil
}

// readParts walks the MIME structure, keeping the first text/plain and
// text/html candidates and reducing every attachment to metadata. Attachment
// payloads are read only to count their size and then discarded.
func (n *Normalizer) readParts(reader *gomail.Reader, seqNum uint32) (text, html string, attachments []models.Attachment) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			n.log.Warn().Err(err).Uint32("seq", seqNum).Msg("Stopping MIME walk on malformed part")
			break
		}
		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			mediaType, _, ctErr := h.ContentType()
			if ctErr != nil {
				mediaType = "text/plain"
			}
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				n.log.Warn().Err(readErr).Uint32("seq", seqNum).Msg("Failed to read inline part")
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/plain"):
				if text == "" {
					text = string(body)
				}
			case strings.HasPrefix(mediaType, "text/html"):
				if html == "" {
					html = string(body)
				}
			}
		case *gomail.AttachmentHeader:
			if att, ok := n.attachmentMeta(part, h, seqNum); ok {
				attachments = append(attachments, att)
			}
		}
	}
	return text, html, attachments
}

func (n *Normalizer) attachmentMeta(part *gomail.Part, h *gomail.AttachmentHeader, seqNum uint32) (models.Attachment, bool) {
	filename, err := h.Filename()
	if err != nil || strings.TrimSpace(filename) == "" {
		filename = "attachment"
	}
	mediaType, _, err := h.ContentType()
	if err != nil || strings.TrimSpace(mediaType) == "" {
		mediaType = "application/octet-stream"
	}
	size, err := io.Copy(io.Discard, part.Body)
	if err != nil {
		n.log.Warn().Err(err).Uint32("seq", seqNum).Str("filename", filename).Msg("Failed to drain attachment part")
		return models.Attachment{}, false
	}
	return models.Attachment{
		Filename:    filename,
		ContentType: strings.ToLower(mediaType),
		Size:        size,
	}, true
}

// assemble joins the header and body fragments back into one RFC 5322
// message, restoring the blank separator line if the header section does not
// already carry it.
func assemble(header, body []byte) []byte {
	buf := make([]byte, 0, len(header)+len(body)+4)
	buf = append(buf, header...)
	if !bytes.HasSuffix(header, []byte("\r\n\r\n")) && !bytes.HasSuffix(header, []byte("\n\n")) {
		buf = append(buf, '\r', '\n')
	}
	buf = append(buf, body...)
	return buf
}

func addressFrom(h *gomail.Header, key string) string {
	addrs := addressesFrom(h, key)
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

func addressesFrom(h *gomail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, formatAddress(a.Name, a.Address))
	}
	return out
}

func formatAddress(name, address string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

var (
	htmlTags     = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]*>`)
	htmlEntities = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// htmlToText derives a plain-text fallback from an HTML-only body. Good
// enough for classification and notification previews; not a renderer.
func htmlToText(html string) string {
	text := htmlTags.ReplaceAllString(html, "")
	text = htmlEntities.Replace(text)
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
