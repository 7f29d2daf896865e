package models

import (
	"fmt"
	"time"
)

// CategoryUnclassified is the sentinel value a Message carries until an
// external classifier fills in a real category. The sync engine itself never
// writes anything else into the Category field.
const CategoryUnclassified = "unclassified"

// Attachment describes one attachment part of a message. Only metadata is
// kept; payload bytes are discarded during normalization and never leave the
// engine.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is the canonical record emitted for every synchronized email.
// It is immutable after emission: downstream consumers that enrich a message
// (classification, indexing) act on the emitted ID, not on this struct.
type Message struct {
	// ID is derived from the account and the server-assigned sequence
	// number, so refetching the same physical message always yields the
	// same identifier. Consumers dedupe on it across resyncs.
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Folder    string `json:"folder"`

	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	To       []string `json:"to,omitempty"`
	Cc       []string `json:"cc,omitempty"`
	Bcc      []string `json:"bcc,omitempty"`
	TextBody string   `json:"text_body"`
	HTMLBody string   `json:"html_body,omitempty"`

	Date        time.Time    `json:"date"`
	Seen        bool         `json:"seen"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Category starts as CategoryUnclassified; filled by collaborators.
	Category string `json:"category"`
}

// MessageID builds the canonical identifier for a message addressed by its
// account and server-assigned sequence number.
func MessageID(accountID string, seqNum uint32) string {
	return fmt.Sprintf("%s-%d", accountID, seqNum)
}
