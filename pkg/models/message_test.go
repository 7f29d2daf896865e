package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageID(t *testing.T) {
	require.Equal(t, "acct-1", MessageID("acct", 1))
	require.Equal(t, "alice@example.com-4096", MessageID("alice@example.com", 4096))
	// Same inputs always yield the same identifier.
	require.Equal(t, MessageID("acct", 7), MessageID("acct", 7))
}

func TestMessageJSONOmitsEmptyCollections(t *testing.T) {
	msg := Message{
		ID:        "acct-1",
		AccountID: "acct",
		Folder:    "INBOX",
		Subject:   "hi",
		TextBody:  "body",
		Category:  CategoryUnclassified,
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotContains(t, decoded, "to")
	require.NotContains(t, decoded, "attachments")
	require.NotContains(t, decoded, "html_body")
	require.Equal(t, "unclassified", decoded["category"])
}
