// Package filing holds the authoritative local filing record ("sent pill")
// of each email and the compose-time filing intents of drafts.
package filing

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// PendingDraftKey is the last-resort key of a brand-new draft that has
// neither an item id, a conversation id nor a creation time. Two such drafts
// open at once share it.
const PendingDraftKey = "draft:pending"

// Key prefixes.
const (
	recordPrefix = "record:"
	intentPrefix = "compose:"
)

// ItemKey derives the local identity key of an email from the most reliable
// identifier available: the host item id, then the conversation id, then the
// creation timestamp, then PendingDraftKey.
func ItemKey(itemID, conversationID, createdAt string) string {
	switch {
	case strings.TrimSpace(itemID) != "":
		return "item:" + strings.TrimSpace(itemID)
	case strings.TrimSpace(conversationID) != "":
		return "conv:" + strings.TrimSpace(conversationID)
	case strings.TrimSpace(createdAt) != "":
		return "ts:" + strings.TrimSpace(createdAt)
	default:
		return PendingDraftKey
	}
}

// DraftKey derives the key of a draft, which has no stable item id yet.
func DraftKey(conversationID, createdAt string) string {
	return ItemKey("", conversationID, createdAt)
}

// generateULID generates a new ULID.
func generateULID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
