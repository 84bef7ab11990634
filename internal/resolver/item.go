package resolver

import (
	"github.com/hpungsan/casefile/internal/filedcache"
	"github.com/hpungsan/casefile/internal/filing"
)

// CurrentItemContext is what the host exposes about the open email. It is
// recomputed and passed in on every resolution; nothing reads host state
// ad hoc.
type CurrentItemContext struct {
	ItemID          string   `json:"itemId,omitempty"`
	ConversationID  string   `json:"conversationId,omitempty"`
	Subject         string   `json:"subject"`
	SenderAddress   string   `json:"sender,omitempty"`
	Recipients      []string `json:"recipients,omitempty"`
	AttachmentNames []string `json:"attachments,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
}

// Key is the stable local identity key of the item.
func (c CurrentItemContext) Key() string {
	return filing.ItemKey(c.ItemID, c.ConversationID, c.CreatedAt)
}

// CacheKey is the filed-cache key for the item: the conversation id when
// known, otherwise the normalized-subject key.
func (c CurrentItemContext) CacheKey() string {
	if c.ConversationID != "" {
		return c.ConversationID
	}
	return filedcache.SubjectKey(c.Subject)
}

// Empty reports whether the context identifies no item at all.
func (c CurrentItemContext) Empty() bool {
	return c.ItemID == "" && c.ConversationID == "" && c.Subject == "" && c.CreatedAt == ""
}
