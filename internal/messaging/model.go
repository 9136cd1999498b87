package messaging

import (
	"slices"
	"strings"
	"time"
)

const (
	keyPrefix    = "thread_"
	keySeparator = "_"
)

// ThreadKey canonically identifies the conversation between a set of users.
type ThreadKey string

// KeyFor returns the key shared by a and b regardless of argument order.
// Ids containing the separator would make keys ambiguous; Service.Open
// rejects them.
func KeyFor(a, b string) ThreadKey {
	return ThreadKey(keyPrefix + strings.Join(participants(a, b), keySeparator))
}

// participants returns the sorted, deduplicated ids.
func participants(a, b string) []string {
	ids := []string{a, b}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Message is one entry in a thread.
type Message struct {
	FromUserID string    `json:"fromUserId"`
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
}

// Thread is an append-only conversation.
type Thread struct {
	Key          ThreadKey `json:"key"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Includes reports whether userID takes part in the thread.
func (t Thread) Includes(userID string) bool {
	return slices.Contains(t.Participants, userID)
}

// Counterpart returns the other participant, or userID itself for a self thread.
func (t Thread) Counterpart(userID string) string {
	for _, p := range t.Participants {
		if p != userID {
			return p
		}
	}
	return userID
}
