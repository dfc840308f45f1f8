package mq

import "time"

// Document change operations.
const (
	OpAdded    = "added"
	OpModified = "modified"
	OpRemoved  = "removed"
)

// DocumentChangedPayload is published through the outbox after every committed
// document write. Subscribers only use it as a signal to re-read the collection.
type DocumentChangedPayload struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Collection string    `json:"collection"`
	DocumentID string    `json:"document_id"`
	Op         string    `json:"op"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DocumentRoutingKey is the topic key for changes to one user's collection.
func DocumentRoutingKey(userID, collection string) string {
	return "docs." + userID + "." + collection
}
