// Package docstore is a schemaless per-user document store with live
// collection subscriptions. Collections live at users/{uid}/{collection}.
package docstore

import (
	"context"
	"strings"
)

// Document is one stored record. Data holds JSON-like values plus Timestamp.
type Document struct {
	ID   string
	Data map[string]any
}

// Unsubscribe stops a subscription. Deliveries already in flight may still
// arrive after it returns.
type Unsubscribe func()

// Store is implemented by MemStore and PGStore.
type Store interface {
	// Add creates a document with a store-assigned id.
	Add(ctx context.Context, path string, data map[string]any) (string, error)
	// Update merges top-level fields into an existing document. A field set
	// to DeleteField is removed.
	Update(ctx context.Context, path, id string, data map[string]any) error
	// Delete removes a document; a missing id is a not-found error.
	Delete(ctx context.Context, path, id string) error
	Get(ctx context.Context, path, id string) (Document, error)
	// List returns the collection newest first.
	List(ctx context.Context, path string) ([]Document, error)
	// Subscribe delivers a full snapshot now and after every change. onError
	// receives delivery failures; the subscription keeps running.
	Subscribe(ctx context.Context, path string, onNext func([]Document), onError func(error)) (Unsubscribe, error)
}

// CollectionPath builds users/{uid}/{collection}.
func CollectionPath(userID, collection string) string {
	return "users/" + userID + "/" + collection
}

// SplitPath is the inverse of CollectionPath.
func SplitPath(path string) (userID, collection string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != "users" || parts[1] == "" || parts[2] == "" {
		return "", "", Errorf(CodeInvalidArgument, "invalid collection path %q", path)
	}
	return parts[1], parts[2], nil
}
