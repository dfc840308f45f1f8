package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"contentplanner/pkg/docstore"
)

// StripUndefined drops nil values and nil pointers, dereferences the rest and
// reduces named string types to plain strings. Applying it twice is the same
// as applying it once.
func StripUndefined(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isNilValue(v) {
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			rv = rv.Elem()
		}
		if rv.Kind() == reflect.String {
			out[k] = rv.String()
			continue
		}
		out[k] = rv.Interface()
	}
	return out
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// ConvertTimestamps replaces every docstore.Timestamp in v, at any depth,
// with a time.Time. Maps and slices are copied.
func ConvertTimestamps(v any) any {
	switch val := v.(type) {
	case docstore.Timestamp:
		return val.Time()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ConvertTimestamps(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ConvertTimestamps(item)
		}
		return out
	default:
		return val
	}
}

// TaskFromDocument maps a stored document to a Task, keeping the document id.
func TaskFromDocument(doc docstore.Document) (Task, error) {
	var t Task
	if err := decodeDocument(doc, &t); err != nil {
		return Task{}, fmt.Errorf("task %s: %w", doc.ID, err)
	}
	t.ID = doc.ID
	return t, nil
}

// PostFromDocument maps a stored document to a SocialMediaPost.
func PostFromDocument(doc docstore.Document) (SocialMediaPost, error) {
	var p SocialMediaPost
	if err := decodeDocument(doc, &p); err != nil {
		return SocialMediaPost{}, fmt.Errorf("post %s: %w", doc.ID, err)
	}
	p.ID = doc.ID
	return p, nil
}

func decodeDocument(doc docstore.Document, out any) error {
	converted := ConvertTimestamps(doc.Data)
	raw, err := json.Marshal(converted)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// TasksFromDocuments converts a snapshot, skipping documents that do not
// decode. The second result lists the ids that were skipped.
func TasksFromDocuments(docs []docstore.Document) ([]Task, []string) {
	tasks := make([]Task, 0, len(docs))
	var skipped []string
	for _, d := range docs {
		t, err := TaskFromDocument(d)
		if err != nil {
			skipped = append(skipped, d.ID)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, skipped
}

func PostsFromDocuments(docs []docstore.Document) ([]SocialMediaPost, []string) {
	posts := make([]SocialMediaPost, 0, len(docs))
	var skipped []string
	for _, d := range docs {
		p, err := PostFromDocument(d)
		if err != nil {
			skipped = append(skipped, d.ID)
			continue
		}
		posts = append(posts, p)
	}
	return posts, skipped
}

// FarFutureDueDate stands in for a missing due date when asking the model to
// rank tasks, so an undated task never reads as urgent.
var FarFutureDueDate = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
