package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Timestamp is the store-native time value returned in document data.
// Readers convert it to time.Time at the boundary.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

type serverTimestamp struct{}

// ServerTimestamp is a write sentinel replaced by the commit time.
func ServerTimestamp() any { return serverTimestamp{} }

func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

type deleteField struct{}

// DeleteField is an Update sentinel that removes a top-level field.
func DeleteField() any { return deleteField{} }

func IsDeleteField(v any) bool {
	_, ok := v.(deleteField)
	return ok
}

// splitDeletes separates top-level DeleteField sentinels from the values to
// merge. The returned keys are sorted.
func splitDeletes(data map[string]any) (map[string]any, []string) {
	set := make(map[string]any, len(data))
	var deletes []string
	for k, v := range data {
		if IsDeleteField(v) {
			deletes = append(deletes, k)
			continue
		}
		set[k] = v
	}
	sort.Strings(deletes)
	return set, deletes
}

// prepareWrite deep-copies data, replacing sentinels with commit and time.Time
// with Timestamp. Values that cannot be stored are rejected.
func prepareWrite(data map[string]any, commit time.Time) (map[string]any, error) {
	out, err := prepareValue(data, commit, "")
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func prepareValue(v any, commit time.Time, field string) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64:
		return val, nil
	case serverTimestamp:
		return TimestampOf(commit), nil
	case deleteField:
		return nil, Errorf(CodeInvalidArgument, "DeleteField is only allowed as a top-level update value (field %q)", field)
	case Timestamp:
		return val, nil
	case time.Time:
		return TimestampOf(val), nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			p, err := prepareValue(item, commit, fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			name := k
			if field != "" {
				name = field + "." + k
			}
			p, err := prepareValue(item, commit, name)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	default:
		return nil, Errorf(CodeInvalidArgument, "unsupported value %T for field %q", v, field)
	}
}

// copyValue deep-copies stored data so callers cannot alias store state.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}

const timestampKey = "$timestamp"

// encodeJSON marshals stored data, tagging timestamps so decodeJSON can
// restore them.
func encodeJSON(data map[string]any) ([]byte, error) {
	return json.Marshal(tagTimestamps(data))
}

func tagTimestamps(v any) any {
	switch val := v.(type) {
	case Timestamp:
		return map[string]any{timestampKey: val.Time().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = tagTimestamps(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = tagTimestamps(item)
		}
		return out
	default:
		return val
	}
}

func decodeJSON(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return untagTimestamps(data).(map[string]any), nil
}

func untagTimestamps(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if s, ok := val[timestampKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return TimestampOf(t)
				}
			}
		}
		for k, item := range val {
			val[k] = untagTimestamps(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = untagTimestamps(item)
		}
		return val
	default:
		return val
	}
}
