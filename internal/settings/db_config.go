package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// snapshot holds the DB-backed settings read at startup.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var current atomic.Pointer[snapshot]

func init() {
	current.Store(&snapshot{values: map[string]json.RawMessage{}})
}

// Store replaces the in-memory snapshot of DB-backed settings.
func Store(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" || v == nil {
			continue
		}
		next[key] = append(json.RawMessage(nil), v...)
	}
	current.Store(&snapshot{updatedAt: updatedAt.UTC(), values: next})
}

// UpdatedAt returns the newest settings row timestamp in the snapshot.
func UpdatedAt() time.Time {
	return current.Load().updatedAt
}

// Raw returns a copy of the raw JSON value for key.
func Raw(key string) (json.RawMessage, bool) {
	val, ok := current.Load().values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), val...), true
}

// Decode unmarshals the value for key into out, reporting whether the key was present and valid.
func Decode(key string, out any) bool {
	raw, ok := Raw(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}
