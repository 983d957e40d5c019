// Package reconcile implements field-level optimistic concurrency: per-field
// version counters, concurrent-edit detection, and merge resolution. All
// functions are pure; persistence and transport live with the callers.
package reconcile

import "time"

// FieldVersion tracks one field's edit counter and last change time.
type FieldVersion struct {
	Counter   int64     `json:"counter"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FieldVersions maps field name to its version state for one record instance.
type FieldVersions map[string]FieldVersion

// Clone returns a shallow copy safe for independent mutation.
func (fv FieldVersions) Clone() FieldVersions {
	out := make(FieldVersions, len(fv))
	for k, v := range fv {
		out[k] = v
	}
	return out
}

// Counter returns the field's counter, 0 when the field is untracked.
func (fv FieldVersions) Counter(field string) int64 {
	return fv[field].Counter
}

// InitFieldVersions returns a baseline map with every tracked field at
// counter 0. Called once at record creation so later comparisons never
// hit a missing key.
func InitFieldVersions(tracked []string, now time.Time) FieldVersions {
	fv := make(FieldVersions, len(tracked))
	for _, f := range tracked {
		fv[f] = FieldVersion{Counter: 0, UpdatedAt: now}
	}
	return fv
}

// ValidSnapshot decodes a client-supplied version map from its generic JSON
// form. It reports false on any shape mismatch (wrong value type, missing or
// non-numeric counter) so callers can fall back to whole-record versioning.
// It never panics.
func ValidSnapshot(raw map[string]any) (FieldVersions, bool) {
	if raw == nil {
		return nil, false
	}
	fv := make(FieldVersions, len(raw))
	for field, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		counter, ok := asInt64(entry["counter"])
		if !ok || counter < 0 {
			return nil, false
		}
		updatedAt, ok := asTime(entry["updatedAt"])
		if !ok {
			return nil, false
		}
		fv[field] = FieldVersion{Counter: counter, UpdatedAt: updatedAt}
	}
	return fv, true
}

// asInt64 accepts the numeric representations JSON decoding produces.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// asTime accepts RFC3339 strings and time.Time values. A missing timestamp is
// tolerated (older clients omit it); only a present-but-unparsable value fails.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, true
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
