package reconcile

import "time"

// MergeResult is the computed post-write state. Data and Versions reflect all
// non-conflicting proposed changes applied; conflicting fields keep the
// server's value and counter.
type MergeResult struct {
	Data      map[string]any
	Versions  FieldVersions
	Conflicts []FieldConflict
}

// Merge applies the non-conflicting subset of proposed changes on top of the
// server's current state and bumps the counter of every field actually
// written. It is total: a result is returned even when conflicts exist, so
// the caller can show the client what a manual merge would look like. Whether
// a non-empty conflict list rejects the whole write is the caller's decision;
// Merge never commits anything.
func Merge(client, server FieldVersions, proposed map[string]any, serverData map[string]any, tracked []string, now time.Time) MergeResult {
	conflicts := Detect(client, server, proposed, serverData, tracked)
	conflicted := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.Field] = true
	}

	data := make(map[string]any, len(serverData)+len(proposed))
	for k, v := range serverData {
		data[k] = v
	}
	versions := server.Clone()

	for _, field := range sortedProposed(proposed, tracked) {
		if conflicted[field] {
			continue
		}
		data[field] = proposed[field]
		versions[field] = FieldVersion{
			Counter:   server.Counter(field) + 1,
			UpdatedAt: now,
		}
	}

	return MergeResult{Data: data, Versions: versions, Conflicts: conflicts}
}
