package reconcile

import "sort"

// FieldConflict reports one field changed by another writer since the client
// last read it. ServerValue carries what the client would have clobbered.
type FieldConflict struct {
	Field         string `json:"field"`
	ClientCounter int64  `json:"clientCounter"`
	ServerCounter int64  `json:"serverCounter"`
	ServerValue   any    `json:"serverValue"`
}

// Detect compares the client's believed versions against the server's current
// versions for every proposed field and returns the fields that were
// concurrently modified. Proposed fields outside the tracked set are ignored
// here; they fall back to whole-record versioning at the caller.
//
// Counters missing on either side default to 0. A server counter behind the
// client's (client claims a future version) is treated as no conflict; callers
// may want to log it, see CountBehindServer.
//
// Output is ordered by field name so identical input always yields identical
// output.
func Detect(client, server FieldVersions, proposed map[string]any, serverData map[string]any, tracked []string) []FieldConflict {
	conflicts := []FieldConflict{}
	for _, field := range sortedProposed(proposed, tracked) {
		clientV := client.Counter(field)
		serverV := server.Counter(field)
		if serverV > clientV {
			conflicts = append(conflicts, FieldConflict{
				Field:         field,
				ClientCounter: clientV,
				ServerCounter: serverV,
				ServerValue:   serverData[field],
			})
		}
	}
	return conflicts
}

// CountBehindServer returns how many proposed fields carry a client counter
// ahead of the server's. Nonzero means a client is claiming versions the
// server never issued — clock skew, state corruption, or a caller bug.
func CountBehindServer(client, server FieldVersions, proposed map[string]any, tracked []string) int {
	n := 0
	for _, field := range sortedProposed(proposed, tracked) {
		if client.Counter(field) > server.Counter(field) {
			n++
		}
	}
	return n
}

// sortedProposed returns the proposed field names that are tracked, sorted.
// Map iteration order is randomized, so a stable order is imposed explicitly.
func sortedProposed(proposed map[string]any, tracked []string) []string {
	isTracked := make(map[string]bool, len(tracked))
	for _, f := range tracked {
		isTracked[f] = true
	}
	fields := make([]string, 0, len(proposed))
	for f := range proposed {
		if isTracked[f] {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}
