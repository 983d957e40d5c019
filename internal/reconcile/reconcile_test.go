package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var productionFields = []string{"name", "venue", "client", "date", "notes"}

func versions(counters map[string]int64) FieldVersions {
	fv := FieldVersions{}
	for f, c := range counters {
		fv[f] = FieldVersion{Counter: c, UpdatedAt: time.Unix(1000, 0)}
	}
	return fv
}

func TestInitFieldVersions_AllZero(t *testing.T) {
	now := time.Now()
	fv := InitFieldVersions(productionFields, now)

	require.Len(t, fv, len(productionFields))
	for _, f := range productionFields {
		v, ok := fv[f]
		require.True(t, ok, "missing field %q", f)
		require.Equal(t, int64(0), v.Counter)
		require.Equal(t, now, v.UpdatedAt)
	}
}

func TestValidSnapshot(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  map[string]any
		ok   bool
	}{
		{"nil map", nil, false},
		{"empty map", map[string]any{}, true},
		{"well formed", map[string]any{
			"venue": map[string]any{"counter": float64(2), "updatedAt": "2026-08-30T10:00:00Z"},
		}, true},
		{"missing timestamp tolerated", map[string]any{
			"venue": map[string]any{"counter": float64(1)},
		}, true},
		{"value not an object", map[string]any{"venue": 3}, false},
		{"counter missing", map[string]any{"venue": map[string]any{"updatedAt": "2026-08-30T10:00:00Z"}}, false},
		{"counter not numeric", map[string]any{"venue": map[string]any{"counter": "2"}}, false},
		{"counter fractional", map[string]any{"venue": map[string]any{"counter": 1.5}}, false},
		{"counter negative", map[string]any{"venue": map[string]any{"counter": float64(-1)}}, false},
		{"timestamp unparsable", map[string]any{
			"venue": map[string]any{"counter": float64(1), "updatedAt": "yesterday"},
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fv, ok := ValidSnapshot(tc.raw)
			require.Equal(t, tc.ok, ok)
			if ok {
				require.Len(t, fv, len(tc.raw))
			}
		})
	}
}

func TestDetect_NoConflictWhenCountersMatch(t *testing.T) {
	server := versions(map[string]int64{"venue": 2, "client": 1})
	client := versions(map[string]int64{"venue": 2, "client": 1})

	conflicts := Detect(client, server,
		map[string]any{"venue": "Hall B"},
		map[string]any{"venue": "Hall A", "client": "Acme"},
		productionFields)
	require.Empty(t, conflicts)
}

func TestDetect_StaleFieldAlwaysConflicts(t *testing.T) {
	server := versions(map[string]int64{"venue": 3})
	client := versions(map[string]int64{"venue": 2})

	conflicts := Detect(client, server,
		map[string]any{"venue": "Hall C"},
		map[string]any{"venue": "Hall B"},
		productionFields)

	require.Len(t, conflicts, 1)
	require.Equal(t, FieldConflict{
		Field:         "venue",
		ClientCounter: 2,
		ServerCounter: 3,
		ServerValue:   "Hall B",
	}, conflicts[0])
}

func TestDetect_MissingCountersDefaultToZero(t *testing.T) {
	// Server touched venue once; client never saw any versions.
	server := versions(map[string]int64{"venue": 1})
	conflicts := Detect(FieldVersions{}, server,
		map[string]any{"venue": "Hall B", "notes": "load-in at 8"},
		map[string]any{"venue": "Hall A"},
		productionFields)

	require.Len(t, conflicts, 1)
	require.Equal(t, "venue", conflicts[0].Field)
}

func TestDetect_ClientAheadOfServerIsNoConflict(t *testing.T) {
	server := versions(map[string]int64{"venue": 1})
	client := versions(map[string]int64{"venue": 5})

	conflicts := Detect(client, server,
		map[string]any{"venue": "Hall D"},
		map[string]any{"venue": "Hall A"},
		productionFields)
	require.Empty(t, conflicts)

	require.Equal(t, 1, CountBehindServer(client, server, map[string]any{"venue": "Hall D"}, productionFields))
}

func TestDetect_UntrackedFieldsIgnored(t *testing.T) {
	server := versions(map[string]int64{"venue": 9})

	conflicts := Detect(FieldVersions{}, server,
		map[string]any{"rigging": "truss"},
		map[string]any{},
		productionFields)
	require.Empty(t, conflicts)
}

func TestDetect_DeterministicOrder(t *testing.T) {
	server := versions(map[string]int64{"venue": 2, "client": 2, "notes": 2})
	client := versions(map[string]int64{"venue": 1, "client": 1, "notes": 1})
	proposed := map[string]any{"venue": "x", "client": "y", "notes": "z"}
	serverData := map[string]any{"venue": "a", "client": "b", "notes": "c"}

	first := Detect(client, server, proposed, serverData, productionFields)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, Detect(client, server, proposed, serverData, productionFields))
	}
	require.Equal(t, []string{"client", "notes", "venue"},
		[]string{first[0].Field, first[1].Field, first[2].Field})
}

func TestMerge_CleanWriteBumpsCounters(t *testing.T) {
	now := time.Unix(2000, 0)
	server := versions(map[string]int64{"venue": 2, "client": 1})
	client := versions(map[string]int64{"venue": 2, "client": 1})
	serverData := map[string]any{"venue": "Hall A", "client": "Acme"}

	res := Merge(client, server, map[string]any{"venue": "Hall B"}, serverData, productionFields, now)

	require.Empty(t, res.Conflicts)
	require.Equal(t, "Hall B", res.Data["venue"])
	require.Equal(t, "Acme", res.Data["client"])
	require.Equal(t, FieldVersion{Counter: 3, UpdatedAt: now}, res.Versions["venue"])
	require.Equal(t, int64(1), res.Versions.Counter("client"))
}

func TestMerge_ConflictingFieldKeepsServerState(t *testing.T) {
	now := time.Unix(2000, 0)
	server := versions(map[string]int64{"venue": 3})
	client := versions(map[string]int64{"venue": 2})
	serverData := map[string]any{"venue": "Hall B"}

	res := Merge(client, server, map[string]any{"venue": "Hall C"}, serverData, productionFields, now)

	require.Len(t, res.Conflicts, 1)
	require.Equal(t, "Hall B", res.Data["venue"])
	require.Equal(t, int64(3), res.Versions.Counter("venue"))
}

func TestMerge_MixedRequestStillMergesCleanFields(t *testing.T) {
	now := time.Unix(2000, 0)
	server := versions(map[string]int64{"venue": 3, "notes": 1})
	client := versions(map[string]int64{"venue": 2, "notes": 1})
	serverData := map[string]any{"venue": "Hall B", "notes": "old"}

	res := Merge(client, server,
		map[string]any{"venue": "Hall C", "notes": "new"},
		serverData, productionFields, now)

	// venue conflicts, notes does not; the computed result shows both outcomes.
	require.Len(t, res.Conflicts, 1)
	require.Equal(t, "venue", res.Conflicts[0].Field)
	require.Equal(t, "Hall B", res.Data["venue"])
	require.Equal(t, "new", res.Data["notes"])
	require.Equal(t, int64(2), res.Versions.Counter("notes"))
	require.Equal(t, int64(3), res.Versions.Counter("venue"))
}

func TestMerge_DisjointWritesCommute(t *testing.T) {
	base := versions(map[string]int64{"venue": 1, "client": 1})
	baseData := map[string]any{"venue": "Hall A", "client": "Acme"}
	now := time.Unix(2000, 0)

	// Writer 1 changes venue, writer 2 changes client, both from the same
	// base snapshot, applied sequentially in either order.
	apply := func(first, second map[string]any) (map[string]any, FieldVersions) {
		r1 := Merge(base, base, first, baseData, productionFields, now)
		if len(r1.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %v", r1.Conflicts)
		}
		r2 := Merge(base, r1.Versions, second, r1.Data, productionFields, now)
		if len(r2.Conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %v", r2.Conflicts)
		}
		return r2.Data, r2.Versions
	}

	venueFirst := map[string]any{"venue": "Hall B"}
	clientFirst := map[string]any{"client": "Globex"}

	dataAB, versAB := apply(venueFirst, clientFirst)
	dataBA, versBA := apply(clientFirst, venueFirst)

	require.Equal(t, dataAB, dataBA)
	require.Equal(t, versAB, versBA)
}

func TestMerge_ReplayedWriteConflicts(t *testing.T) {
	base := versions(map[string]int64{"venue": 1})
	baseData := map[string]any{"venue": "Hall A"}
	now := time.Unix(2000, 0)
	proposed := map[string]any{"venue": "Hall B"}

	first := Merge(base, base, proposed, baseData, productionFields, now)
	require.Empty(t, first.Conflicts)

	// Same write resubmitted with the now-stale snapshot.
	second := Merge(base, first.Versions, proposed, first.Data, productionFields, now)
	require.Len(t, second.Conflicts, 1)
	require.Equal(t, int64(2), second.Versions.Counter("venue"))
}

func TestMerge_UntrackedFieldNeverApplied(t *testing.T) {
	base := versions(map[string]int64{"venue": 1})
	res := Merge(base, base,
		map[string]any{"rigging": "truss"},
		map[string]any{"venue": "Hall A"},
		productionFields, time.Unix(2000, 0))

	require.Empty(t, res.Conflicts)
	require.NotContains(t, res.Data, "rigging")
	require.NotContains(t, res.Versions, "rigging")
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	server := versions(map[string]int64{"venue": 1})
	serverData := map[string]any{"venue": "Hall A"}

	_ = Merge(server, server, map[string]any{"venue": "Hall B"}, serverData, productionFields, time.Now())

	require.Equal(t, "Hall A", serverData["venue"])
	require.Equal(t, int64(1), server.Counter("venue"))
}
