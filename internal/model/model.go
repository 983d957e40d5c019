// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/prodboard/prodboard/internal/reconcile"
)

// Kind identifies one collaboratively edited entity type of the planning board.
type Kind string

const (
	KindProduction    Kind = "production"
	KindCamera        Kind = "camera"
	KindCCU           Kind = "ccu"
	KindSource        Kind = "source"
	KindSend          Kind = "send"
	KindScreen        Kind = "screen"
	KindChecklistItem Kind = "checklist_item"
)

// Record is a single planning record with versioning metadata. Data holds the
// kind-specific business fields; FieldVersions tracks per-field edit counters
// and RecordVersion is the coarse whole-record fallback for older clients.
type Record struct {
	ID            uuid.UUID
	Kind          Kind
	Data          map[string]any
	RecordVersion int64
	FieldVersions reconcile.FieldVersions
	Deleted       bool
	UpdatedAt     time.Time
}

// UpdateRequest is a client change intent against one record. Exactly one of
// the version carriers is normally set: ClientFieldVersions when the client
// speaks field-level versioning, ClientRecordVersion for legacy whole-record
// clients. Both absent means the client supplied no basis for the write.
type UpdateRequest struct {
	Kind                Kind
	ID                  uuid.UUID
	Fields              map[string]any
	ClientFieldVersions map[string]any // raw wire form, validated by the service
	ClientRecordVersion *int64
}

// kindFields declares, per kind, the fields subject to field-level version
// tracking. Fields omitted here fall back to RecordVersion granularity.
// The wire uses these exact names.
var kindFields = map[Kind][]string{
	KindProduction:    {"name", "venue", "client", "date", "status", "notes"},
	KindCamera:        {"name", "model", "lens", "position", "operator", "ccuId", "notes"},
	KindCCU:           {"name", "model", "rackPosition", "cameraId", "notes"},
	KindSource:        {"name", "type", "format", "route", "notes"},
	KindSend:          {"name", "destination", "format", "route", "notes"},
	KindScreen:        {"name", "width", "height", "aspectRatio", "content", "notes"},
	KindChecklistItem: {"title", "done", "assignee", "dueDate", "notes"},
}

// FieldsFor returns the tracked field set for a kind, or false for an
// unregistered kind.
func FieldsFor(kind Kind) ([]string, bool) {
	fields, ok := kindFields[kind]
	return fields, ok
}

// Kinds returns all registered kinds. Order is unspecified.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindFields))
	for k := range kindFields {
		out = append(out, k)
	}
	return out
}
