// Package convert maps domain types to and from their JSON wire shapes.
package convert

import (
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/prodboard/prodboard/internal/model"
	"github.com/prodboard/prodboard/internal/reconcile"
)

// FieldVersionDTO is the wire form of one field's version state.
type FieldVersionDTO struct {
	Counter   int64  `json:"counter"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// RecordDTO is the wire form of a record, the success shape of reads and writes.
type RecordDTO struct {
	ID            string                     `json:"id"`
	Kind          string                     `json:"kind"`
	Data          map[string]any             `json:"data"`
	RecordVersion int64                      `json:"recordVersion"`
	FieldVersions map[string]FieldVersionDTO `json:"fieldVersions"`
	UpdatedAt     string                     `json:"updatedAt,omitempty"`
}

// FieldConflictDTO is the wire form of one detected conflict.
type FieldConflictDTO struct {
	Field         string `json:"field"`
	ClientVersion int64  `json:"clientVersion"`
	ServerVersion int64  `json:"serverVersion"`
	ServerValue   any    `json:"serverValue"`
}

// ConflictDTO is the 409 response body: the conflict list plus the server's
// current state, never mixed with the success shape.
type ConflictDTO struct {
	Conflicts           []FieldConflictDTO         `json:"conflicts"`
	ServerData          map[string]any             `json:"serverData"`
	ServerFieldVersions map[string]FieldVersionDTO `json:"serverFieldVersions"`
	ServerRecordVersion int64                      `json:"serverRecordVersion"`
}

// UpdateBody is the wire form of a change intent.
type UpdateBody struct {
	Fields              map[string]any `json:"fields"`
	ClientFieldVersions map[string]any `json:"clientFieldVersions,omitempty"`
	ClientRecordVersion *int64         `json:"clientRecordVersion,omitempty"`
}

// ToFieldVersionDTOs converts a domain version map to wire form.
func ToFieldVersionDTOs(fv reconcile.FieldVersions) map[string]FieldVersionDTO {
	out := make(map[string]FieldVersionDTO, len(fv))
	for f, v := range fv {
		out[f] = FieldVersionDTO{Counter: v.Counter, UpdatedAt: ts(v.UpdatedAt)}
	}
	return out
}

// ToRecordDTO converts a record to wire form.
func ToRecordDTO(rec model.Record) RecordDTO {
	return RecordDTO{
		ID:            rec.ID.String(),
		Kind:          string(rec.Kind),
		Data:          rec.Data,
		RecordVersion: rec.RecordVersion,
		FieldVersions: ToFieldVersionDTOs(rec.FieldVersions),
		UpdatedAt:     ts(rec.UpdatedAt),
	}
}

// ToFieldConflictDTOs converts detected conflicts to wire form.
func ToFieldConflictDTOs(conflicts []reconcile.FieldConflict) []FieldConflictDTO {
	out := make([]FieldConflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, FieldConflictDTO{
			Field:         c.Field,
			ClientVersion: c.ClientCounter,
			ServerVersion: c.ServerCounter,
			ServerValue:   c.ServerValue,
		})
	}
	return out
}

// ToConflictDTO assembles the 409 body from the server's rejected-write state.
func ToConflictDTO(conflicts []reconcile.FieldConflict, serverData map[string]any, serverVersions reconcile.FieldVersions, serverRecordVersion int64) ConflictDTO {
	return ConflictDTO{
		Conflicts:           ToFieldConflictDTOs(conflicts),
		ServerData:          serverData,
		ServerFieldVersions: ToFieldVersionDTOs(serverVersions),
		ServerRecordVersion: serverRecordVersion,
	}
}

// FromUpdateBody converts a wire change intent to the domain request.
func FromUpdateBody(kind model.Kind, id string, body UpdateBody) (model.UpdateRequest, error) {
	var recID u.UUID
	if err := recID.UnmarshalText([]byte(id)); err != nil {
		return model.UpdateRequest{}, fmt.Errorf("invalid id: %w", err)
	}
	if len(body.Fields) == 0 {
		return model.UpdateRequest{}, fmt.Errorf("empty fields")
	}
	return model.UpdateRequest{
		Kind:                kind,
		ID:                  recID,
		Fields:              body.Fields,
		ClientFieldVersions: body.ClientFieldVersions,
		ClientRecordVersion: body.ClientRecordVersion,
	}, nil
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
