// Package service contains the application write path: field-level conflict
// detection, merge, and commit over the record repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/prodboard/prodboard/internal/errs"
	"github.com/prodboard/prodboard/internal/metrics"
	"github.com/prodboard/prodboard/internal/model"
	"github.com/prodboard/prodboard/internal/reconcile"
	"github.com/prodboard/prodboard/internal/repository"
)

// RecordWholeConflict is the field name used for conflicts that cover the
// whole record rather than one tracked field (legacy record-version mismatch,
// or a write carrying no version information at all).
const RecordWholeConflict = "record"

// Notifier receives committed changes so other subscribers of a record can
// fold them into their local view. Implementations must not block.
type Notifier interface {
	RecordCreated(rec model.Record)
	RecordUpdated(rec model.Record, changedFields []string)
	RecordDeleted(kind model.Kind, id uuid.UUID, recordVersion int64)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) RecordCreated(model.Record)                 {}
func (NopNotifier) RecordUpdated(model.Record, []string)       {}
func (NopNotifier) RecordDeleted(model.Kind, uuid.UUID, int64) {}

// ConflictError reports a rejected write. It carries the server's current
// state so the client can build a per-field merge view and retry.
type ConflictError struct {
	Conflicts           []reconcile.FieldConflict
	ServerData          map[string]any
	ServerFieldVersions reconcile.FieldVersions
	ServerRecordVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %d field(s)", len(e.Conflicts))
}

// Unwrap lets callers match errs.ErrVersionConflict.
func (e *ConflictError) Unwrap() error { return errs.ErrVersionConflict }

// RecordService defines operations over versioned planning records.
type RecordService interface {
	// Create inserts a new record with all field counters at zero.
	Create(ctx context.Context, kind model.Kind, data map[string]any) (*model.Record, error)
	// Get returns a single record.
	Get(ctx context.Context, kind model.Kind, id uuid.UUID) (*model.Record, error)
	// List returns all live records of a kind.
	List(ctx context.Context, kind model.Kind) ([]model.Record, error)
	// Update applies a change intent with field-level conflict detection.
	Update(ctx context.Context, req model.UpdateRequest) (*model.Record, error)
	// Delete sets tombstone on a record with a record-version check.
	Delete(ctx context.Context, kind model.Kind, id uuid.UUID, baseVer int64) (int64, error)
}

type RecordServiceImpl struct {
	repo   repository.RecordRepository
	notify Notifier
	log    *zap.Logger
}

// NewRecordService constructs RecordService with injected dependencies.
func NewRecordService(repo repository.RecordRepository, notify Notifier, log *zap.Logger) *RecordServiceImpl {
	if notify == nil {
		notify = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordServiceImpl{repo: repo, notify: notify, log: log}
}

// Create validates the payload against the kind's field set, initializes all
// field counters to zero, and persists at record version 1.
func (s *RecordServiceImpl) Create(ctx context.Context, kind model.Kind, data map[string]any) (*model.Record, error) {
	tracked, err := checkFields(kind, data)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec, err := s.repo.Create(ctx, model.Record{
		ID:            id,
		Kind:          kind,
		Data:          data,
		FieldVersions: reconcile.InitFieldVersions(tracked, now),
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	s.notify.RecordCreated(*rec)
	return rec, nil
}

// Get fetches a single record by kind and id.
func (s *RecordServiceImpl) Get(ctx context.Context, kind model.Kind, id uuid.UUID) (*model.Record, error) {
	if _, ok := model.FieldsFor(kind); !ok {
		return nil, errs.ErrUnknownKind
	}
	return s.repo.Get(ctx, kind, id)
}

// List fetches all live records of a kind.
func (s *RecordServiceImpl) List(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	if _, ok := model.FieldsFor(kind); !ok {
		return nil, errs.ErrUnknownKind
	}
	return s.repo.List(ctx, kind)
}

// Update runs the write path: validate the proposed fields, then inside the
// repository's row lock detect conflicts against the current server state and
// either commit the merged record or reject with the server's state attached.
// A valid field-version snapshot gets per-field treatment; a bare record
// version gets the coarse legacy check; a request with neither is rejected as
// a whole-record conflict, never applied blind.
func (s *RecordServiceImpl) Update(ctx context.Context, req model.UpdateRequest) (*model.Record, error) {
	tracked, err := checkFields(req.Kind, req.Fields)
	if err != nil {
		return nil, err
	}
	if len(req.Fields) == 0 {
		return nil, errors.New("validation: no fields to update")
	}

	var changed []string
	rec, err := s.repo.Update(ctx, req.Kind, req.ID, func(cur model.Record) (model.Record, error) {
		now := time.Now().UTC()

		snapshot, ok := reconcile.ValidSnapshot(req.ClientFieldVersions)
		if !ok {
			if req.ClientRecordVersion == nil {
				// No version information at all: reject rather than
				// allow an unconditional overwrite.
				return cur, wholeRecordConflict(cur, 0)
			}
			metrics.LegacyVersionChecks.WithLabelValues(string(req.Kind)).Inc()
			if *req.ClientRecordVersion != cur.RecordVersion {
				return cur, wholeRecordConflict(cur, *req.ClientRecordVersion)
			}
			// Legacy check passed; merge against the server's own
			// snapshot so tracked counters still advance.
			snapshot = cur.FieldVersions
		}

		if n := reconcile.CountBehindServer(snapshot, cur.FieldVersions, req.Fields, tracked); n > 0 {
			metrics.InvariantViolations.WithLabelValues(string(req.Kind)).Add(float64(n))
			s.log.Warn("client field versions ahead of server",
				zap.String("kind", string(req.Kind)),
				zap.String("id", req.ID.String()),
				zap.Int("fields", n),
			)
		}

		res := reconcile.Merge(snapshot, cur.FieldVersions, req.Fields, cur.Data, tracked, now)
		if len(res.Conflicts) > 0 {
			return cur, &ConflictError{
				Conflicts:           res.Conflicts,
				ServerData:          cur.Data,
				ServerFieldVersions: cur.FieldVersions,
				ServerRecordVersion: cur.RecordVersion,
			}
		}

		changed = changedFields(cur.FieldVersions, res.Versions)
		cur.Data = res.Data
		cur.FieldVersions = res.Versions
		cur.RecordVersion++
		cur.UpdatedAt = now
		return cur, nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			metrics.Conflicts.WithLabelValues(string(req.Kind)).Inc()
		}
		return nil, err
	}

	metrics.Commits.WithLabelValues(string(req.Kind)).Inc()
	s.notify.RecordUpdated(*rec, changed)
	return rec, nil
}

// Delete applies tombstone with optimistic concurrency (record version check).
func (s *RecordServiceImpl) Delete(ctx context.Context, kind model.Kind, id uuid.UUID, baseVer int64) (int64, error) {
	if _, ok := model.FieldsFor(kind); !ok {
		return 0, errs.ErrUnknownKind
	}
	if baseVer < 0 {
		return 0, errors.New("validation: negative base version")
	}
	newVer, err := s.repo.Delete(ctx, kind, id, baseVer)
	if err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			metrics.Conflicts.WithLabelValues(string(kind)).Inc()
		}
		return 0, err
	}
	s.notify.RecordDeleted(kind, id, newVer)
	return newVer, nil
}

// checkFields resolves the kind's tracked field set and rejects any proposed
// field outside it. Arbitrary request fields never reach the database.
func checkFields(kind model.Kind, fields map[string]any) ([]string, error) {
	tracked, ok := model.FieldsFor(kind)
	if !ok {
		return nil, errs.ErrUnknownKind
	}
	isTracked := make(map[string]bool, len(tracked))
	for _, f := range tracked {
		isTracked[f] = true
	}
	for f := range fields {
		if !isTracked[f] {
			return nil, fmt.Errorf("field %q: %w", f, errs.ErrUnknownField)
		}
	}
	return tracked, nil
}

func wholeRecordConflict(cur model.Record, clientVer int64) *ConflictError {
	return &ConflictError{
		Conflicts: []reconcile.FieldConflict{{
			Field:         RecordWholeConflict,
			ClientCounter: clientVer,
			ServerCounter: cur.RecordVersion,
		}},
		ServerData:          cur.Data,
		ServerFieldVersions: cur.FieldVersions,
		ServerRecordVersion: cur.RecordVersion,
	}
}

func changedFields(before, after reconcile.FieldVersions) []string {
	var out []string
	for f, v := range after {
		if before.Counter(f) != v.Counter {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
