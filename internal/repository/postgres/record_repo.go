package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/prodboard/prodboard/internal/errs"
	"github.com/prodboard/prodboard/internal/model"
	"github.com/prodboard/prodboard/internal/reconcile"
)

// RecordRepo implements RecordRepository using PostgreSQL. All records share
// one table keyed by (kind, id); business fields and field versions are
// stored as jsonb.
type RecordRepo struct{ db *DB }

// NewRecordRepo constructs a record repository.
func NewRecordRepo(db *DB) *RecordRepo { return &RecordRepo{db: db} }

// Create inserts a new record at record version 1.
func (r *RecordRepo) Create(ctx context.Context, rec model.Record) (*model.Record, error) {
	data, fvs, err := encodeJSON(rec)
	if err != nil {
		return nil, err
	}

	const ins = `INSERT INTO records (kind, id, data, record_version, field_versions, deleted) VALUES ($1,$2,$3,$4,$5,false)`
	if _, err := r.db.Pool.Exec(ctx, ins, string(rec.Kind), rec.ID, data, int64(1), fvs); err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}

	rec.RecordVersion = 1
	rec.Deleted = false
	return &rec, nil
}

// Get returns a single live record by kind and id.
func (r *RecordRepo) Get(ctx context.Context, kind model.Kind, id uuid.UUID) (*model.Record, error) {
	const q = `
SELECT data, record_version, field_versions, updated_at
FROM records WHERE kind=$1 AND id=$2 AND deleted=false`
	row := r.db.Pool.QueryRow(ctx, q, string(kind), id)

	rec := model.Record{ID: id, Kind: kind}
	var data, fvs []byte
	if err := row.Scan(&data, &rec.RecordVersion, &fvs, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if err := decodeJSON(data, fvs, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all live records of a kind, most recently updated first.
func (r *RecordRepo) List(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	const q = `
SELECT id, data, record_version, field_versions, updated_at
FROM records
WHERE kind=$1 AND deleted=false
ORDER BY updated_at DESC, id`
	rows, err := r.db.Pool.Query(ctx, q, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		rec := model.Record{Kind: kind}
		var data, fvs []byte
		if err := rows.Scan(&rec.ID, &data, &rec.RecordVersion, &fvs, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(data, fvs, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Update locks the row, hands the current state to mutate, and persists the
// record mutate returns. The row lock holds until commit, so the read-decide-
// write sequence is serialized per record instance.
func (r *RecordRepo) Update(
	ctx context.Context, kind model.Kind, id uuid.UUID, mutate func(model.Record) (model.Record, error),
) (rec *model.Record, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `
SELECT data, record_version, field_versions, updated_at
FROM records WHERE kind=$1 AND id=$2 AND deleted=false FOR UPDATE`
	cur := model.Record{ID: id, Kind: kind}
	var data, fvs []byte
	if err = tx.QueryRow(ctx, sel, string(kind), id).Scan(&data, &cur.RecordVersion, &fvs, &cur.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if err = decodeJSON(data, fvs, &cur); err != nil {
		return nil, err
	}

	next, err := mutate(cur)
	if err != nil {
		return nil, err
	}
	if next.RecordVersion <= cur.RecordVersion {
		return nil, fmt.Errorf("record version must advance (%d -> %d)", cur.RecordVersion, next.RecordVersion)
	}

	nextData, nextFvs, err := encodeJSON(next)
	if err != nil {
		return nil, err
	}

	const upd = `UPDATE records SET data=$3, record_version=$4, field_versions=$5, updated_at=now() WHERE kind=$1 AND id=$2`
	if _, err = tx.Exec(ctx, upd, string(kind), id, nextData, next.RecordVersion, nextFvs); err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete marks a record as deleted (tombstone) with version increment.
func (r *RecordRepo) Delete(
	ctx context.Context, kind model.Kind, id uuid.UUID, baseVer int64,
) (newVer int64, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT record_version FROM records WHERE kind=$1 AND id=$2 AND deleted=false FOR UPDATE`
	const upd = `UPDATE records SET deleted=true, record_version=$3, updated_at=now() WHERE kind=$1 AND id=$2`

	var curVer int64
	if err = tx.QueryRow(ctx, sel, string(kind), id).Scan(&curVer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	if curVer != baseVer {
		return 0, errs.ErrVersionConflict
	}
	newVer = curVer + 1
	if _, err = tx.Exec(ctx, upd, string(kind), id, newVer); err != nil {
		return 0, err
	}
	return newVer, nil
}

func encodeJSON(rec model.Record) (data, fvs []byte, err error) {
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if rec.FieldVersions == nil {
		rec.FieldVersions = reconcile.FieldVersions{}
	}
	if data, err = json.Marshal(rec.Data); err != nil {
		return nil, nil, err
	}
	if fvs, err = json.Marshal(rec.FieldVersions); err != nil {
		return nil, nil, err
	}
	return data, fvs, nil
}

func decodeJSON(data, fvs []byte, rec *model.Record) error {
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	if err := json.Unmarshal(fvs, &rec.FieldVersions); err != nil {
		return fmt.Errorf("decode field versions: %w", err)
	}
	return nil
}
