package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/erazemk/najdbe/internal/model"
)

// Verify at compile time that SQLite implements Store.
var _ Store = (*SQLite)(nil)

// SQLite is the durable Store backed by the tables in db.EnsureSchema.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a store on an open database with the schema applied.
func NewSQLite(db *sql.DB, opts ...Option) *SQLite {
	o := newOptions(opts)
	return &SQLite{db: db, now: o.now}
}

// Lost returns the lost report collection.
func (s *SQLite) Lost() Collection[*model.LostReport] { return sqliteLost{s} }

// Found returns the found report collection.
func (s *SQLite) Found() Collection[*model.FoundReport] { return sqliteFound{s} }

// Commit applies a transition in one transaction. Each row update is guarded
// by its expected version.
func (s *SQLite) Commit(ctx context.Context, tr Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	if r := tr.Lost; r != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE lost_reports
			 SET status = ?, linked_found_id = NULLIF(?, ''), archived_at = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			r.Status, r.LinkedFoundID, r.ArchivedAt, now, r.ID, r.Version,
		)
		if err != nil {
			return fmt.Errorf("updating lost report: %w", err)
		}
		if err := versionedUpdate(ctx, tx, res, model.KindLost, "lost_reports", r.ID, r.Version); err != nil {
			return err
		}
	}

	if r := tr.Found; r != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE found_reports
			 SET status = ?, claimant_id = NULLIF(?, ''), linked_lost_id = NULLIF(?, ''), archived_at = ?,
			     version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			r.Status, r.ClaimantID, r.LinkedLostID, r.ArchivedAt, now, r.ID, r.Version,
		)
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%w: lost report %s is already linked", model.ErrConflict, r.LinkedLostID)
			}
			return fmt.Errorf("updating found report: %w", err)
		}
		if err := versionedUpdate(ctx, tx, res, model.KindFound, "found_reports", r.ID, r.Version); err != nil {
			return err
		}
	}

	ids := make([]int64, len(tr.Events))
	for i, e := range tr.Events {
		if e.At.IsZero() {
			e.At = now
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (action, report_kind, report_id, linked_id, claimant_id, actor_id, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.Action, e.ReportKind, e.ReportID, e.LinkedID, e.ClaimantID, e.ActorID, e.At,
		)
		if err != nil {
			return fmt.Errorf("recording event: %w", err)
		}
		ids[i], _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transition: %w", err)
	}

	if tr.Lost != nil {
		tr.Lost.Version++
		tr.Lost.UpdatedAt = now
	}
	if tr.Found != nil {
		tr.Found.Version++
		tr.Found.UpdatedAt = now
	}
	for i := range tr.Events {
		tr.Events[i].ID = ids[i]
		if tr.Events[i].At.IsZero() {
			tr.Events[i].At = now
		}
	}
	return nil
}

// versionedUpdate tells a missing row apart from a stale version when a
// guarded UPDATE touched nothing.
func versionedUpdate(ctx context.Context, tx *sql.Tx, res sql.Result, kind model.Kind, table, id string, expected int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s update: %w", kind, err)
	}
	if n == 1 {
		return nil
	}

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	if err != nil {
		return fmt.Errorf("reading %s version: %w", kind, err)
	}
	return checkVersion(kind, id, current, expected)
}

// History returns the events of one report, newest first.
func (s *SQLite) History(ctx context.Context, kind model.Kind, id string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, report_kind, report_id, linked_id, claimant_id, actor_id, at
		 FROM events WHERE report_kind = ? AND report_id = ?
		 ORDER BY id DESC`, kind, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting report history: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Action, &e.ReportKind, &e.ReportID, &e.LinkedID, &e.ClaimantID, &e.ActorID, &e.At); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PutImage stores an image and returns its reference.
func (s *SQLite) PutImage(ctx context.Context, data []byte, mime string) (string, error) {
	ref := imageRef()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (ref, data, mime) VALUES (?, ?, ?)`,
		ref, data, mime,
	)
	if err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	return ref, nil
}

// GetImage returns an image and its MIME type.
func (s *SQLite) GetImage(ctx context.Context, ref string) ([]byte, string, error) {
	var data []byte
	var mime string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, mime FROM images WHERE ref = ?`, ref,
	).Scan(&data, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: image %s", model.ErrNotFound, ref)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}
	return data, mime, nil
}

// DeleteImage removes an image.
func (s *SQLite) DeleteImage(ctx context.Context, ref string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE ref = ?`, ref); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// queryRows turns a query into a lazy sequence. The query runs when the
// sequence is ranged over, once per range.
func queryRows[R any](ctx context.Context, db *sql.DB, scan func(scanner) (R, error), query string, args ...any) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(zero, fmt.Errorf("listing reports: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scan(rows)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("listing reports: %w", err))
		}
	}
}

func isConstraintError(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		// SQLITE_CONSTRAINT and its extended codes share the low byte 19.
		return coded.Code()&0xff == 19
	}
	return false
}
