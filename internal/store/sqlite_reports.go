package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/erazemk/najdbe/internal/model"
)

const lostColumns = `id, description, possible_location, category, date_lost, image_ref, status,
	reporter_id, COALESCE(linked_found_id, ''), version, created_at, updated_at, archived_at`

type sqliteLost struct{ s *SQLite }

func (c sqliteLost) Put(ctx context.Context, r *model.LostReport) error {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stored, err := scanLost(tx.QueryRowContext(ctx,
		`SELECT `+lostColumns+` FROM lost_reports WHERE id = ?`, r.ID))
	if errors.Is(err, sql.ErrNoRows) {
		stored = nil
	} else if err != nil {
		return fmt.Errorf("getting lost report: %w", err)
	}

	if err := prepareLost(stored, r, c.s.now()); err != nil {
		return err
	}

	if stored == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO lost_reports (id, description, possible_location, category, date_lost, image_ref,
			                           status, reporter_id, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Description, r.PossibleLocation, r.Category, r.DateLost, r.ImageRef,
			r.Status, r.ReporterID, r.Version, r.CreatedAt, r.UpdatedAt,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE lost_reports
			 SET description = ?, possible_location = ?, category = ?, image_ref = ?, version = ?, updated_at = ?
			 WHERE id = ?`,
			r.Description, r.PossibleLocation, r.Category, r.ImageRef, r.Version, r.UpdatedAt, r.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("saving lost report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing lost report: %w", err)
	}
	return nil
}

func (c sqliteLost) Get(ctx context.Context, id string) (*model.LostReport, error) {
	r, err := scanLost(c.s.db.QueryRowContext(ctx,
		`SELECT `+lostColumns+` FROM lost_reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(model.KindLost, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting lost report: %w", err)
	}
	return r, nil
}

func (c sqliteLost) All(ctx context.Context) iter.Seq2[*model.LostReport, error] {
	return queryRows(ctx, c.s.db, scanLost,
		`SELECT `+lostColumns+` FROM lost_reports ORDER BY seq`)
}

func (c sqliteLost) InCategory(ctx context.Context, cat model.Category) iter.Seq2[*model.LostReport, error] {
	return queryRows(ctx, c.s.db, scanLost,
		`SELECT `+lostColumns+` FROM lost_reports WHERE category = ? ORDER BY seq`, cat)
}

func scanLost(row scanner) (*model.LostReport, error) {
	r := &model.LostReport{}
	err := row.Scan(&r.ID, &r.Description, &r.PossibleLocation, &r.Category, &r.DateLost, &r.ImageRef, &r.Status,
		&r.ReporterID, &r.LinkedFoundID, &r.Version, &r.CreatedAt, &r.UpdatedAt, &r.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

const foundColumns = `id, description, location, category, date_found, image_ref, status,
	finder_id, finder_name, finder_roll_no, finder_contact, COALESCE(claimant_id, ''), COALESCE(linked_lost_id, ''),
	version, created_at, updated_at, archived_at`

type sqliteFound struct{ s *SQLite }

func (c sqliteFound) Put(ctx context.Context, r *model.FoundReport) error {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stored, err := scanFound(tx.QueryRowContext(ctx,
		`SELECT `+foundColumns+` FROM found_reports WHERE id = ?`, r.ID))
	if errors.Is(err, sql.ErrNoRows) {
		stored = nil
	} else if err != nil {
		return fmt.Errorf("getting found report: %w", err)
	}

	if err := prepareFound(stored, r, c.s.now()); err != nil {
		return err
	}

	if stored == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO found_reports (id, description, location, category, date_found, image_ref, status,
			                            finder_id, finder_name, finder_roll_no, finder_contact, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Description, r.Location, r.Category, r.DateFound, r.ImageRef, r.Status,
			r.FinderID, r.FinderName, r.FinderRollNo, r.FinderContact, r.Version, r.CreatedAt, r.UpdatedAt,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE found_reports
			 SET description = ?, location = ?, category = ?, image_ref = ?, finder_name = ?, finder_roll_no = ?,
			     finder_contact = ?, version = ?, updated_at = ?
			 WHERE id = ?`,
			r.Description, r.Location, r.Category, r.ImageRef, r.FinderName, r.FinderRollNo, r.FinderContact,
			r.Version, r.UpdatedAt, r.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("saving found report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing found report: %w", err)
	}
	return nil
}

func (c sqliteFound) Get(ctx context.Context, id string) (*model.FoundReport, error) {
	r, err := scanFound(c.s.db.QueryRowContext(ctx,
		`SELECT `+foundColumns+` FROM found_reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(model.KindFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting found report: %w", err)
	}
	return r, nil
}

func (c sqliteFound) All(ctx context.Context) iter.Seq2[*model.FoundReport, error] {
	return queryRows(ctx, c.s.db, scanFound,
		`SELECT `+foundColumns+` FROM found_reports ORDER BY seq`)
}

func (c sqliteFound) InCategory(ctx context.Context, cat model.Category) iter.Seq2[*model.FoundReport, error] {
	return queryRows(ctx, c.s.db, scanFound,
		`SELECT `+foundColumns+` FROM found_reports WHERE category = ? ORDER BY seq`, cat)
}

func scanFound(row scanner) (*model.FoundReport, error) {
	r := &model.FoundReport{}
	err := row.Scan(&r.ID, &r.Description, &r.Location, &r.Category, &r.DateFound, &r.ImageRef, &r.Status,
		&r.FinderID, &r.FinderName, &r.FinderRollNo, &r.FinderContact, &r.ClaimantID, &r.LinkedLostID,
		&r.Version, &r.CreatedAt, &r.UpdatedAt, &r.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}
