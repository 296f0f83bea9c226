package postgres

import (
	"context"
	"fmt"
)

// ReplacePhotos overwrites the photo set for (moveID, version) in a single
// transaction, preserving ref order.
func (s *Store) ReplacePhotos(ctx context.Context, moveID int64, version int, refs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM move_photos WHERE move_id = $1 AND version = $2`,
		moveID, version,
	)
	if err != nil {
		return fmt.Errorf("clearing photo version: %w", err)
	}

	for i, ref := range refs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO move_photos (move_id, version, position, photo_ref) VALUES ($1, $2, $3, $4)`,
			moveID, version, i, ref,
		)
		if err != nil {
			return fmt.Errorf("storing photo %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing photo set: %w", err)
	}
	return nil
}

// ListPhotos returns the stored refs for a version in order.
func (s *Store) ListPhotos(ctx context.Context, moveID int64, version int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT photo_ref FROM move_photos WHERE move_id = $1 AND version = $2 ORDER BY position ASC`,
		moveID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning photo: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListPhotoVersions returns the versions that have stored photos, ascending.
func (s *Store) ListPhotoVersions(ctx context.Context, moveID int64) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT version FROM move_photos WHERE move_id = $1 ORDER BY version ASC`,
		moveID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing photo versions: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning photo version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
