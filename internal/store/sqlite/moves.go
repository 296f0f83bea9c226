package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

// selectMove is the shared column list for move queries. Point names are
// joined for display; both sides of the route may still be unset on drafts.
const selectMove = `
SELECT m.id, m.status, m.created_by, m.operator_id,
       m.from_point_id, m.to_point_id, m.photo_file_id, m.note,
       m.invoice_version,
       m.handed_at, m.handed_by, m.received_at, m.received_by,
       m.correction_status, m.correction_note, m.correction_photo,
       m.correction_by, m.correction_at,
       m.created_at, m.updated_at,
       fp.name, tp.name
FROM moves m
LEFT JOIN points fp ON fp.id = m.from_point_id
LEFT JOIN points tp ON tp.id = m.to_point_id`

// CreateMove inserts a new draft move. The creator starts as operator.
func (s *Store) CreateMove(ctx context.Context, createdBy int64) (*model.Move, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO moves (created_by, operator_id) VALUES (?, ?)`,
		createdBy, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating move: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating move: %w", err)
	}
	return s.GetMove(ctx, id)
}

// GetMove returns a move by ID.
func (s *Store) GetMove(ctx context.Context, id int64) (*model.Move, error) {
	row := s.db.QueryRowContext(ctx, selectMove+` WHERE m.id = ?`, id)
	m, err := scanMove(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting move: %w", err)
	}
	return m, nil
}

// ListMoves returns the most recent moves, newest first.
func (s *Store) ListMoves(ctx context.Context, limit int) ([]model.Move, error) {
	return s.listMoves(ctx, selectMove+` ORDER BY m.id DESC LIMIT ?`, limit)
}

// ListMovesActive returns moves that are not yet done or canceled.
func (s *Store) ListMovesActive(ctx context.Context, limit int) ([]model.Move, error) {
	return s.listMoves(ctx,
		selectMove+` WHERE m.status NOT IN ('done', 'canceled') ORDER BY m.id DESC LIMIT ?`, limit)
}

// ListMovesClosed returns moves in a terminal status.
func (s *Store) ListMovesClosed(ctx context.Context, limit int) ([]model.Move, error) {
	return s.listMoves(ctx,
		selectMove+` WHERE m.status IN ('done', 'canceled') ORDER BY m.id DESC LIMIT ?`, limit)
}

func (s *Store) listMoves(ctx context.Context, query string, args ...any) ([]model.Move, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing moves: %w", err)
	}
	defer rows.Close()

	var moves []model.Move
	for rows.Next() {
		m, err := scanMove(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning move: %w", err)
		}
		moves = append(moves, *m)
	}
	return moves, rows.Err()
}

// SetOperator reassigns the move's operator.
func (s *Store) SetOperator(ctx context.Context, id, operatorID int64) error {
	return s.updateMove(ctx, "setting operator",
		`UPDATE moves SET operator_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		operatorID, id)
}

// SetFromPoint sets the source point of the route.
func (s *Store) SetFromPoint(ctx context.Context, id, pointID int64) error {
	return s.updateMove(ctx, "setting from point",
		`UPDATE moves SET from_point_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		pointID, id)
}

// SetToPoint sets the destination point of the route.
func (s *Store) SetToPoint(ctx context.Context, id, pointID int64) error {
	return s.updateMove(ctx, "setting to point",
		`UPDATE moves SET to_point_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		pointID, id)
}

// SetNote updates the free-text note. An empty string clears it.
func (s *Store) SetNote(ctx context.Context, id int64, note string) error {
	return s.updateMove(ctx, "setting note",
		`UPDATE moves SET note = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		note, id)
}

// SetPreviewPhoto updates the legacy single-photo mirror.
func (s *Store) SetPreviewPhoto(ctx context.Context, id int64, ref string) error {
	return s.updateMove(ctx, "setting preview photo",
		`UPDATE moves SET photo_file_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		ref, id)
}

// SetStatus updates the move status.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	return s.updateMove(ctx, "setting status",
		`UPDATE moves SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
}

// MarkHanded records the source point's handoff acknowledgement. The update
// is conditional on handed_at being null so that concurrent calls cannot
// both win; zero affected rows means it was already recorded.
func (s *Store) MarkHanded(ctx context.Context, id, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE moves
		 SET handed_at = CURRENT_TIMESTAMP, handed_by = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND handed_at IS NULL`,
		userID, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking handed: %w", err)
	}
	return s.appliedOrMissing(ctx, result, id)
}

// MarkReceived records the destination point's receipt acknowledgement,
// with the same conditional-update semantics as MarkHanded.
func (s *Store) MarkReceived(ctx context.Context, id, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE moves
		 SET received_at = CURRENT_TIMESTAMP, received_by = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND received_at IS NULL`,
		userID, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking received: %w", err)
	}
	return s.appliedOrMissing(ctx, result, id)
}

// ClearHandoffState nulls both acknowledgements ahead of a fresh send round.
func (s *Store) ClearHandoffState(ctx context.Context, id int64) error {
	return s.updateMove(ctx, "clearing handoff state",
		`UPDATE moves
		 SET handed_at = NULL, handed_by = NULL,
		     received_at = NULL, received_by = NULL,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		id)
}

// RequestCorrection flags the current invoice version as disputed.
func (s *Store) RequestCorrection(ctx context.Context, id, userID int64, note, photoRef string) error {
	return s.updateMove(ctx, "requesting correction",
		`UPDATE moves
		 SET correction_status = 'requested',
		     correction_note = ?,
		     correction_photo = ?,
		     correction_by = ?,
		     correction_at = CURRENT_TIMESTAMP,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		note, photoRef, userID, id)
}

// ResolveCorrection marks a pending correction as handled.
func (s *Store) ResolveCorrection(ctx context.Context, id int64) error {
	return s.updateMove(ctx, "resolving correction",
		`UPDATE moves SET correction_status = 'resolved', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id)
}

// BumpInvoiceVersion increments the invoice version and returns the new value.
func (s *Store) BumpInvoiceVersion(ctx context.Context, id int64) (int, error) {
	err := s.updateMove(ctx, "bumping invoice version",
		`UPDATE moves SET invoice_version = invoice_version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id)
	if err != nil {
		return 0, err
	}

	var version int
	err = s.db.QueryRowContext(ctx,
		`SELECT invoice_version FROM moves WHERE id = ?`, id,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading invoice version: %w", err)
	}
	return version, nil
}

// ResetForReinvoice reopens the acknowledgement gate after a re-invoice:
// status back to sent, both acknowledgements cleared, correction resolved.
func (s *Store) ResetForReinvoice(ctx context.Context, id int64) error {
	return s.updateMove(ctx, "resetting for reinvoice",
		`UPDATE moves
		 SET status = 'sent',
		     handed_at = NULL, handed_by = NULL,
		     received_at = NULL, received_by = NULL,
		     correction_status = 'resolved',
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		id)
}

// updateMove runs a single-row mutation and maps zero affected rows to
// store.ErrNotFound.
func (s *Store) updateMove(ctx context.Context, action, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// appliedOrMissing resolves the ambiguity of a zero-row conditional update:
// either the move does not exist, or the acknowledgement was already set.
func (s *Store) appliedOrMissing(ctx context.Context, result sql.Result, id int64) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking affected rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM moves WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, store.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("checking move existence: %w", err)
	}
	return false, nil
}

func scanMove(sc interface{ Scan(...any) error }) (*model.Move, error) {
	var (
		m                                  model.Move
		fromID, toID                       sql.NullInt64
		handedBy, receivedBy, corrBy       sql.NullInt64
		preview, fromName, toName          sql.NullString
		handedAt, receivedAt, correctionAt sql.NullTime
	)

	err := sc.Scan(&m.ID, &m.Status, &m.CreatedBy, &m.OperatorID,
		&fromID, &toID, &preview, &m.Note,
		&m.InvoiceVersion,
		&handedAt, &handedBy, &receivedAt, &receivedBy,
		&m.CorrectionStatus, &m.CorrectionNote, &m.CorrectionPhoto,
		&corrBy, &correctionAt,
		&m.CreatedAt, &m.UpdatedAt,
		&fromName, &toName)
	if err != nil {
		return nil, err
	}

	m.FromPointID = nullInt64(fromID)
	m.ToPointID = nullInt64(toID)
	m.PreviewPhoto = preview.String
	m.HandedAt = nullTime(handedAt)
	m.HandedBy = nullInt64(handedBy)
	m.ReceivedAt = nullTime(receivedAt)
	m.ReceivedBy = nullInt64(receivedBy)
	m.CorrectionBy = nullInt64(corrBy)
	m.CorrectionAt = nullTime(correctionAt)
	m.FromPointName = fromName.String
	m.ToPointName = toName.String
	return &m, nil
}
