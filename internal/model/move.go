package model

import "time"

// Move represents a goods transfer between two points.
type Move struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	CreatedBy  int64  `json:"created_by"`
	OperatorID int64  `json:"operator_id"`

	FromPointID *int64 `json:"from_point_id,omitempty"`
	ToPointID   *int64 `json:"to_point_id,omitempty"`

	// PreviewPhoto is a legacy single-photo mirror of the invoice.
	// Kept best-effort; the versioned photo set is authoritative.
	PreviewPhoto   string `json:"preview_photo,omitempty"`
	Note           string `json:"note,omitempty"`
	InvoiceVersion int    `json:"invoice_version"`

	HandedAt   *time.Time `json:"handed_at,omitempty"`
	HandedBy   *int64     `json:"handed_by,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	ReceivedBy *int64     `json:"received_by,omitempty"`

	CorrectionStatus string     `json:"correction_status"`
	CorrectionNote   string     `json:"correction_note,omitempty"`
	CorrectionPhoto  string     `json:"correction_photo,omitempty"`
	CorrectionBy     *int64     `json:"correction_by,omitempty"`
	CorrectionAt     *time.Time `json:"correction_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	FromPointName string `json:"from_point_name,omitempty"`
	ToPointName   string `json:"to_point_name,omitempty"`
}

// Move statuses.
const (
	StatusDraft    = "draft"
	StatusSent     = "sent"
	StatusDone     = "done"
	StatusCanceled = "canceled"
)

// Correction statuses.
const (
	CorrectionNone      = "none"
	CorrectionRequested = "requested"
	CorrectionResolved  = "resolved"
)

// Closed reports whether the move is in a terminal status.
func (m *Move) Closed() bool {
	return m.Status == StatusDone || m.Status == StatusCanceled
}

// Routed reports whether both endpoints of the move are set.
func (m *Move) Routed() bool {
	return m.FromPointID != nil && m.ToPointID != nil
}
