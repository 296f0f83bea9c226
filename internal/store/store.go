// Package store defines the persistence contract for moves, invoice photo
// sets, the point directory, and user-to-point bindings. Two interchangeable
// backends implement it: an embedded SQLite store and a networked PostgreSQL
// store. The backend is selected once at startup; nothing above this package
// branches on the storage choice.
package store

import (
	"context"
	"errors"

	"github.com/olehk/movebot/internal/model"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// MoveStore persists move records. Every mutator bumps updated_at and
// returns ErrNotFound when the move does not exist.
type MoveStore interface {
	CreateMove(ctx context.Context, createdBy int64) (*model.Move, error)
	GetMove(ctx context.Context, id int64) (*model.Move, error)
	ListMoves(ctx context.Context, limit int) ([]model.Move, error)
	ListMovesActive(ctx context.Context, limit int) ([]model.Move, error)
	ListMovesClosed(ctx context.Context, limit int) ([]model.Move, error)

	SetOperator(ctx context.Context, id, operatorID int64) error
	SetFromPoint(ctx context.Context, id, pointID int64) error
	SetToPoint(ctx context.Context, id, pointID int64) error
	SetNote(ctx context.Context, id int64, note string) error
	SetPreviewPhoto(ctx context.Context, id int64, ref string) error
	SetStatus(ctx context.Context, id int64, status string) error

	// MarkHanded and MarkReceived are single conditional updates: the
	// timestamp is set only if it is currently null. They return
	// applied=false (and no error) when the acknowledgement was already
	// recorded, so the caller can distinguish the idempotent no-op from a
	// genuine first acknowledgement.
	MarkHanded(ctx context.Context, id, userID int64) (applied bool, err error)
	MarkReceived(ctx context.Context, id, userID int64) (applied bool, err error)
	ClearHandoffState(ctx context.Context, id int64) error

	RequestCorrection(ctx context.Context, id, userID int64, note, photoRef string) error
	ResolveCorrection(ctx context.Context, id int64) error

	// BumpInvoiceVersion increments the version and returns the new value.
	BumpInvoiceVersion(ctx context.Context, id int64) (int, error)
	// ResetForReinvoice sets status to sent, clears handed/received state,
	// and marks any pending correction resolved, as one mutation.
	ResetForReinvoice(ctx context.Context, id int64) error
}

// PhotoStore persists the ordered, versioned invoice photo sets.
type PhotoStore interface {
	// ReplacePhotos atomically overwrites the photo set stored for
	// (moveID, version), preserving the order of refs.
	ReplacePhotos(ctx context.Context, moveID int64, version int, refs []string) error
	// ListPhotos returns the stored refs in order, or an empty slice when
	// the version has none.
	ListPhotos(ctx context.Context, moveID int64, version int) ([]string, error)
	// ListPhotoVersions returns the versions that have photo sets, ascending.
	ListPhotoVersions(ctx context.Context, moveID int64) ([]int, error)
}

// DirectoryStore persists cities and points.
type DirectoryStore interface {
	ListCities(ctx context.Context) ([]model.City, error)
	AddCity(ctx context.Context, name string) (*model.City, error)
	DeleteCity(ctx context.Context, id int64) error
	ListPoints(ctx context.Context, cityID int64) ([]model.Point, error)
	GetPoint(ctx context.Context, id int64) (*model.Point, error)
	AddPoint(ctx context.Context, cityID int64, name string) (*model.Point, error)
	DeletePoint(ctx context.Context, id int64) error
	CountPoints(ctx context.Context) (int, error)
}

// BindingStore persists chat users and their point bindings.
type BindingStore interface {
	UpsertUser(ctx context.Context, chatID int64, username, fullName, role string) error
	// LinkUserToPoint binds a user to a point, replacing any prior binding.
	LinkUserToPoint(ctx context.Context, chatID, pointID int64) error
	// GetUserPoint returns the bound point id, or 0 when the user is unbound.
	GetUserPoint(ctx context.Context, chatID int64) (int64, error)
	ListPointUsers(ctx context.Context, pointID int64) ([]model.User, error)
	UnlinkUser(ctx context.Context, chatID int64) error
}

// OperatorStore persists operator API accounts.
type OperatorStore interface {
	CreateOperator(ctx context.Context, username, passwordHash, role string) (*model.Operator, error)
	GetOperatorByUsername(ctx context.Context, username string) (*model.Operator, error)
	CountOperators(ctx context.Context) (int, error)
}

// Store is the full persistence contract a backend must provide.
type Store interface {
	MoveStore
	PhotoStore
	DirectoryStore
	BindingStore
	OperatorStore

	// JWTSecret returns the persistent API signing secret, generating and
	// storing one on first use.
	JWTSecret(ctx context.Context) (string, error)

	Close() error
}
