// Package engine implements the move lifecycle state machine. All writes to
// move records and photo sets funnel through its named transitions; the
// presentation layers only read state and forward user actions here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/notify"
	"github.com/olehk/movebot/internal/store"
)

// Transition precondition failures.
var (
	// ErrUnauthorized means the acting user is not bound to the point a
	// transition requires.
	ErrUnauthorized = errors.New("actor is not bound to the required point")
	// ErrIncompleteRoute means the move is missing a source or destination.
	ErrIncompleteRoute = errors.New("move route is incomplete")
	// ErrNoPhotos means send found no invoice photos for the current version.
	ErrNoPhotos = errors.New("no invoice photos to send")
	// ErrEmptyPhotoSet means a photo attach was called with no refs.
	ErrEmptyPhotoSet = errors.New("photo set is empty")
)

// NoRecipientsError means an endpoint of the route has no bound users, so a
// send cannot reach both parties. Side tells the operator which one is empty.
type NoRecipientsError struct {
	Side    notify.Kind
	PointID int64
}

func (e *NoRecipientsError) Error() string {
	return fmt.Sprintf("no users bound to %s point %d", e.Side, e.PointID)
}

// Store is the persistence surface the engine needs.
type Store interface {
	store.MoveStore
	store.PhotoStore
	store.BindingStore
}

// Notifier fans a notification out to one endpoint's recipients.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, photos []string, caption string, moveID int64, kind notify.Kind) notify.Delivery
}

// Engine drives move lifecycle transitions.
type Engine struct {
	store    Store
	notifier Notifier
}

// New creates an Engine over the given store and notifier.
func New(st Store, n Notifier) *Engine {
	return &Engine{store: st, notifier: n}
}

// SendResult reports a completed send or reinvoice fan-out.
type SendResult struct {
	Move        *model.Move     `json:"move"`
	Source      notify.Delivery `json:"source"`
	Destination notify.Delivery `json:"destination"`
}

// AckResult reports an acknowledgement attempt. Already means the
// acknowledgement had been recorded before and nothing changed; Done means
// this acknowledgement was the second of the pair and closed the move.
type AckResult struct {
	Already bool        `json:"already"`
	Done    bool        `json:"done"`
	Move    *model.Move `json:"move"`
}

// Create opens a new draft move with the acting operator as creator.
func (e *Engine) Create(ctx context.Context, operatorID int64) (*model.Move, error) {
	m, err := e.store.CreateMove(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	slog.Info("move created", "move", m.ID, "operator", operatorID)
	return m, nil
}

// SetFrom sets the source point of the route.
func (e *Engine) SetFrom(ctx context.Context, moveID, pointID int64) error {
	return e.store.SetFromPoint(ctx, moveID, pointID)
}

// SetTo sets the destination point of the route.
func (e *Engine) SetTo(ctx context.Context, moveID, pointID int64) error {
	return e.store.SetToPoint(ctx, moveID, pointID)
}

// SetNote updates the move's note; an empty string clears it.
func (e *Engine) SetNote(ctx context.Context, moveID int64, note string) error {
	return e.store.SetNote(ctx, moveID, note)
}

// AttachPhotos stores refs as the photo set of the move's current invoice
// version, overwriting any photos attached earlier for that version. The
// first ref also becomes the legacy preview photo, best-effort.
func (e *Engine) AttachPhotos(ctx context.Context, moveID int64, refs []string) error {
	if len(refs) == 0 {
		return ErrEmptyPhotoSet
	}

	m, err := e.store.GetMove(ctx, moveID)
	if err != nil {
		return err
	}

	if err := e.store.ReplacePhotos(ctx, moveID, m.InvoiceVersion, refs); err != nil {
		return err
	}

	if err := e.store.SetPreviewPhoto(ctx, moveID, refs[0]); err != nil {
		slog.Warn("preview photo mirror write failed", "move", moveID, "error", err)
	}
	return nil
}

// Send dispatches the move to both endpoints: it validates the route,
// resolves recipients, clears stale acknowledgements, marks the move sent,
// and fans the invoice out. Recipient resolution happens before any
// mutation so an empty endpoint aborts cleanly.
func (e *Engine) Send(ctx context.Context, moveID int64) (*SendResult, error) {
	m, err := e.store.GetMove(ctx, moveID)
	if err != nil {
		return nil, err
	}
	if !m.Routed() {
		return nil, ErrIncompleteRoute
	}

	fromRec, toRec, err := e.resolveRecipients(ctx, m)
	if err != nil {
		return nil, err
	}

	photos, err := e.currentPhotos(ctx, m)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, ErrNoPhotos
	}

	// A fresh send round invalidates any acknowledgements left over from a
	// previous one.
	if err := e.store.ClearHandoffState(ctx, moveID); err != nil {
		return nil, err
	}
	if err := e.store.SetStatus(ctx, moveID, model.StatusSent); err != nil {
		return nil, err
	}

	m, err = e.store.GetMove(ctx, moveID)
	if err != nil {
		return nil, err
	}

	result := e.fanOut(ctx, m, fromRec, toRec, photos)
	slog.Info("move sent",
		"move", m.ID, "version", m.InvoiceVersion,
		"source", fmt.Sprintf("%d/%d", result.Source.Succeeded, result.Source.Attempted),
		"destination", fmt.Sprintf("%d/%d", result.Destination.Succeeded, result.Destination.Attempted))
	return result, nil
}

// MarkHanded records the source point's handoff acknowledgement by actorID.
// A repeat acknowledgement is reported via AckResult.Already, not an error.
// When receipt was already confirmed, the move closes.
func (e *Engine) MarkHanded(ctx context.Context, moveID, actorID int64) (*AckResult, error) {
	return e.acknowledge(ctx, moveID, actorID, true)
}

// MarkReceived records the destination point's receipt acknowledgement,
// symmetric to MarkHanded.
func (e *Engine) MarkReceived(ctx context.Context, moveID, actorID int64) (*AckResult, error) {
	return e.acknowledge(ctx, moveID, actorID, false)
}

func (e *Engine) acknowledge(ctx context.Context, moveID, actorID int64, handed bool) (*AckResult, error) {
	m, err := e.store.GetMove(ctx, moveID)
	if err != nil {
		return nil, err
	}

	required := m.ToPointID
	if handed {
		required = m.FromPointID
	}

	actorPoint, err := e.store.GetUserPoint(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actorPoint == 0 || required == nil || actorPoint != *required {
		return nil, ErrUnauthorized
	}

	var applied bool
	if handed {
		applied, err = e.store.MarkHanded(ctx, moveID, actorID)
	} else {
		applied, err = e.store.MarkReceived(ctx, moveID, actorID)
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		return &AckResult{Already: true, Move: m}, nil
	}

	m, err = e.store.GetMove(ctx, moveID)
	if err != nil {
		return nil, err
	}

	// Completion is an AND-join: the second acknowledgement closes the move,
	// whichever order the two arrive in.
	other := m.HandedAt
	if handed {
		other = m.ReceivedAt
	}
	if other == nil {
		return &AckResult{Move: m}, nil
	}

	if err := e.store.SetStatus(ctx, moveID, model.StatusDone); err != nil {
		return nil, err
	}
	m, err = e.store.GetMove(ctx, moveID)
	if err != nil {
		return nil, err
	}
	slog.Info("move completed", "move", m.ID)
	return &AckResult{Done: true, Move: m}, nil
}

// RequestCorrection flags the current invoice as disputed by a user bound to
// either endpoint. The move status itself does not change; the operator
// decides whether to reinvoice.
func (e *Engine) RequestCorrection(ctx context.Context, moveID, actorID int64, note, photoRef string) error {
	m, err := e.store.GetMove(ctx, moveID)
	if err != nil {
		return err
	}

	actorPoint, err := e.store.GetUserPoint(ctx, actorID)
	if err != nil {
		return err
	}
	atFrom := m.FromPointID != nil && actorPoint == *m.FromPointID
	atTo := m.ToPointID != nil && actorPoint == *m.ToPointID
	if actorPoint == 0 || (!atFrom && !atTo) {
		return ErrUnauthorized
	}

	if err := e.store.RequestCorrection(ctx, moveID, actorID, note, photoRef); err != nil {
		return err
	}
	slog.Info("correction requested", "move", moveID, "by", actorID)
	return nil
}

// Reinvoice supersedes the current invoice with a new photo set: the version
// is bumped, the new set stored, acknowledgements cleared, any pending
// correction resolved, and both endpoints re-notified.
func (e *Engine) Reinvoice(ctx context.Context, moveID int64, refs []string) (*SendResult, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyPhotoSet
	}

	version, err := e.store.BumpInvoiceVersion(ctx, moveID)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplacePhotos(ctx, moveID, version, refs); err != nil {
		return nil, err
	}
	if err := e.store.SetPreviewPhoto(ctx, moveID, refs[0]); err != nil {
		slog.Warn("preview photo mirror write failed", "move", moveID, "error", err)
	}
	if err := e.store.ResetForReinvoice(ctx, moveID); err != nil {
		return nil, err
	}

	m, err := e.store.GetMove(ctx, moveID)
	if err != nil {
		return nil, err
	}

	// Unlike send, an endpoint without bound users does not abort here: the
	// invoice is already superseded, so delivery is attempted to whoever
	// is reachable.
	fromRec, toRec := e.recipientIDs(ctx, m)

	result := e.fanOut(ctx, m, fromRec, toRec, refs)
	slog.Info("move reinvoiced",
		"move", m.ID, "version", version,
		"source", fmt.Sprintf("%d/%d", result.Source.Succeeded, result.Source.Attempted),
		"destination", fmt.Sprintf("%d/%d", result.Destination.Succeeded, result.Destination.Attempted))
	return result, nil
}

// Close force-completes the move regardless of acknowledgement state.
func (e *Engine) Close(ctx context.Context, moveID int64) error {
	return e.store.SetStatus(ctx, moveID, model.StatusDone)
}

// Cancel moves the record to its terminal canceled status.
func (e *Engine) Cancel(ctx context.Context, moveID int64) error {
	return e.store.SetStatus(ctx, moveID, model.StatusCanceled)
}

// resolveRecipients returns the bound users at both endpoints, failing when
// either endpoint has none.
func (e *Engine) resolveRecipients(ctx context.Context, m *model.Move) (from, to []int64, err error) {
	fromUsers, err := e.store.ListPointUsers(ctx, *m.FromPointID)
	if err != nil {
		return nil, nil, err
	}
	toUsers, err := e.store.ListPointUsers(ctx, *m.ToPointID)
	if err != nil {
		return nil, nil, err
	}

	if len(fromUsers) == 0 {
		return nil, nil, &NoRecipientsError{Side: notify.KindSource, PointID: *m.FromPointID}
	}
	if len(toUsers) == 0 {
		return nil, nil, &NoRecipientsError{Side: notify.KindDestination, PointID: *m.ToPointID}
	}

	return chatIDs(fromUsers), chatIDs(toUsers), nil
}

// recipientIDs resolves endpoint users without the non-empty requirement.
func (e *Engine) recipientIDs(ctx context.Context, m *model.Move) (from, to []int64) {
	if m.FromPointID != nil {
		if users, err := e.store.ListPointUsers(ctx, *m.FromPointID); err == nil {
			from = chatIDs(users)
		}
	}
	if m.ToPointID != nil {
		if users, err := e.store.ListPointUsers(ctx, *m.ToPointID); err == nil {
			to = chatIDs(users)
		}
	}
	return from, to
}

// currentPhotos returns the photo set for the move's current invoice
// version, falling back to the legacy single preview photo.
func (e *Engine) currentPhotos(ctx context.Context, m *model.Move) ([]string, error) {
	photos, err := e.store.ListPhotos(ctx, m.ID, m.InvoiceVersion)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 && m.PreviewPhoto != "" {
		photos = []string{m.PreviewPhoto}
	}
	return photos, nil
}

func (e *Engine) fanOut(ctx context.Context, m *model.Move, fromRec, toRec []int64, photos []string) *SendResult {
	caption := notify.Caption(m)
	return &SendResult{
		Move:        m,
		Source:      e.notifier.Notify(ctx, fromRec, photos, caption, m.ID, notify.KindSource),
		Destination: e.notifier.Notify(ctx, toRec, photos, caption, m.ID, notify.KindDestination),
	}
}

func chatIDs(users []model.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ChatID)
	}
	return ids
}
