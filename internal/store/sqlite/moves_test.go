package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

func TestCreateAndGetMove(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMove(ctx, 101)
	if err != nil {
		t.Fatalf("CreateMove: %v", err)
	}
	if m.Status != model.StatusDraft {
		t.Errorf("expected draft status, got %q", m.Status)
	}
	if m.CreatedBy != 101 || m.OperatorID != 101 {
		t.Errorf("expected creator as operator, got created_by=%d operator=%d", m.CreatedBy, m.OperatorID)
	}
	if m.InvoiceVersion != 1 {
		t.Errorf("expected invoice version 1, got %d", m.InvoiceVersion)
	}
	if m.FromPointID != nil || m.ToPointID != nil {
		t.Error("expected unrouted move")
	}
}

func TestGetMoveNotFound(t *testing.T) {
	s := NewTestStore(t)

	_, err := s.GetMove(context.Background(), 999)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRouteAndNote(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	city, _ := s.AddCity(ctx, "Kyiv")
	p1, _ := s.AddPoint(ctx, city.ID, "Central")
	p2, _ := s.AddPoint(ctx, city.ID, "North")

	m, _ := s.CreateMove(ctx, 1)

	if err := s.SetFromPoint(ctx, m.ID, p1.ID); err != nil {
		t.Fatalf("SetFromPoint: %v", err)
	}
	if err := s.SetToPoint(ctx, m.ID, p2.ID); err != nil {
		t.Fatalf("SetToPoint: %v", err)
	}
	if err := s.SetNote(ctx, m.ID, "fragile"); err != nil {
		t.Fatalf("SetNote: %v", err)
	}

	got, _ := s.GetMove(ctx, m.ID)
	if got.FromPointID == nil || *got.FromPointID != p1.ID {
		t.Errorf("from point not set: %v", got.FromPointID)
	}
	if got.ToPointID == nil || *got.ToPointID != p2.ID {
		t.Errorf("to point not set: %v", got.ToPointID)
	}
	if got.FromPointName != "Central" || got.ToPointName != "North" {
		t.Errorf("point names not joined: %q → %q", got.FromPointName, got.ToPointName)
	}
	if got.Note != "fragile" {
		t.Errorf("expected note 'fragile', got %q", got.Note)
	}

	// Clearing the note.
	s.SetNote(ctx, m.ID, "")
	got, _ = s.GetMove(ctx, m.ID)
	if got.Note != "" {
		t.Errorf("expected cleared note, got %q", got.Note)
	}
}

func TestMutatorsOnMissingMove(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	if err := s.SetNote(ctx, 42, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetNote: expected ErrNotFound, got %v", err)
	}
	if err := s.SetStatus(ctx, 42, model.StatusSent); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetStatus: expected ErrNotFound, got %v", err)
	}
	if _, err := s.MarkHanded(ctx, 42, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MarkHanded: expected ErrNotFound, got %v", err)
	}
	if _, err := s.BumpInvoiceVersion(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("BumpInvoiceVersion: expected ErrNotFound, got %v", err)
	}
}

func TestMarkHandedIdempotent(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	applied, err := s.MarkHanded(ctx, m.ID, 55)
	if err != nil {
		t.Fatalf("MarkHanded: %v", err)
	}
	if !applied {
		t.Fatal("expected first MarkHanded to apply")
	}

	got, _ := s.GetMove(ctx, m.ID)
	if got.HandedAt == nil || got.HandedBy == nil || *got.HandedBy != 55 {
		t.Fatalf("handed state not recorded: at=%v by=%v", got.HandedAt, got.HandedBy)
	}
	firstAt := *got.HandedAt

	// Second call reports the idempotent no-op and leaves state unchanged.
	applied, err = s.MarkHanded(ctx, m.ID, 77)
	if err != nil {
		t.Fatalf("second MarkHanded: %v", err)
	}
	if applied {
		t.Error("expected second MarkHanded to be a no-op")
	}

	got, _ = s.GetMove(ctx, m.ID)
	if *got.HandedBy != 55 {
		t.Errorf("handed_by changed on no-op: %d", *got.HandedBy)
	}
	if !got.HandedAt.Equal(firstAt) {
		t.Errorf("handed_at changed on no-op: %v != %v", got.HandedAt, firstAt)
	}
}

func TestMarkReceivedIdempotent(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	applied, err := s.MarkReceived(ctx, m.ID, 66)
	if err != nil || !applied {
		t.Fatalf("MarkReceived: applied=%v err=%v", applied, err)
	}

	applied, err = s.MarkReceived(ctx, m.ID, 67)
	if err != nil {
		t.Fatalf("second MarkReceived: %v", err)
	}
	if applied {
		t.Error("expected second MarkReceived to be a no-op")
	}
}

func TestClearHandoffState(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)
	s.MarkHanded(ctx, m.ID, 5)
	s.MarkReceived(ctx, m.ID, 6)

	if err := s.ClearHandoffState(ctx, m.ID); err != nil {
		t.Fatalf("ClearHandoffState: %v", err)
	}

	got, _ := s.GetMove(ctx, m.ID)
	if got.HandedAt != nil || got.HandedBy != nil || got.ReceivedAt != nil || got.ReceivedBy != nil {
		t.Error("expected all handoff state cleared")
	}

	// Acknowledgements are recordable again after a clear.
	applied, err := s.MarkHanded(ctx, m.ID, 5)
	if err != nil || !applied {
		t.Errorf("MarkHanded after clear: applied=%v err=%v", applied, err)
	}
}

func TestCorrectionLifecycle(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	if err := s.RequestCorrection(ctx, m.ID, 9, "wrong quantity", "photo-1"); err != nil {
		t.Fatalf("RequestCorrection: %v", err)
	}

	got, _ := s.GetMove(ctx, m.ID)
	if got.CorrectionStatus != model.CorrectionRequested {
		t.Errorf("expected requested, got %q", got.CorrectionStatus)
	}
	if got.CorrectionNote != "wrong quantity" || got.CorrectionPhoto != "photo-1" {
		t.Errorf("correction fields: note=%q photo=%q", got.CorrectionNote, got.CorrectionPhoto)
	}
	if got.CorrectionBy == nil || *got.CorrectionBy != 9 || got.CorrectionAt == nil {
		t.Error("correction actor/timestamp not recorded")
	}

	if err := s.ResolveCorrection(ctx, m.ID); err != nil {
		t.Fatalf("ResolveCorrection: %v", err)
	}
	got, _ = s.GetMove(ctx, m.ID)
	if got.CorrectionStatus != model.CorrectionResolved {
		t.Errorf("expected resolved, got %q", got.CorrectionStatus)
	}
}

func TestBumpInvoiceVersion(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	v, err := s.BumpInvoiceVersion(ctx, m.ID)
	if err != nil {
		t.Fatalf("BumpInvoiceVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}

	v, _ = s.BumpInvoiceVersion(ctx, m.ID)
	if v != 3 {
		t.Errorf("expected version 3, got %d", v)
	}
}

func TestResetForReinvoice(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)
	s.SetStatus(ctx, m.ID, model.StatusDone)
	s.MarkHanded(ctx, m.ID, 5)
	s.MarkReceived(ctx, m.ID, 6)
	s.RequestCorrection(ctx, m.ID, 6, "short two boxes", "")

	if err := s.ResetForReinvoice(ctx, m.ID); err != nil {
		t.Fatalf("ResetForReinvoice: %v", err)
	}

	got, _ := s.GetMove(ctx, m.ID)
	if got.Status != model.StatusSent {
		t.Errorf("expected sent, got %q", got.Status)
	}
	if got.HandedAt != nil || got.ReceivedAt != nil {
		t.Error("expected acknowledgements cleared")
	}
	if got.CorrectionStatus != model.CorrectionResolved {
		t.Errorf("expected correction resolved, got %q", got.CorrectionStatus)
	}
}

func TestListMovesFiltered(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m1, _ := s.CreateMove(ctx, 1)
	m2, _ := s.CreateMove(ctx, 1)
	m3, _ := s.CreateMove(ctx, 1)

	s.SetStatus(ctx, m1.ID, model.StatusDone)
	s.SetStatus(ctx, m2.ID, model.StatusCanceled)
	s.SetStatus(ctx, m3.ID, model.StatusSent)

	all, err := s.ListMoves(ctx, 10)
	if err != nil {
		t.Fatalf("ListMoves: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 moves, got %d", len(all))
	}
	// Newest first.
	if all[0].ID != m3.ID {
		t.Errorf("expected move %d first, got %d", m3.ID, all[0].ID)
	}

	active, _ := s.ListMovesActive(ctx, 10)
	if len(active) != 1 || active[0].ID != m3.ID {
		t.Errorf("expected only the sent move active, got %v", active)
	}

	closed, _ := s.ListMovesClosed(ctx, 10)
	if len(closed) != 2 {
		t.Errorf("expected 2 closed moves, got %d", len(closed))
	}
}
