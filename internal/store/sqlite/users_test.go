package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/store"
)

func TestBindingOnePointPerUser(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	city, _ := s.AddCity(ctx, "Lviv")
	p1, _ := s.AddPoint(ctx, city.ID, "Market")
	p2, _ := s.AddPoint(ctx, city.ID, "Depot")

	s.UpsertUser(ctx, 100, "vasyl", "Vasyl K", model.RolePoint)

	if err := s.LinkUserToPoint(ctx, 100, p1.ID); err != nil {
		t.Fatalf("LinkUserToPoint: %v", err)
	}

	pointID, err := s.GetUserPoint(ctx, 100)
	if err != nil {
		t.Fatalf("GetUserPoint: %v", err)
	}
	if pointID != p1.ID {
		t.Errorf("expected binding to %d, got %d", p1.ID, pointID)
	}

	// Re-linking replaces the binding rather than adding a second one.
	s.LinkUserToPoint(ctx, 100, p2.ID)
	pointID, _ = s.GetUserPoint(ctx, 100)
	if pointID != p2.ID {
		t.Errorf("expected re-binding to %d, got %d", p2.ID, pointID)
	}

	if users, _ := s.ListPointUsers(ctx, p1.ID); len(users) != 0 {
		t.Errorf("expected old point empty, got %d users", len(users))
	}
	users, _ := s.ListPointUsers(ctx, p2.ID)
	if len(users) != 1 || users[0].ChatID != 100 {
		t.Errorf("expected user 100 at new point, got %v", users)
	}
}

func TestGetUserPointUnbound(t *testing.T) {
	s := NewTestStore(t)

	pointID, err := s.GetUserPoint(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetUserPoint: %v", err)
	}
	if pointID != 0 {
		t.Errorf("expected 0 for unbound user, got %d", pointID)
	}
}

func TestUnlinkUser(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	city, _ := s.AddCity(ctx, "Lviv")
	p, _ := s.AddPoint(ctx, city.ID, "Market")
	s.UpsertUser(ctx, 100, "", "", model.RolePoint)
	s.LinkUserToPoint(ctx, 100, p.ID)

	if err := s.UnlinkUser(ctx, 100); err != nil {
		t.Fatalf("UnlinkUser: %v", err)
	}
	if pointID, _ := s.GetUserPoint(ctx, 100); pointID != 0 {
		t.Errorf("expected unbound after unlink, got %d", pointID)
	}

	if err := s.UnlinkUser(ctx, 100); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for second unlink, got %v", err)
	}
}

func TestUpsertUserKeepsNames(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	city, _ := s.AddCity(ctx, "Lviv")
	p, _ := s.AddPoint(ctx, city.ID, "Market")

	s.UpsertUser(ctx, 100, "olena", "Olena B", model.RolePoint)
	// Upsert with empty names must not wipe the stored ones.
	s.UpsertUser(ctx, 100, "", "", model.RolePoint)
	s.LinkUserToPoint(ctx, 100, p.ID)

	users, _ := s.ListPointUsers(ctx, p.ID)
	if len(users) != 1 || users[0].Username != "olena" || users[0].FullName != "Olena B" {
		t.Errorf("names lost on upsert: %v", users)
	}
}

func TestOperators(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	count, err := s.CountOperators(ctx)
	if err != nil {
		t.Fatalf("CountOperators: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no operators, got %d", count)
	}

	op, err := s.CreateOperator(ctx, "admin", "hash", model.OperatorRoleAdmin)
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if op.Username != "admin" || op.Role != model.OperatorRoleAdmin {
		t.Errorf("unexpected operator: %+v", op)
	}

	got, err := s.GetOperatorByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetOperatorByUsername: %v", err)
	}
	if got.ID != op.ID || got.PasswordHash != "hash" {
		t.Errorf("unexpected operator: %+v", got)
	}

	if _, err := s.GetOperatorByUsername(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJWTSecretStable(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	first, err := s.JWTSecret(ctx)
	if err != nil {
		t.Fatalf("JWTSecret: %v", err)
	}
	if first == "" {
		t.Fatal("expected non-empty secret")
	}

	second, _ := s.JWTSecret(ctx)
	if second != first {
		t.Error("expected stable secret across calls")
	}
}

func TestDirectoryCascade(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	city, _ := s.AddCity(ctx, "Odesa")
	s.AddPoint(ctx, city.ID, "Port")
	s.AddPoint(ctx, city.ID, "Arcadia")

	points, _ := s.ListPoints(ctx, city.ID)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if n, _ := s.CountPoints(ctx); n != 2 {
		t.Errorf("expected point count 2, got %d", n)
	}

	if err := s.DeleteCity(ctx, city.ID); err != nil {
		t.Fatalf("DeleteCity: %v", err)
	}
	points, _ = s.ListPoints(ctx, city.ID)
	if len(points) != 0 {
		t.Errorf("expected points removed with city, got %d", len(points))
	}
	if n, _ := s.CountPoints(ctx); n != 0 {
		t.Errorf("expected point count 0 after cascade, got %d", n)
	}
}
