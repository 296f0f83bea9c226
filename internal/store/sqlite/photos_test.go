package sqlite

import (
	"context"
	"reflect"
	"testing"
)

func TestReplaceAndListPhotos(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	refs := []string{"file-a", "file-b", "file-c"}
	if err := s.ReplacePhotos(ctx, m.ID, 1, refs); err != nil {
		t.Fatalf("ReplacePhotos: %v", err)
	}

	got, err := s.ListPhotos(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("ListPhotos: %v", err)
	}
	if !reflect.DeepEqual(got, refs) {
		t.Errorf("round trip mismatch: got %v, want %v", got, refs)
	}
}

func TestReplacePhotosSupersedes(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	s.ReplacePhotos(ctx, m.ID, 1, []string{"old-1", "old-2"})
	if err := s.ReplacePhotos(ctx, m.ID, 1, []string{"new-1"}); err != nil {
		t.Fatalf("second ReplacePhotos: %v", err)
	}

	got, _ := s.ListPhotos(ctx, m.ID, 1)
	if !reflect.DeepEqual(got, []string{"new-1"}) {
		t.Errorf("expected full overwrite, got %v", got)
	}
}

func TestListPhotosEmptyVersion(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	got, err := s.ListPhotos(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("ListPhotos: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no photos, got %v", got)
	}
}

func TestListPhotoVersions(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	m, _ := s.CreateMove(ctx, 1)

	s.ReplacePhotos(ctx, m.ID, 2, []string{"v2"})
	s.ReplacePhotos(ctx, m.ID, 1, []string{"v1"})
	s.ReplacePhotos(ctx, m.ID, 3, []string{"v3-a", "v3-b"})

	versions, err := s.ListPhotoVersions(ctx, m.ID)
	if err != nil {
		t.Fatalf("ListPhotoVersions: %v", err)
	}
	if !reflect.DeepEqual(versions, []int{1, 2, 3}) {
		t.Errorf("expected ascending versions, got %v", versions)
	}

	// Older versions are untouched by writes to newer ones.
	v1, _ := s.ListPhotos(ctx, m.ID, 1)
	if !reflect.DeepEqual(v1, []string{"v1"}) {
		t.Errorf("version 1 mutated: %v", v1)
	}
}
