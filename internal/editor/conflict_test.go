package editor

import (
	"context"
	"testing"

	"inkwell/api/internal/store"
)

func TestConflictDetectorListsHolders(t *testing.T) {
	docs := newFakeDocs()
	ctx := context.Background()
	docs.users["writer-1"] = store.User{ID: "writer-1", DisplayName: "Writer One", Email: "one@inkwell.dev"}
	docs.users["writer-2"] = store.User{ID: "writer-2", DisplayName: "Writer Two", Email: "two@inkwell.dev"}
	docs.SetResumePointer(ctx, "writer-1", "art-1")
	docs.SetResumePointer(ctx, "writer-2", "art-1")

	detector := NewConflictDetector(docs)
	holders, err := detector.Check(ctx, "art-1", "admin-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(holders) != 2 {
		t.Fatalf("holders = %d, want 2", len(holders))
	}
}

func TestConflictDetectorExcludesRequester(t *testing.T) {
	docs := newFakeDocs()
	ctx := context.Background()
	docs.users["admin-1"] = store.User{ID: "admin-1", DisplayName: "Admin"}
	docs.SetResumePointer(ctx, "admin-1", "art-1")

	detector := NewConflictDetector(docs)
	holders, err := detector.Check(ctx, "art-1", "admin-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(holders) != 0 {
		t.Errorf("requester must not be reported as a conflicting holder: %v", holders)
	}
}

func TestConflictDetectorIgnoresSavedSessions(t *testing.T) {
	docs := newFakeDocs()
	ctx := context.Background()
	docs.users["writer-1"] = store.User{ID: "writer-1"}
	docs.SetResumePointer(ctx, "writer-1", "art-1")
	docs.ClearResumePointer(ctx, "writer-1")

	detector := NewConflictDetector(docs)
	holders, err := detector.Check(ctx, "art-1", "admin-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(holders) != 0 {
		t.Errorf("cleared pointer must not show up as a holder: %v", holders)
	}
}
