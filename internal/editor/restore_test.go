package editor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"inkwell/api/internal/store"
)

func bindAndRestore(t *testing.T, env *testEnv, user Identity, mode Mode, articleID string) (Session, Snapshot) {
	t.Helper()
	session, err := env.editor.Bind(context.Background(), user, mode, articleID)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	snap, err := env.editor.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	return session, snap
}

func TestRestoreEmptyDefaults(t *testing.T) {
	env := newTestEnv()
	_, snap := bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	if snap.HasContent() {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestRestoreCachePrecedence(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Server title", Slug: "server", AuthorID: "user-1",
		Body: json.RawMessage(`{"text":"server"}`),
	}
	draft := LocalDraft{
		Snapshot: Snapshot{Title: "Cached title", Slug: "cached", Body: json.RawMessage(`{"text":"cached"}`)},
		SavedAt:  time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
	}
	if err := env.cache.SaveDraft(ctx, "user-1", "art-1", draft); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	_, snap := bindAndRestore(t, env, authorIdentity("user-1"), ModeEdit, "art-1")
	if snap.Title != "Cached title" {
		t.Errorf("title = %q, local draft must win over the canonical store", snap.Title)
	}
}

func TestRestoreFallsBackToCanonical(t *testing.T) {
	env := newTestEnv()
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Server title", Slug: "server", AuthorID: "user-1",
		Body: json.RawMessage(`{"text":"server"}`), Tags: []string{"fiction"},
		UploadedAssets: []string{"https://cdn/x.png"},
	}

	_, snap := bindAndRestore(t, env, authorIdentity("user-1"), ModeEdit, "art-1")
	if snap.Title != "Server title" || len(snap.Tags) != 1 || len(snap.UploadedAssets) != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestRestoreCorruptDraftFallsBack(t *testing.T) {
	env := newTestEnv()
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Server title", Slug: "server", AuthorID: "user-1",
		Body: json.RawMessage(`{"text":"server"}`),
	}
	env.cache.setRaw("user-1", "art-1", "{not json")

	_, snap := bindAndRestore(t, env, authorIdentity("user-1"), ModeEdit, "art-1")
	if snap.Title != "Server title" {
		t.Errorf("title = %q, corrupt draft must fall back to the server copy", snap.Title)
	}
}

func TestRestoreEmptyDraftFallsBack(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Server title", Slug: "server", AuthorID: "user-1",
		Body: json.RawMessage(`{"text":"server"}`),
	}
	// Parseable but contentless: must not shadow the canonical article.
	if err := env.cache.SaveDraft(ctx, "user-1", "art-1", LocalDraft{}); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	_, snap := bindAndRestore(t, env, authorIdentity("user-1"), ModeEdit, "art-1")
	if snap.Title != "Server title" {
		t.Errorf("title = %q, empty draft must fall back to the server copy", snap.Title)
	}
}

func TestRestoreForeignArticleKeepsDefaults(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	// A stale slot can point a new-article session at someone else's work.
	env.cache.SetArticleSlot(ctx, "user-2", "art-1")
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Not yours", AuthorID: "owner-1",
		Body: json.RawMessage(`{"text":"private"}`),
	}

	_, snap := bindAndRestore(t, env, authorIdentity("user-2"), ModeNew, "")
	if snap.HasContent() {
		t.Errorf("foreign article content leaked into the session: %+v", snap)
	}
}

func TestRestoreIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Server title", AuthorID: "user-1",
		Body: json.RawMessage(`{"text":"server"}`),
	}
	_, first := bindAndRestore(t, env, authorIdentity("user-1"), ModeEdit, "art-1")

	// Changing the stores after restore must not change the session state.
	env.docs.articles["art-1"] = store.Article{ID: "art-1", Title: "Changed", AuthorID: "user-1"}
	second, err := env.editor.Restore(ctx)
	if err != nil {
		t.Fatalf("second Restore failed: %v", err)
	}
	if second.Title != first.Title {
		t.Errorf("second restore returned %q, want %q", second.Title, first.Title)
	}
}

func TestOverseerRestoreIgnoresOwnerDraft(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Canonical", AuthorID: "owner-1",
		Body: json.RawMessage(`{"text":"canonical"}`),
	}
	owner := LocalDraft{Snapshot: Snapshot{Title: "Owner in progress", Body: json.RawMessage(`{"text":"wip"}`)}}
	if err := env.cache.SaveDraft(ctx, "owner-1", "art-1", owner); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	_, snap := bindAndRestore(t, env, adminIdentity("admin-1"), ModeEdit, "art-1")
	if snap.Title != "Canonical" {
		t.Errorf("overseer restored %q, want the canonical copy", snap.Title)
	}
	if !env.cache.hasDraft("owner-1", "art-1") {
		t.Error("owner's local draft must stay untouched")
	}
}
