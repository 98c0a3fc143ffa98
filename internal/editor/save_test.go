package editor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"inkwell/api/internal/store"
)

func validSnapshot() Snapshot {
	return Snapshot{
		Title: "A Title",
		Slug:  "a-title",
		Body:  json.RawMessage(`{"text":"words"}`),
	}
}

func TestSaveValidation(t *testing.T) {
	env := newTestEnv()
	bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	_, err := env.editor.Save(context.Background(), false)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"title", "slug", "body"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("missing validation for %s", field)
		}
	}
	if env.docs.upsertCount() != 0 {
		t.Error("invalid save must not write")
	}
}

func TestSaveClearsClaims(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session, _ := bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")
	if err := env.editor.Apply(validSnapshot()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	env.clk.Advance(2 * env.editor.opts.DraftDebounce)

	article, err := env.editor.Save(ctx, false)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if article.Autosaved {
		t.Error("explicit save must clear the autosaved mark")
	}
	if article.Status != store.StatusDraft {
		t.Errorf("status = %q, want draft", article.Status)
	}
	if env.cache.hasDraft("user-1", session.ArticleID) {
		t.Error("local draft must be gone after save")
	}
	if slot, _ := env.cache.GetArticleSlot(ctx, "user-1"); slot != "" {
		t.Errorf("slot = %q, want released after save", slot)
	}
	if got := env.docs.resumePointer("user-1"); got != "" {
		t.Errorf("resume pointer = %q, want cleared after save", got)
	}
}

func TestSaveDisarmsPendingDraftWrite(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session, _ := bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	// The edit arms the debounce; the save lands before it fires.
	if err := env.editor.Apply(validSnapshot()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := env.editor.Save(ctx, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	env.clk.Advance(2 * env.editor.opts.DraftDebounce)
	if env.cache.hasDraft("user-1", session.ArticleID) {
		t.Error("debounce armed before the save rewrote the local draft")
	}
}

func TestPublishTimestampSetOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")
	if err := env.editor.Apply(validSnapshot()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	first, err := env.editor.Save(ctx, true)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if first.Status != store.StatusPublished || first.PublishedAt == nil {
		t.Fatalf("expected published article, got %+v", first)
	}

	env.clk.Advance(24 * time.Hour)
	snap := validSnapshot()
	snap.Title = "Edited After Publish"
	if err := env.editor.Apply(snap); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	second, err := env.editor.Save(ctx, true)
	if err != nil {
		t.Fatalf("re-publish failed: %v", err)
	}
	if !second.PublishedAt.Equal(*first.PublishedAt) {
		t.Errorf("published timestamp moved from %v to %v", first.PublishedAt, second.PublishedAt)
	}
}

func TestFirstSaveNeverDeletesAssets(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	snap := validSnapshot()
	snap.UploadedAssets = []string{"https://cdn/a.png", "https://cdn/unused.png"}
	if err := env.editor.Apply(snap); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	article, err := env.editor.Save(ctx, false)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(env.assets.deletedURLs()) != 0 {
		t.Errorf("first explicit save deleted assets: %v", env.assets.deletedURLs())
	}
	if len(article.UploadedAssets) != 2 {
		t.Errorf("first save must keep the full uploaded set, got %v", article.UploadedAssets)
	}
}

func TestSecondSaveReconcilesAssets(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	snap := validSnapshot()
	snap.CoverImage = "https://cdn/cover.png"
	snap.Body = json.RawMessage(`{"text":"see https://cdn/inline.png"}`)
	snap.UploadedAssets = []string{"https://cdn/cover.png", "https://cdn/inline.png", "https://cdn/orphan.png"}
	if err := env.editor.Apply(snap); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := env.editor.Save(ctx, false); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	article, err := env.editor.Save(ctx, false)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	deleted := env.assets.deletedURLs()
	if len(deleted) != 1 || deleted[0] != "https://cdn/orphan.png" {
		t.Errorf("deleted = %v, want only the orphan", deleted)
	}
	if len(article.UploadedAssets) != 2 {
		t.Errorf("kept = %v, want cover and inline only", article.UploadedAssets)
	}
	for _, url := range article.UploadedAssets {
		if url == "https://cdn/orphan.png" {
			t.Error("orphan survived reconciliation in the uploaded set")
		}
	}
}

func TestOverseerSavePreservesAttribution(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.docs.articles["art-1"] = store.Article{
		ID: "art-1", Title: "Original", Slug: "original", AuthorID: "owner-1",
		AuthorName: "Owner", AuthorInitials: "OW",
		Body: json.RawMessage(`{"text":"original"}`),
	}
	env.docs.SetResumePointer(ctx, "owner-1", "art-1")

	bindAndRestore(t, env, adminIdentity("admin-1"), ModeEdit, "art-1")
	snap := validSnapshot()
	snap.Title = "Touched by admin"
	if err := env.editor.Apply(snap); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	article, err := env.editor.Save(ctx, false)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if article.AuthorID != "owner-1" || article.AuthorName != "Owner" {
		t.Errorf("attribution changed: %q/%q", article.AuthorID, article.AuthorName)
	}
	// The owner's claim is theirs to release, not the overseer's.
	if got := env.docs.resumePointer("owner-1"); got != "art-1" {
		t.Errorf("owner's resume pointer = %q, want untouched art-1", got)
	}
}
