package editor

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
)

func TestPeriodicPushSkipsEmptySession(t *testing.T) {
	env := newTestEnv()
	bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	if err := env.editor.Push(context.Background(), false); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if env.docs.upsertCount() != 0 {
		t.Error("empty session must not create a canonical record")
	}
}

func TestForcedPushWritesEmptySession(t *testing.T) {
	env := newTestEnv()
	session, _ := bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	article, err := env.editor.ForcePush(context.Background())
	if err != nil {
		t.Fatalf("ForcePush failed: %v", err)
	}
	if article.ID != session.ArticleID {
		t.Errorf("confirming read returned %q, want %q", article.ID, session.ArticleID)
	}
	if !article.Autosaved {
		t.Error("push must be marked autosaved")
	}
}

func TestPushWritesSnapshotAndDropsDraft(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session, _ := bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	if err := env.editor.Apply(Snapshot{Title: "Hello", Body: json.RawMessage(`{"text":"hi"}`)}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	env.clk.Advance(2 * env.editor.opts.DraftDebounce)
	if !env.cache.hasDraft("user-1", session.ArticleID) {
		t.Fatal("expected a local draft before the push")
	}

	if err := env.editor.Push(ctx, false); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	article, err := env.docs.GetArticle(ctx, session.ArticleID)
	if err != nil {
		t.Fatalf("canonical record missing: %v", err)
	}
	if article.Title != "Hello" || !article.Autosaved {
		t.Errorf("unexpected canonical record: %+v", article)
	}
	if article.AuthorID != "user-1" {
		t.Errorf("author = %q, want user-1", article.AuthorID)
	}
	if env.cache.hasDraft("user-1", session.ArticleID) {
		t.Error("local draft must be invalidated after a successful push")
	}
}

func TestPushFailureKeepsDraft(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session, _ := bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	if err := env.editor.Apply(Snapshot{Title: "Hello"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	env.clk.Advance(2 * env.editor.opts.DraftDebounce)

	env.docs.upsertErr = errors.New("db down")
	if err := env.editor.Push(ctx, false); err == nil {
		t.Fatal("expected push error")
	}
	if !env.cache.hasDraft("user-1", session.ArticleID) {
		t.Error("failed push must leave the local draft in place")
	}

	// Recovery: the next interval's push succeeds and invalidates the draft.
	env.docs.upsertErr = nil
	if err := env.editor.Push(ctx, false); err != nil {
		t.Fatalf("retry push failed: %v", err)
	}
	if env.cache.hasDraft("user-1", session.ArticleID) {
		t.Error("draft must be gone after the retried push")
	}
}

func TestPushDisarmsPendingDraftWrite(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	session, _ := bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")

	// The edit arms the debounce; the push lands before it fires.
	if err := env.editor.Apply(Snapshot{Title: "Hello", Body: json.RawMessage(`{"text":"hi"}`)}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := env.editor.Push(ctx, false); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	env.clk.Advance(2 * env.editor.opts.DraftDebounce)
	if env.cache.hasDraft("user-1", session.ArticleID) {
		t.Error("debounce armed before the push rewrote the local draft")
	}

	// The next edit schedules a fresh draft write as usual.
	if err := env.editor.Apply(Snapshot{Title: "Hello again"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	env.clk.Advance(2 * env.editor.opts.DraftDebounce)
	if !env.cache.hasDraft("user-1", session.ArticleID) {
		t.Error("edit after the push must schedule a new draft write")
	}
}

func TestForcedPushBeforeRestoreRejected(t *testing.T) {
	env := newTestEnv()
	if _, err := env.editor.Bind(context.Background(), authorIdentity("user-1"), ModeNew, ""); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if _, err := env.editor.ForcePush(context.Background()); !errors.Is(err, ErrNotRestored) {
		t.Errorf("expected ErrNotRestored, got %v", err)
	}
	// The periodic path quietly waits for restore instead.
	if err := env.editor.Push(context.Background(), false); err != nil {
		t.Errorf("periodic push before restore should be a no-op, got %v", err)
	}
}

func TestRunPushesOnTicks(t *testing.T) {
	env := newTestEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bindAndRestore(t, env, authorIdentity("user-1"), ModeNew, "")
	if err := env.editor.Apply(Snapshot{Title: "Hello"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		env.editor.Run(ctx)
		close(done)
	}()

	waitForUpsert := func() {
		t.Helper()
		for i := 0; i < 100; i++ {
			if env.docs.upsertCount() > 0 {
				return
			}
			env.clk.Advance(env.editor.opts.PushInterval)
			runtime.Gosched()
		}
		t.Fatal("no push observed after repeated ticks")
	}
	waitForUpsert()

	env.editor.Close()
	<-done
}
