package editor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
)

// ValidationError reports per-field problems with an explicit save.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "invalid article: " + strings.Join(parts, "; ")
}

// Save is the explicit, user-initiated save. Unlike the background push it
// validates required fields, reconciles uploaded assets, clears the local
// draft and releases the session's claim on the article. Publish promotes
// the article; the published timestamp is set once and never moves.
func (e *Editor) Save(ctx context.Context, publish bool) (store.Article, error) {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	e.mu.Lock()
	if !e.bound {
		e.mu.Unlock()
		return store.Article{}, ErrNotBound
	}
	if e.state != stateRestored {
		e.mu.Unlock()
		return store.Article{}, ErrNotRestored
	}
	snap := e.snapshot.clone()
	session := e.session
	status := e.status
	savedOnce := e.savedOnce
	e.mu.Unlock()

	if publish && !rbac.Can(session.User.Role, rbac.ActionPublish) {
		return store.Article{}, ErrForbidden
	}
	if err := validateForSave(snap); err != nil {
		return store.Article{}, err
	}

	kept := e.reconcileAssets(ctx, snap, savedOnce)
	snap.UploadedAssets = kept

	if publish {
		status = store.StatusPublished
	}
	article := e.articleFrom(snap, session, status, false)
	if publish {
		now := e.clk.Now().UTC()
		// The store keeps the first published timestamp on re-publish.
		article.PublishedAt = &now
	}
	if err := e.store.UpsertArticle(ctx, article); err != nil {
		return store.Article{}, err
	}

	e.cancelDraftWrite()

	e.mu.Lock()
	e.snapshot.UploadedAssets = kept
	e.status = status
	e.savedOnce = true
	e.mu.Unlock()

	// The save is durable; release the session's claim so other editors no
	// longer see this user as an active holder. Overseer sessions never
	// claimed anything.
	if !session.Overseer {
		if err := e.cache.DeleteDraft(ctx, session.User.UserID, session.ArticleID); err != nil {
			log.Printf("editor: drop local draft after save for %s/%s: %v", session.User.UserID, session.ArticleID, err)
		}
		if err := e.cache.ClearArticleSlot(ctx, session.User.UserID); err != nil {
			log.Printf("editor: clear article slot for %s: %v", session.User.UserID, err)
		}
		if err := e.store.ClearResumePointer(ctx, session.User.UserID); err != nil {
			log.Printf("editor: clear resume pointer for %s: %v", session.User.UserID, err)
		}
	}

	saved, err := e.store.GetArticle(ctx, session.ArticleID)
	if err != nil {
		// The write succeeded; fall back to what we wrote.
		return article, nil
	}
	return saved, nil
}

// reconcileAssets deletes uploads the final content no longer references and
// returns the set to keep. The very first explicit save of a session never
// deletes: a restored uploaded-asset list may be stale, and an asset is
// cheaper to keep than to lose. Deletions are best effort.
func (e *Editor) reconcileAssets(ctx context.Context, snap Snapshot, savedOnce bool) []string {
	if !savedOnce {
		return snap.UploadedAssets
	}

	referenced := snap.ReferencedAssets()
	keep := make(map[string]struct{}, len(referenced))
	for _, url := range referenced {
		keep[url] = struct{}{}
	}
	for _, url := range snap.UploadedAssets {
		if _, ok := keep[url]; ok {
			continue
		}
		if err := e.assets.Delete(ctx, url); err != nil {
			log.Printf("editor: delete unreferenced asset %s: %v", url, err)
		}
	}
	return referenced
}

func validateForSave(snap Snapshot) error {
	fields := map[string]string{}
	if strings.TrimSpace(snap.Title) == "" {
		fields["title"] = "title is required"
	}
	if strings.TrimSpace(snap.Slug) == "" {
		fields["slug"] = "slug is required"
	}
	if snap.bodyEmpty() {
		fields["body"] = "body is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
