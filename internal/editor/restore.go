package editor

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"inkwell/api/internal/draftcache"
	"inkwell/api/internal/store"
)

// Restore hydrates the session exactly once. The Local Draft Cache wins over
// the canonical store; a corrupt or missing draft falls through to the
// server read. Once RESTORED the result is final for the session: calling
// Restore again returns the already-hydrated state.
func (e *Editor) Restore(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	if !e.bound {
		e.mu.Unlock()
		return Snapshot{}, ErrNotBound
	}
	if e.state == stateRestored {
		snap := e.snapshot.clone()
		e.mu.Unlock()
		return snap, nil
	}
	if e.state == stateRestoring {
		e.mu.Unlock()
		return Snapshot{}, errors.New("restore already in progress")
	}
	e.state = stateRestoring
	session := e.session
	e.mu.Unlock()

	snap, status, err := e.restore(ctx, session)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		// The read never completed; stay unrestored so the client can retry.
		e.state = stateUnrestored
		return Snapshot{}, err
	}
	e.snapshot = snap
	e.status = status
	e.state = stateRestored
	return snap.clone(), nil
}

func (e *Editor) restore(ctx context.Context, session Session) (Snapshot, string, error) {
	if !session.SkipLocalDrafts {
		var draft LocalDraft
		err := e.cache.LoadDraft(ctx, session.User.UserID, session.ArticleID, &draft)
		switch {
		case err == nil:
			if draft.HasContent() {
				return draft.Snapshot, e.statusFromCanonical(ctx, session.ArticleID), nil
			}
			// An empty but parseable draft falls through: it must not shadow
			// a canonical article that still has content.
		case errors.Is(err, draftcache.ErrNoDraft):
			// fall through to the canonical store
		case errors.Is(err, draftcache.ErrCorruptDraft):
			log.Printf("editor: corrupt local draft for %s/%s, falling back to server", session.User.UserID, session.ArticleID)
		default:
			log.Printf("editor: load local draft for %s/%s: %v", session.User.UserID, session.ArticleID, err)
		}
	}

	article, err := e.store.GetArticle(ctx, session.ArticleID)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, store.StatusDraft, nil
	}
	if err != nil {
		return Snapshot{}, "", err
	}

	// A recycled id pointing at someone else's article must never leak that
	// article's content into this session.
	if article.AuthorID != "" && article.AuthorID != session.User.UserID && !session.Overseer {
		log.Printf("editor: article %s belongs to %s, starting %s with empty state", session.ArticleID, article.AuthorID, session.User.UserID)
		return Snapshot{}, store.StatusDraft, nil
	}

	snap := Snapshot{
		Title:              article.Title,
		Slug:               article.Slug,
		MetaDescription:    article.MetaDescription,
		CoverImage:         article.CoverImage,
		CoverImageAlt:      article.CoverImageAlt,
		CoverImagePosition: article.CoverImagePosition,
		Body:               article.Body,
		Tags:               article.Tags,
		UploadedAssets:     article.UploadedAssets,
	}
	if !snap.HasContent() {
		return Snapshot{}, store.StatusDraft, nil
	}
	status := article.Status
	if status == "" {
		status = store.StatusDraft
	}
	return snap, status, nil
}

// statusFromCanonical reads the persisted status so a cache-restored session
// of a published article still saves as published. Missing or failing reads
// default to draft.
func (e *Editor) statusFromCanonical(ctx context.Context, articleID string) string {
	article, err := e.store.GetArticle(ctx, articleID)
	if err != nil || article.Status == "" {
		return store.StatusDraft
	}
	return article.Status
}
