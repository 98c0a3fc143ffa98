package editor

import (
	"context"
	"log"

	"inkwell/api/internal/store"
)

// Run drives the periodic push until ctx is cancelled or Close is called.
func (e *Editor) Run(ctx context.Context) {
	ticker := e.clk.NewTicker(e.opts.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C():
			if err := e.Push(ctx, false); err != nil {
				log.Printf("editor: periodic push: %v", err)
			}
		}
	}
}

// Push writes the current snapshot to the canonical store as an autosave.
// The periodic (non-forced) push skips sessions with no title, no body and
// no cover image so empty sessions never create canonical records. Pushes
// are serialized; a failed push leaves the local draft in place and the next
// interval retries.
func (e *Editor) Push(ctx context.Context, force bool) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	e.mu.Lock()
	if !e.bound {
		e.mu.Unlock()
		return ErrNotBound
	}
	if e.state != stateRestored {
		e.mu.Unlock()
		if force {
			return ErrNotRestored
		}
		return nil
	}
	snap := e.snapshot.clone()
	session := e.session
	status := e.status
	e.mu.Unlock()

	if !force && !snap.worthPushing() {
		return nil
	}

	article := e.articleFrom(snap, session, status, true)
	if err := e.store.UpsertArticle(ctx, article); err != nil {
		return err
	}

	// The canonical store now holds this state; the local draft would only
	// shadow it, and a debounce armed before the push must not rewrite it.
	e.cancelDraftWrite()
	if !session.SkipLocalDrafts {
		if err := e.cache.DeleteDraft(ctx, session.User.UserID, session.ArticleID); err != nil {
			log.Printf("editor: drop local draft after push for %s/%s: %v", session.User.UserID, session.ArticleID, err)
		}
	}
	return nil
}

// ForcePush pushes unconditionally and returns the canonical record read
// back from the store, so callers (article preview) render exactly what was
// persisted.
func (e *Editor) ForcePush(ctx context.Context) (store.Article, error) {
	if err := e.Push(ctx, true); err != nil {
		return store.Article{}, err
	}

	e.mu.Lock()
	articleID := e.session.ArticleID
	e.mu.Unlock()
	return e.store.GetArticle(ctx, articleID)
}

// articleFrom materializes the canonical record for a push or save.
func (e *Editor) articleFrom(snap Snapshot, session Session, status string, autosaved bool) store.Article {
	return store.Article{
		ID:                 session.ArticleID,
		Title:              snap.Title,
		Slug:               snap.Slug,
		MetaDescription:    snap.MetaDescription,
		CoverImage:         snap.CoverImage,
		CoverImageAlt:      snap.CoverImageAlt,
		CoverImagePosition: snap.CoverImagePosition,
		Body:               snap.Body,
		Tags:               snap.Tags,
		Status:             status,
		AuthorID:           session.AuthorID,
		AuthorName:         session.AuthorName,
		AuthorInitials:     session.AuthorInitials,
		UploadedAssets:     snap.UploadedAssets,
		Autosaved:          autosaved,
		UpdatedAt:          e.clk.Now().UTC(),
	}
}
