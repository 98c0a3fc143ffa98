package app

import (
	"context"
	"io"
	"log"
	"net/http"

	"inkwell/api/internal/editor"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/revisions"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

// EditorSession is what the client gets back after opening an editor: the
// binding plus the advisory list of other users holding the same article.
type EditorSession struct {
	SessionID string          `json:"sessionId"`
	ArticleID string          `json:"articleId"`
	Mode      editor.Mode     `json:"mode"`
	Overseer  bool            `json:"overseer"`
	Conflicts []editor.Holder `json:"conflicts"`
}

var errNoEditor = domainError(http.StatusNotFound, "EDITOR_NOT_FOUND", "No such editor session", nil)

// OpenEditor binds a new editor for the caller and starts its background push
// loop. Conflicts are reported, never enforced.
func (s *Service) OpenEditor(ctx context.Context, session Session, mode editor.Mode, articleID string) (EditorSession, error) {
	identity := editor.Identity{
		UserID:   session.UserID,
		Name:     session.UserName,
		Initials: session.Initials,
		Role:     rbac.Normalize(session.Role),
	}

	ed := editor.New(s.store, s.cache, s.assets, s.clk, editor.Options{
		DraftDebounce: s.cfg.DraftDebounce,
		PushInterval:  s.cfg.PushInterval,
	})
	bound, err := ed.Bind(ctx, identity, mode, articleID)
	if err != nil {
		return EditorSession{}, err
	}

	holders, err := s.detector.Check(ctx, bound.ArticleID, session.UserID)
	if err != nil {
		log.Printf("app: conflict check for %s: %v", bound.ArticleID, err)
		holders = nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	go ed.Run(runCtx)

	s.editorsMu.Lock()
	s.editors[bound.ID] = &editorEntry{ed: ed, userID: session.UserID, cancel: cancel}
	s.editorsMu.Unlock()

	return EditorSession{
		SessionID: bound.ID,
		ArticleID: bound.ArticleID,
		Mode:      bound.Mode,
		Overseer:  bound.Overseer,
		Conflicts: nonNilHolders(holders),
	}, nil
}

// RestoreEditor hydrates the editor from the draft cache or the canonical
// store and returns the state the client should render.
func (s *Service) RestoreEditor(ctx context.Context, session Session, editorID string) (editor.Snapshot, error) {
	entry, err := s.lookupEditor(session, editorID)
	if err != nil {
		return editor.Snapshot{}, err
	}
	return entry.ed.Restore(ctx)
}

// ApplyEdit accepts the client's latest snapshot.
func (s *Service) ApplyEdit(session Session, editorID string, snap editor.Snapshot) error {
	entry, err := s.lookupEditor(session, editorID)
	if err != nil {
		return err
	}
	return entry.ed.Apply(snap)
}

// PreviewEditor force-pushes the current state and returns the canonical
// record, so the preview renders exactly what the server holds.
func (s *Service) PreviewEditor(ctx context.Context, session Session, editorID string) (store.Article, error) {
	entry, err := s.lookupEditor(session, editorID)
	if err != nil {
		return store.Article{}, err
	}
	return entry.ed.ForcePush(ctx)
}

// SaveEditor runs the explicit save, records a revision and keeps the search
// index in step with the article's published state.
func (s *Service) SaveEditor(ctx context.Context, session Session, editorID string, publish bool) (store.Article, error) {
	entry, err := s.lookupEditor(session, editorID)
	if err != nil {
		return store.Article{}, err
	}

	article, err := entry.ed.Save(ctx, publish)
	if err != nil {
		return store.Article{}, err
	}

	if s.revs != nil {
		message := "Save draft"
		if publish {
			message = "Publish"
		}
		if _, err := s.revs.Record(article.ID, revisions.Content{
			Title:           article.Title,
			Slug:            article.Slug,
			MetaDescription: article.MetaDescription,
			CoverImage:      article.CoverImage,
			Body:            article.Body,
			Tags:            article.Tags,
		}, session.UserName, message); err != nil {
			log.Printf("app: record revision for %s: %v", article.ID, err)
		}
	}

	if s.search != nil {
		if article.Status == store.StatusPublished {
			s.search.IndexArticle(search.ArticleRecord{
				ID:              article.ID,
				Title:           article.Title,
				MetaDescription: article.MetaDescription,
				Slug:            article.Slug,
				AuthorName:      article.AuthorName,
				Tags:            article.Tags,
			})
		} else {
			s.search.DeleteArticle(article.ID)
		}
	}

	return article, nil
}

// DiscardEditor drops the local draft and releases the claim; the editor
// stays open so the client can keep writing from a clean slate.
func (s *Service) DiscardEditor(ctx context.Context, session Session, editorID string) error {
	entry, err := s.lookupEditor(session, editorID)
	if err != nil {
		return err
	}
	return entry.ed.Discard(ctx)
}

// CloseEditor stops the push loop and forgets the session.
func (s *Service) CloseEditor(session Session, editorID string) error {
	s.editorsMu.Lock()
	entry, ok := s.editors[editorID]
	if ok && entry.userID == session.UserID {
		delete(s.editors, editorID)
	}
	s.editorsMu.Unlock()

	if !ok || entry.userID != session.UserID {
		return errNoEditor
	}
	entry.cancel()
	entry.ed.Close()
	return nil
}

// UploadAsset streams one media file to the asset store and registers the
// resulting URL with the session so the reconciler can track it.
func (s *Service) UploadAsset(ctx context.Context, session Session, editorID string, body io.Reader, size int64, contentType string, draft bool) (string, error) {
	if s.assets == nil {
		return "", domainError(http.StatusServiceUnavailable, "ASSETS_DISABLED", "Asset storage is not configured", nil)
	}
	entry, err := s.lookupEditor(session, editorID)
	if err != nil {
		return "", err
	}

	bound, ok := entry.ed.Session()
	if !ok {
		return "", editor.ErrNotBound
	}
	folder := "articles/" + bound.ArticleID
	url, err := s.assets.Upload(ctx, body, size, contentType, folder, bound.ID, draft)
	if err != nil {
		return "", err
	}
	if err := entry.ed.RegisterUpload(url); err != nil {
		return "", err
	}
	return url, nil
}

// ListRevisions returns the article's save history, newest first. Only the
// author and admins may read it.
func (s *Service) ListRevisions(ctx context.Context, session Session, articleID string, limit int) ([]revisions.Revision, error) {
	if err := s.authorizeHistory(ctx, session, articleID); err != nil {
		return nil, err
	}
	if s.revs == nil || !s.revs.HasHistory(articleID) {
		return []revisions.Revision{}, nil
	}
	items, err := s.revs.History(articleID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []revisions.Revision{}
	}
	return items, nil
}

// GetRevisionContent returns the article state at one revision.
func (s *Service) GetRevisionContent(ctx context.Context, session Session, articleID, hash string) (revisions.Content, error) {
	if err := s.authorizeHistory(ctx, session, articleID); err != nil {
		return revisions.Content{}, err
	}
	if s.revs == nil || !s.revs.HasHistory(articleID) {
		return revisions.Content{}, domainError(http.StatusNotFound, "NO_HISTORY", "No revision history for this article", nil)
	}
	return s.revs.ContentAt(articleID, hash)
}

func (s *Service) authorizeHistory(ctx context.Context, session Session, articleID string) error {
	if s.Can(session.Role, rbac.ActionOversee) {
		return nil
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return err
	}
	if article.AuthorID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

func (s *Service) lookupEditor(session Session, editorID string) (*editorEntry, error) {
	s.editorsMu.Lock()
	entry, ok := s.editors[editorID]
	s.editorsMu.Unlock()
	if !ok || entry.userID != session.UserID {
		return nil, errNoEditor
	}
	return entry, nil
}

func (s *Service) closeEditorsForUser(userID string) {
	s.editorsMu.Lock()
	var closing []*editorEntry
	for id, entry := range s.editors {
		if entry.userID == userID {
			closing = append(closing, entry)
			delete(s.editors, id)
		}
	}
	s.editorsMu.Unlock()

	for _, entry := range closing {
		entry.cancel()
		entry.ed.Close()
	}
}

// Shutdown closes every open editor. Called when the process stops.
func (s *Service) Shutdown() {
	s.editorsMu.Lock()
	entries := make([]*editorEntry, 0, len(s.editors))
	for id, entry := range s.editors {
		entries = append(entries, entry)
		delete(s.editors, id)
	}
	s.editorsMu.Unlock()

	for _, entry := range entries {
		entry.cancel()
		entry.ed.Close()
	}
}

func nonNilHolders(holders []editor.Holder) []editor.Holder {
	if holders == nil {
		return []editor.Holder{}
	}
	return holders
}
