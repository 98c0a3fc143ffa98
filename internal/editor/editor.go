// Package editor implements the article editing session: binding a session to
// an article, restoring prior state, debounced local draft writes, the
// periodic and forced push to the canonical store, and the asset reconciler
// that runs on explicit save.
package editor

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"inkwell/api/internal/clock"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

var (
	ErrForbidden    = errors.New("not allowed to edit this article")
	ErrNotBound     = errors.New("session is not bound to an article")
	ErrNotRestored  = errors.New("session has not been restored")
	ErrAlreadyBound = errors.New("session is already bound")
)

// DocumentStore is the slice of the canonical store the editor needs.
type DocumentStore interface {
	GetArticle(ctx context.Context, id string) (store.Article, error)
	UpsertArticle(ctx context.Context, a store.Article) error
	GetUserByID(ctx context.Context, id string) (store.User, error)
	SetResumePointer(ctx context.Context, userID, articleID string) error
	ClearResumePointer(ctx context.Context, userID string) error
	ListUsersByResumePointer(ctx context.Context, articleID string) ([]store.User, error)
}

// DraftCache is the client-scoped persistence tier: local drafts keyed by
// (user, article) plus the per-user slot holding the locked article id.
type DraftCache interface {
	SaveDraft(ctx context.Context, userID, articleID string, payload any) error
	LoadDraft(ctx context.Context, userID, articleID string, target any) error
	DeleteDraft(ctx context.Context, userID, articleID string) error
	GetArticleSlot(ctx context.Context, userID string) (string, error)
	SetArticleSlot(ctx context.Context, userID, articleID string) error
	ClearArticleSlot(ctx context.Context, userID string) error
}

// AssetGateway stores article media and deletes it by public URL.
type AssetGateway interface {
	Upload(ctx context.Context, body io.Reader, size int64, contentType, folder, sessionID string, draft bool) (string, error)
	Delete(ctx context.Context, url string) error
}

type Mode string

const (
	// ModeNew is the "write something" entry point with no article id.
	ModeNew Mode = "new"
	// ModeEdit is an explicit edit link carrying an article id.
	ModeEdit Mode = "edit"
)

// Identity is the authenticated user opening the session.
type Identity struct {
	UserID   string
	Name     string
	Initials string
	Role     rbac.Role
}

// Session is the immutable binding established when an editor opens.
type Session struct {
	ID        string
	User      Identity
	Mode      Mode
	ArticleID string
	// Author is the attribution the session writes under. For an overseer
	// session it is the article's original author, not the session user.
	AuthorID       string
	AuthorName     string
	AuthorInitials string
	// Overseer marks an admin editing someone else's article. Overseer
	// sessions never touch the owner's local draft or Resume Pointer.
	Overseer bool
	// SkipLocalDrafts disables both reading and writing the Local Draft.
	SkipLocalDrafts bool
}

type restoreState int

const (
	stateUnrestored restoreState = iota
	stateRestoring
	stateRestored
)

// Options tunes the editor's timing.
type Options struct {
	// DraftDebounce is the quiet period after the last edit before the
	// snapshot is written to the Local Draft Cache.
	DraftDebounce time.Duration
	// PushInterval is the period of the background push to the canonical
	// store.
	PushInterval time.Duration
}

// Editor owns one editing session end to end. All exported methods are safe
// for concurrent use.
type Editor struct {
	store  DocumentStore
	cache  DraftCache
	assets AssetGateway
	clk    clock.Clock
	opts   Options

	mu        sync.Mutex
	bound     bool
	session   Session
	state     restoreState
	snapshot  Snapshot
	status    string
	savedOnce bool
	debounce  clock.Timer

	// pushMu serializes pushes so overlapping timers cannot interleave
	// writes to the canonical store.
	pushMu sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
}

func New(documents DocumentStore, cache DraftCache, assets AssetGateway, clk clock.Clock, opts Options) *Editor {
	if opts.DraftDebounce <= 0 {
		opts.DraftDebounce = 1200 * time.Millisecond
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = 45 * time.Second
	}
	return &Editor{
		store:  documents,
		cache:  cache,
		assets: assets,
		clk:    clk,
		opts:   opts,
		status: store.StatusDraft,
		stop:   make(chan struct{}),
	}
}

// Bind resolves which article this session edits and claims it. Binding
// happens exactly once per editor; a second call returns the existing
// session unchanged.
func (e *Editor) Bind(ctx context.Context, user Identity, mode Mode, articleID string) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bound {
		return e.session, nil
	}
	if !rbac.Can(user.Role, rbac.ActionWrite) {
		return Session{}, ErrForbidden
	}

	session := Session{
		ID:   util.NewID("sess"),
		User: user,
		Mode: mode,
	}

	switch mode {
	case ModeEdit:
		if articleID == "" {
			return Session{}, errors.New("edit mode requires an article id")
		}
		session.ArticleID = articleID

		article, err := e.store.GetArticle(ctx, articleID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Nothing canonical yet. The session user becomes the author.
			session.AuthorID = user.UserID
			session.AuthorName = user.Name
			session.AuthorInitials = user.Initials
		case err != nil:
			return Session{}, err
		case article.AuthorID != "" && article.AuthorID != user.UserID:
			if !rbac.Can(user.Role, rbac.ActionOversee) {
				return Session{}, ErrForbidden
			}
			session.Overseer = true
			session.SkipLocalDrafts = true
			session.AuthorID = article.AuthorID
			session.AuthorName = article.AuthorName
			session.AuthorInitials = article.AuthorInitials
		default:
			session.AuthorID = user.UserID
			session.AuthorName = user.Name
			session.AuthorInitials = user.Initials
		}

	case ModeNew:
		id, err := e.resolveNewArticleID(ctx, user.UserID)
		if err != nil {
			return Session{}, err
		}
		session.ArticleID = id
		session.AuthorID = user.UserID
		session.AuthorName = user.Name
		session.AuthorInitials = user.Initials

		if err := e.cache.SetArticleSlot(ctx, user.UserID, id); err != nil {
			log.Printf("editor: set article slot for %s: %v", user.UserID, err)
		}

	default:
		return Session{}, errors.New("unknown session mode")
	}

	// Only sessions editing on the author's own behalf claim the article.
	// Overseer sessions stay invisible to the conflict detector.
	if !session.Overseer {
		if err := e.store.SetResumePointer(ctx, user.UserID, session.ArticleID); err != nil {
			return Session{}, err
		}
	}

	e.session = session
	e.bound = true
	return session, nil
}

// resolveNewArticleID picks the article id for a "new article" session:
// the slot from a previous unfinished session wins, then the Resume Pointer
// stored on the profile, then a fresh id.
func (e *Editor) resolveNewArticleID(ctx context.Context, userID string) (string, error) {
	slot, err := e.cache.GetArticleSlot(ctx, userID)
	if err != nil {
		log.Printf("editor: read article slot for %s: %v", userID, err)
	}
	if slot != "" {
		return slot, nil
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if user.LastActiveArticleID != nil && *user.LastActiveArticleID != "" {
		return *user.LastActiveArticleID, nil
	}

	return util.NewArticleID(), nil
}

// Session returns the binding established by Bind.
func (e *Editor) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, e.bound
}

// Snapshot returns a copy of the current editable state.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.clone()
}

// Apply replaces the editable state with the client's latest snapshot and
// arms the debounced draft write. Edits before restore are rejected so a
// slow restore cannot be clobbered by early keystrokes.
func (e *Editor) Apply(snap Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.bound {
		return ErrNotBound
	}
	if e.state != stateRestored {
		return ErrNotRestored
	}

	// Uploads registered out of band must survive a stale client snapshot.
	snap.UploadedAssets = mergeAssetSets(e.snapshot.UploadedAssets, snap.UploadedAssets)
	e.snapshot = snap.clone()
	e.scheduleDraftWrite()
	return nil
}

// RegisterUpload records a freshly uploaded asset URL in the session's
// uploaded set and persists it with the next draft write.
func (e *Editor) RegisterUpload(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.bound {
		return ErrNotBound
	}
	e.snapshot.UploadedAssets = mergeAssetSets(e.snapshot.UploadedAssets, []string{url})
	e.scheduleDraftWrite()
	return nil
}

// scheduleDraftWrite arms or postpones the debounce timer. Callers hold e.mu.
func (e *Editor) scheduleDraftWrite() {
	if e.session.SkipLocalDrafts {
		return
	}
	if e.debounce == nil {
		e.debounce = e.clk.AfterFunc(e.opts.DraftDebounce, e.flushDraft)
		return
	}
	e.debounce.Reset(e.opts.DraftDebounce)
}

// cancelDraftWrite disarms a pending debounce flush. Called after a
// successful push or save: the canonical store now holds state at least as
// fresh as the snapshot the timer would write, and a late flush would
// resurrect the just-deleted local draft.
func (e *Editor) cancelDraftWrite() {
	e.mu.Lock()
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()
}

// flushDraft writes the current snapshot to the Local Draft Cache. Failures
// are logged, not surfaced: the next edit re-arms the timer.
func (e *Editor) flushDraft() {
	e.mu.Lock()
	draft := LocalDraft{Snapshot: e.snapshot.clone(), SavedAt: e.clk.Now()}
	session := e.session
	e.mu.Unlock()

	if session.SkipLocalDrafts {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cache.SaveDraft(ctx, session.User.UserID, session.ArticleID, draft); err != nil {
		log.Printf("editor: save local draft for %s/%s: %v", session.User.UserID, session.ArticleID, err)
	}
}

// Discard is the explicit session reset: it drops the local draft and
// releases the session's claim without touching the canonical store.
func (e *Editor) Discard(ctx context.Context) error {
	e.mu.Lock()
	session := e.session
	bound := e.bound
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()

	if !bound {
		return ErrNotBound
	}
	if session.Overseer {
		return nil
	}

	if err := e.cache.DeleteDraft(ctx, session.User.UserID, session.ArticleID); err != nil {
		return err
	}
	if err := e.cache.ClearArticleSlot(ctx, session.User.UserID); err != nil {
		log.Printf("editor: clear article slot for %s: %v", session.User.UserID, err)
	}
	return e.store.ClearResumePointer(ctx, session.User.UserID)
}

// Close tears the session down: the debounce timer and the push loop are
// cancelled, in-flight operations finish on their own.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()
	e.stopOnce.Do(func() { close(e.stop) })
}

func mergeAssetSets(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, url := range existing {
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		merged = append(merged, url)
	}
	for _, url := range incoming {
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		merged = append(merged, url)
	}
	return merged
}
