package revisions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestRecordAndHistory(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first := Content{
		Title: "Night Trains",
		Slug:  "night-trains",
		Body: json.RawMessage(`{
			"type":"doc",
			"content":[
				{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Night Trains"}]},
				{"type":"paragraph","content":[{"type":"text","text":"First draft."}]}
			]
		}`),
		Tags: []string{"fiction"},
	}

	rev, err := svc.Record("art-1", first, "Maya Reyes", "Save draft")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rev.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "art-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second := first
	second.Title = "Night Trains, Revisited"
	if _, err := svc.Record("art-1", second, "Maya Reyes", "Save draft"); err != nil {
		t.Fatalf("Record() second save error = %v", err)
	}

	history, err := svc.History("art-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}

	head, headRev, err := svc.Head("art-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.Title != "Night Trains, Revisited" {
		t.Fatalf("unexpected head content: %+v", head)
	}
	if headRev.Author != "Maya Reyes" {
		t.Fatalf("unexpected head author: %q", headRev.Author)
	}

	old, err := svc.ContentAt("art-1", rev.Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if old.Title != "Night Trains" {
		t.Fatalf("unexpected content at first revision: %+v", old)
	}
	if len(old.Body) == 0 {
		t.Fatal("expected persisted body JSON")
	}
}

func TestHasHistory(t *testing.T) {
	svc := New(t.TempDir())

	if svc.HasHistory("art-1") {
		t.Fatal("expected no history before first record")
	}
	if _, err := svc.Record("art-1", Content{Title: "x", Slug: "x"}, "Maya", "Save"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !svc.HasHistory("art-1") {
		t.Fatal("expected history after first record")
	}
}

func TestConcurrentRecordSameArticle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	base := Content{Title: "Doc", Slug: "doc"}
	if _, err := svc.Record("art-1", base, "Maya", "Initial save"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := base
			next.Title = fmt.Sprintf("title-%02d", idx)
			if _, err := svc.Record("art-1", next, "Maya", fmt.Sprintf("Save %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Record() concurrent error = %v", err)
		}
	}

	history, err := svc.History("art-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < writers+1 {
		t.Fatalf("expected at least %d revisions, got %d", writers+1, len(history))
	}

	head, _, err := svc.Head("art-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if !strings.HasPrefix(head.Title, "title-") {
		t.Fatalf("unexpected head content after concurrent saves: %+v", head)
	}
}
