package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) onChange(changed []string) {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "demo_docs.json")
	doc := filepath.Join(dir, "faq.md")
	writeFile(t, manifest, "[]")
	writeFile(t, doc, "v1")

	rec := &recorder{}
	w := NewWatcher(rec.onChange, WithDebounce(100*time.Millisecond))
	if err := w.SetFiles(manifest, doc); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeFile(t, doc, "v2")
	}
	writeFile(t, manifest, `[{"path": "faq.md", "tenant": "Acme Corp"}]`)

	waitFor(t, func() bool { return len(rec.snapshot()) >= 1 })
	time.Sleep(250 * time.Millisecond)
	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one debounced callback, got %d: %v", len(calls), calls)
	}
	if len(calls[0]) != 2 || calls[0][0] != doc || calls[0][1] != manifest {
		t.Errorf("changed = %v", calls[0])
	}
}

func TestWatcher_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "tracked.txt")
	writeFile(t, tracked, "x")

	rec := &recorder{}
	w := NewWatcher(rec.onChange, WithDebounce(50*time.Millisecond))
	if err := w.SetFiles(tracked); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.txt"), "y")
	time.Sleep(300 * time.Millisecond)
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Errorf("untracked file triggered callback: %v", calls)
	}
}

func TestWatcher_RenameReplace(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.json")
	writeFile(t, manifest, "[]")

	rec := &recorder{}
	w := NewWatcher(rec.onChange, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.SetFiles(manifest); err != nil {
		t.Fatal(err)
	}

	tmp := filepath.Join(dir, ".manifest.json.swp")
	writeFile(t, tmp, "[]\n")
	if err := os.Rename(tmp, manifest); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
}

func TestWatcher_SetFiles(t *testing.T) {
	a := filepath.Join(t.TempDir(), "a.json")
	b := filepath.Join(t.TempDir(), "b.md")
	w := NewWatcher(nil)
	if err := w.SetFiles(b, a, a); err != nil {
		t.Fatal(err)
	}
	files := w.Files()
	if len(files) != 2 {
		t.Fatalf("Files() = %v", files)
	}
	if err := w.SetFiles(a); err != nil {
		t.Fatal(err)
	}
	if got := w.Files(); len(got) != 1 || got[0] != a {
		t.Errorf("Files() = %v", got)
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w := NewWatcher(nil)
	w.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	w.Stop()
	w.Stop()
}
