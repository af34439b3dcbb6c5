// ABOUTME: Tests for the content store covering key/title derivation, directory scanning, and lookups.
// ABOUTME: Uses in-memory filesystems and a stub page renderer so only store behaviour is exercised.
package posts

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubPages wraps bodies in recognisable markers instead of a real template.
type stubPages struct {
	err error
}

func (p stubPages) RenderPost(title, bodyHTML string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "<article><h1>" + title + "</h1>" + bodyHTML + "</article>", nil
}

// failingFS refuses to open one file but lists it normally.
type failingFS struct {
	fstest.MapFS
	fail string
}

func (f failingFS) Open(name string) (fs.File, error) {
	if name == f.fail {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	}
	return f.MapFS.Open(name)
}

func (f failingFS) ReadFile(name string) ([]byte, error) {
	if name == f.fail {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrPermission}
	}
	return f.MapFS.ReadFile(name)
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestTitle(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"my-first_post", "My First Post"},
		{"hello", "Hello"},
		{"already Capped", "Already Capped"},
		{"a--b", "A  B"},
		{"a_-b", "A  B"},
		{"-lead", " Lead"},
		{"trail_", "Trail "},
		{"", ""},
		{"über-café", "Über Café"},
		{"keepCase-inside", "KeepCase Inside"},
		{"2024-recap", "2024 Recap"},
		{"ßtraße", "SStraße"},
		{"\ufb01ne-day", "FIne Day"},
	}
	for _, tt := range tests {
		if got := Title(tt.key); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"hello.md", "hello"},
		{"/srv/posts/my-post.md", "my-post"},
		{"double.md.md", "double"},
		{"notes.markdown", "notes.markdown"},
	}
	for _, tt := range tests {
		if got := Key(tt.name); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoadFSBuildsListingAndPages(t *testing.T) {
	fsys := fstest.MapFS{
		"alpha-one.md": {Data: []byte("# Alpha\n\nsome ~~old~~ text")},
		"beta_two.md":  {Data: []byte("*beta*")},
		"readme.txt":   {Data: []byte("ignored")},
		"drafts/x.md":  {Data: []byte("nested, ignored")},
		"folder.md/a":  {Data: []byte("directory named like a post")},
		"gamma.md":     {Data: []byte("")},
	}
	logger, _ := observedLogger()

	store, err := LoadFS(fsys, stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list := store.List()
	want := []Item{
		{Key: "alpha-one", Title: "Alpha One"},
		{Key: "beta_two", Title: "Beta Two"},
		{Key: "gamma", Title: "Gamma"},
	}
	if len(list) != len(want) {
		t.Fatalf("expected %d posts, got %d: %+v", len(want), len(list), list)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("post %d: expected %+v, got %+v", i, want[i], list[i])
		}
	}

	page, ok := store.Get("alpha-one")
	if !ok {
		t.Fatal("expected alpha-one to be present")
	}
	if !strings.Contains(page, "<h1>Alpha One</h1>") {
		t.Errorf("expected title marker in page, got %q", page)
	}
	if !strings.Contains(page, "<h1>Alpha</h1>") || !strings.Contains(page, "<del>old</del>") {
		t.Errorf("expected converted body in page, got %q", page)
	}

	for _, item := range list {
		page, ok := store.Get(item.Key)
		if !ok || page == "" {
			t.Errorf("expected non-empty page for %q", item.Key)
		}
	}

	if store.Len() != 3 {
		t.Errorf("expected Len 3, got %d", store.Len())
	}
}

func TestGetIsIdempotent(t *testing.T) {
	fsys := fstest.MapFS{"post.md": {Data: []byte("body")}}
	logger, _ := observedLogger()
	store, err := LoadFS(fsys, stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := store.Get("post")
	for i := 0; i < 5; i++ {
		again, ok := store.Get("post")
		if !ok || again != first {
			t.Fatalf("expected identical content on call %d", i)
		}
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("expected missing key to be absent")
	}
}

func TestListReturnsCopy(t *testing.T) {
	fsys := fstest.MapFS{"post.md": {Data: []byte("body")}}
	logger, _ := observedLogger()
	store, err := LoadFS(fsys, stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list := store.List()
	list[0].Title = "mutated"

	if got := store.List()[0].Title; got != "Post" {
		t.Errorf("expected store listing unchanged, got %q", got)
	}
}

func TestLoadFSUnreadablePostIsListedWithEmptyBody(t *testing.T) {
	fsys := failingFS{
		MapFS: fstest.MapFS{
			"good.md":   {Data: []byte("fine")},
			"broken.md": {Data: []byte("never read")},
		},
		fail: "broken.md",
	}
	logger, logs := observedLogger()

	store, err := LoadFS(fsys, stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, ok := store.Get("broken")
	if !ok {
		t.Fatal("expected unreadable post to keep its entry")
	}
	if page != "<article><h1>Broken</h1></article>" {
		t.Errorf("expected empty-body page, got %q", page)
	}
	if store.Len() != 2 {
		t.Errorf("expected both posts listed, got %d", store.Len())
	}

	warned := logs.FilterMessage("could not read post, rendering empty body").All()
	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %d", len(warned))
	}
	if warned[0].ContextMap()["post"] != "broken.md" {
		t.Errorf("expected warning to name broken.md, got %v", warned[0].ContextMap())
	}
}

func TestLoadFSInvalidUTF8TreatedAsUnreadable(t *testing.T) {
	fsys := fstest.MapFS{"bad.md": {Data: []byte{0xff, 0xfe, 'x'}}}
	logger, logs := observedLogger()

	store, err := LoadFS(fsys, stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page, _ := store.Get("bad"); page != "<article><h1>Bad</h1></article>" {
		t.Errorf("expected empty-body page, got %q", page)
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Errorf("expected one warning, got %d", logs.FilterLevelExact(zapcore.WarnLevel).Len())
	}
}

func TestLoadFSRenderErrorIsReturned(t *testing.T) {
	fsys := fstest.MapFS{"post.md": {Data: []byte("body")}}
	logger, _ := observedLogger()
	boom := errors.New("boom")

	_, err := LoadFS(fsys, stubPages{err: boom}, logger)
	if !errors.Is(err, boom) {
		t.Fatalf("expected render error, got %v", err)
	}
}

func TestLoadMissingDirectoryIsEmpty(t *testing.T) {
	logger, logs := observedLogger()

	store, err := Load(filepath.Join(t.TempDir(), "does-not-exist"), stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 0 || len(store.List()) != 0 {
		t.Errorf("expected empty store, got %+v", store.List())
	}
	if _, ok := store.Get("anything"); ok {
		t.Error("expected every lookup to miss")
	}
	if logs.FilterMessage("invalid posts directory provided").Len() != 1 {
		t.Error("expected invalid directory warning")
	}
}

func TestLoadFileInsteadOfDirectoryIsEmpty(t *testing.T) {
	file := filepath.Join(t.TempDir(), "posts")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	logger, _ := observedLogger()

	store, err := Load(file, stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d posts", store.Len())
	}
}

func TestLoadRelativeToWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "posts"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "posts", "hello-world.md"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("writing post: %v", err)
	}
	t.Chdir(root)
	logger, _ := observedLogger()

	store, err := Load("posts", stubPages{}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list := store.List()
	if len(list) != 1 || list[0] != (Item{Key: "hello-world", Title: "Hello World"}) {
		t.Fatalf("unexpected listing: %+v", list)
	}
	if page, _ := store.Get("hello-world"); !strings.Contains(page, "<p>hi</p>") {
		t.Errorf("expected rendered body, got %q", page)
	}
}
