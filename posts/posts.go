// ABOUTME: Content store that scans the posts directory once and keeps every rendered post in memory.
// ABOUTME: The store is immutable after Load; lookups and listings return copies safe to share across requests.
package posts

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/2389-research/kes/render"
)

const postExt = ".md"

// Item identifies one post in the listing.
type Item struct {
	Key   string `json:"key" yaml:"key"`
	Title string `json:"title" yaml:"title"`
}

// PageRenderer wraps a converted post body in the post page template.
type PageRenderer interface {
	RenderPost(title, bodyHTML string) (string, error)
}

// Store holds the rendered HTML for every post, keyed by post key, and the
// listing in scan order.
type Store struct {
	list     []Item
	rendered map[string]string
}

// Load resolves dir against the working directory and builds the store. A
// missing posts directory is not an error: the store is simply empty.
// The only error returned is a page render failure.
func Load(dir string, pages PageRenderer, logger *zap.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		logger.Warn("could not resolve posts directory", zap.String("posts_dir", dir), zap.Error(err))
		return empty(), nil
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		logger.Warn("invalid posts directory provided", zap.String("posts_dir", abs))
		return empty(), nil
	}

	return LoadFS(os.DirFS(abs), pages, logger)
}

// LoadFS builds the store from the *.md files at the root of fsys.
func LoadFS(fsys fs.FS, pages PageRenderer, logger *zap.Logger) (*Store, error) {
	md := render.NewMarkdown()
	s := empty()

	for _, name := range collectPostNames(fsys, logger) {
		key := Key(name)
		title := Title(key)

		body, err := readPost(fsys, name, md)
		if err != nil {
			// Still listed so the URL stays stable; the page renders with no content.
			logger.Warn("could not read post, rendering empty body",
				zap.String("post", name), zap.Error(err))
			body = ""
		}

		page, err := pages.RenderPost(title, body)
		if err != nil {
			return nil, fmt.Errorf("rendering post %s: %w", key, err)
		}

		s.rendered[key] = page
		s.list = append(s.list, Item{Key: key, Title: title})
	}

	logger.Info("loaded posts", zap.Int("count", len(s.list)))
	return s, nil
}

func empty() *Store {
	return &Store{rendered: make(map[string]string)}
}

// collectPostNames lists the *.md entries at the root of fsys in directory
// order. Listing errors yield no posts.
func collectPostNames(fsys fs.FS, logger *zap.Logger) []string {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		logger.Error("error getting post file paths", zap.Error(err))
		return nil
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if ok, _ := path.Match("*"+postExt, name); !ok {
			continue
		}
		// Follows symlinks; dangling links and directories are skipped.
		info, err := fs.Stat(fsys, name)
		if err != nil || info.IsDir() {
			continue
		}
		names = append(names, name)
	}
	return names
}

func readPost(fsys fs.FS, name string, md *render.Markdown) (string, error) {
	src, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(src) {
		return "", fmt.Errorf("%s is not valid UTF-8", name)
	}
	return md.Convert(src)
}

// Get returns the rendered page for key.
func (s *Store) Get(key string) (string, bool) {
	page, ok := s.rendered[key]
	return page, ok
}

// List returns a copy of the post listing in scan order.
func (s *Store) List() []Item {
	out := make([]Item, len(s.list))
	copy(out, s.list)
	return out
}

// Len is the number of posts.
func (s *Store) Len() int {
	return len(s.list)
}

// Key is the file name without directory and without any trailing .md
// suffixes.
func Key(name string) string {
	key := filepath.Base(name)
	for strings.HasSuffix(key, postExt) {
		key = strings.TrimSuffix(key, postExt)
	}
	return key
}

// Title turns a key into a display title: '-' and '_' become spaces and
// each space-separated word gets an upper-cased first letter. Empty words
// are kept, so "a--b" becomes "A  B". The first letter may expand
// ("ß" becomes "SS"); the rest of the word is left as is.
func Title(key string) string {
	upper := cases.Upper(language.Und)
	words := strings.Split(strings.NewReplacer("-", " ", "_", " ").Replace(key), " ")
	for i, w := range words {
		_, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = upper.String(w[:size]) + w[size:]
	}
	return strings.Join(words, " ")
}
