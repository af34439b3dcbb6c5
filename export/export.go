// ABOUTME: Writes the whole site to a directory as static HTML: index, 404 page, and one page per post.
// ABOUTME: Files are replaced atomically so a half-written export is never visible to a file server.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/2389-research/kes/posts"
)

// Source is what an export reads: the post listing and the pre-rendered pages.
type Source interface {
	Get(key string) (string, bool)
	List() []posts.Item
}

// PageRenderer renders the pages that are not stored per post.
type PageRenderer interface {
	RenderHome(items []posts.Item) (string, error)
	RenderNotFound() (string, error)
}

// Result summarises a finished export.
type Result struct {
	Dir   string
	Files []string // paths relative to Dir, in write order
}

// Site writes index.html, 404.html and post/<key>/index.html under outDir.
// Keys that would escape post/ are skipped with a warning.
func Site(outDir string, src Source, pages PageRenderer, logger *zap.Logger) (*Result, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	res := &Result{Dir: abs}

	items := src.List()

	home, err := pages.RenderHome(items)
	if err != nil {
		return nil, fmt.Errorf("rendering home: %w", err)
	}
	if err := res.write("index.html", home); err != nil {
		return nil, err
	}

	notFound, err := pages.RenderNotFound()
	if err != nil {
		return nil, fmt.Errorf("rendering 404: %w", err)
	}
	if err := res.write("404.html", notFound); err != nil {
		return nil, err
	}

	for _, item := range items {
		if !safeKey(item.Key) {
			logger.Warn("skipping post with unsafe key", zap.String("key", item.Key))
			continue
		}
		page, ok := src.Get(item.Key)
		if !ok {
			continue
		}
		if err := res.write(filepath.Join("post", item.Key, "index.html"), page); err != nil {
			return nil, err
		}
	}

	logger.Info("exported site", zap.String("dir", abs), zap.Int("files", len(res.Files)))
	return res, nil
}

func (r *Result) write(rel, page string) error {
	path := filepath.Join(r.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(page)); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	r.Files = append(r.Files, rel)
	return nil
}

func safeKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}
