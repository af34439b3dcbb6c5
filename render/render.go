// ABOUTME: Converts post Markdown to HTML with goldmark using CommonMark plus strikethrough only.
// ABOUTME: Raw HTML in posts passes through untouched; post sources are trusted author content.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown converts CommonMark with ~~strikethrough~~ into HTML. Tables,
// footnotes, autolinks and the other GFM extensions are deliberately off.
// A Markdown is safe for concurrent use.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown builds the converter used for every post.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Convert renders src to an HTML fragment.
func (m *Markdown) Convert(src []byte) (string, error) {
	var buf bytes.Buffer
	buf.Grow(len(src) * 3 / 2)
	if err := m.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}
