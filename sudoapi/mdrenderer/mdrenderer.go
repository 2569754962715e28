package mdrenderer

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns short markdown texts (campaign descriptions, receipt bodies) into sanitized HTML.
type Renderer struct {
	md  goldmark.Markdown
	pol *bluemonday.Policy
}

func (r *Renderer) Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := r.md.Convert(src, &buf)
	return r.pol.SanitizeReader(&buf).Bytes(), err
}

// Sanitize strips unsafe markup from text that is stored as HTML.
func (r *Renderer) Sanitize(src string) string {
	return r.pol.Sanitize(src)
}

func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	return &Renderer{md, bluemonday.UGCPolicy()}
}
