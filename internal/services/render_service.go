package services

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"pinetree/internal/models"
)

// Raw HTML in notes is escaped: goldmark only passes it through with
// html.WithUnsafe.
var publicMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
		parser.WithASTTransformers(util.Prioritized(&externalLinkTransformer{}, 100)),
	),
)

// externalLinkTransformer opens absolute links in a new tab.
type externalLinkTransformer struct{}

func (t *externalLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch link := n.(type) {
		case *ast.Link:
			if isExternalLink(link.Destination) {
				link.SetAttributeString("target", []byte("_blank"))
				link.SetAttributeString("rel", []byte("noopener noreferrer"))
			}
		case *ast.AutoLink:
			if link.AutoLinkType == ast.AutoLinkURL && isExternalLink(link.URL(reader.Source())) {
				link.SetAttributeString("target", []byte("_blank"))
				link.SetAttributeString("rel", []byte("noopener noreferrer"))
			}
		}
		return ast.WalkContinue, nil
	})
}

func isExternalLink(dest []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(dest)))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "//")
}

var publicPage = template.Must(template.New("public").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Arial, sans-serif; line-height: 1.6; max-width: 760px; margin: 0 auto; padding: 40px 20px; color: #222; }
pre, code { background: #f4f4f4; border-radius: 3px; }
pre { padding: 12px; overflow-x: auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 6px 10px; }
img { max-width: 100%; }
</style>
</head>
<body>
<article>
{{.Body}}
</article>
</body>
</html>
`))

type renderedPage struct {
	updatedAt time.Time
	html      string
}

// RenderService turns public notes into standalone HTML pages
type RenderService struct {
	cache *cache.Cache
}

// NewRenderService creates a render service with a ten minute page cache
func NewRenderService() *RenderService {
	return &RenderService{cache: cache.New(10*time.Minute, 20*time.Minute)}
}

// RenderMarkdown converts markdown to an HTML fragment.
func (s *RenderService) RenderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := publicMarkdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderPage returns the full HTML page for p, whose content must already
// be plaintext. Pages are cached until p changes.
func (s *RenderService) RenderPage(p *models.Pinecone) (string, error) {
	key := p.Guid.String()
	if cached, ok := s.cache.Get(key); ok {
		page := cached.(renderedPage)
		if page.updatedAt.Equal(p.UpdatedAt) {
			return page.html, nil
		}
	}

	body, err := s.RenderMarkdown(p.Content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := publicPage.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: p.Title, Body: template.HTML(body)}); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}

	html := buf.String()
	s.cache.SetDefault(key, renderedPage{updatedAt: p.UpdatedAt, html: html})
	return html, nil
}

// Invalidate drops the cached page of guid.
func (s *RenderService) Invalidate(guid string) {
	s.cache.Delete(guid)
}
