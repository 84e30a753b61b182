// Package markdownx normalizes the Markdown ingestion format (spec §6:
// "UTF-8 Markdown files, no other formats") into the paragraph-delimited
// plain text the Chunker's paragraph-packing algorithm assumes.
package markdownx

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// blockSelector picks the elements whose text content becomes one
// paragraph in the normalized output.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, td, th"

// Normalize parses raw as Markdown, renders it to HTML, sanitizes any
// embedded raw HTML, and extracts visible text with paragraph breaks
// preserved as blank lines, matching the input the Chunker's
// paragraph-packing algorithm assumes.
func Normalize(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("markdownx: input is not valid UTF-8")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", nil
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(raw)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	safeHTML := bluemonday.UGCPolicy().SanitizeBytes(rendered)

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(string(safeHTML)))
	if err != nil {
		return "", fmt.Errorf("markdownx: parse sanitized html: %w", err)
	}
	parsed.Find("script, style").Remove()

	blocks := parsed.Find(blockSelector)
	if blocks.Length() == 0 {
		text := strings.TrimSpace(parsed.Text())
		return text, nil
	}

	paragraphs := make([]string, 0, blocks.Length())
	blocks.Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(collapseWhitespace(s.Text()))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	return strings.Join(paragraphs, "\n\n"), nil
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
