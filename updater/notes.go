package updater

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// RenderChangelog turns release notes into the HTML changelog section. The
// body is Markdown as authored on the registry; the output is sanitized.
func RenderChangelog(version, body string) string {
	heading := "<p><strong>" + html.EscapeString(version) + "</strong>"
	body = strings.TrimSpace(body)
	if body == "" {
		return heading + " - See GitHub for details.</p>"
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return heading + "</p><p>" + html.EscapeString(body) + "</p>"
	}
	return heading + "</p>" + policy.Sanitize(buf.String())
}

// RenderDescription sanitizes a configured description. Plain text is wrapped
// in a paragraph.
func RenderDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	if !strings.HasPrefix(desc, "<") {
		return "<p>" + html.EscapeString(desc) + "</p>"
	}
	return policy.Sanitize(desc)
}
