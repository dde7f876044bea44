package reporting

import (
	"bytes"
	"fmt"
	"html"

	"github.com/spboyer/arena/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 72rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; margin-bottom: 1rem; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; }
pre { background: #f6f8fa; padding: 0.75rem; overflow-x: auto; white-space: pre-wrap; }
</style>
</head>
<body>
`

const htmlFoot = "</body>\n</html>\n"

// RenderHTML renders the Markdown report as a standalone HTML page. Raw HTML
// in prompts and outputs is escaped since goldmark runs without WithUnsafe.
func RenderHTML(outcome *models.RunOutcome) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(outcome)), &body); err != nil {
		return nil, fmt.Errorf("rendering HTML report: %w", err)
	}

	title := outcome.Name
	if title == "" {
		title = "Arena run " + outcome.RunID
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, htmlHead, html.EscapeString(title))
	out.Write(body.Bytes())
	out.WriteString(htmlFoot)
	return out.Bytes(), nil
}
