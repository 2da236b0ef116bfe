package ingest

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// extractMarkdown renders markdown as plain paragraphs. Headings, list
// items and code blocks become their own paragraphs and table rows are
// rendered with " | " between cells.
func (e *Extractor) extractMarkdown(content []byte) string {
	content = trimBOM(content)
	if len(content) == 0 {
		return ""
	}
	doc := e.markdown.Parser().Parse(text.NewReader(content))

	var paragraphs []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			add(inlineText(node, content))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			var b strings.Builder
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(content))
			}
			add(b.String())
			return ast.WalkSkipChildren, nil
		case *east.TableHeader, *east.TableRow:
			add(tableRowText(node, content))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(paragraphs, "\n\n")
}

// inlineText concatenates the text of a node's inline children, turning
// line breaks into spaces.
func inlineText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func tableRowText(row ast.Node, content []byte) string {
	var cells []string
	for c := row.FirstChild(); c != nil; c = c.NextSibling() {
		if cell, ok := c.(*east.TableCell); ok {
			cells = append(cells, inlineText(cell, content))
		}
	}
	return strings.Join(cells, " | ")
}
