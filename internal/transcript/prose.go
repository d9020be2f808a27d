package transcript

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Linkify surfaces bare URLs as autolink nodes so they can be dropped along
// with explicit link destinations.
var markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify))

// Prose reduces assistant markdown to the lines worth speaking. Code blocks,
// inline code, URLs, block quotes and markup are removed; link labels,
// heading text and list text are kept. Lines that look like bare paths,
// shell prompts or data dumps are dropped, and blank runs are collapsed.
func Prose(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var (
		lines []string
		cur   strings.Builder
	)
	endLine := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.Blockquote:
			if entering {
				return ast.WalkSkipChildren, nil
			}
		case *ast.CodeSpan, *ast.AutoLink, *ast.Image, *ast.RawHTML:
			if entering {
				return ast.WalkSkipChildren, nil
			}
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					endLine()
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		default:
			// Every other block closes its line and separates itself
			// from the next with a blank.
			if !entering && n.Type() == ast.TypeBlock {
				endLine()
				lines = append(lines, "")
			}
		}
		return ast.WalkContinue, nil
	})
	endLine()

	var kept []string
	for _, line := range lines {
		if s := strings.TrimSpace(line); s == "" || speakableLine(s) {
			kept = append(kept, line)
		}
	}
	return collapse(kept)
}

// speakableLine reports whether a trimmed, nonblank line reads as prose
// rather than as a path, a shell prompt or structured data.
func speakableLine(s string) bool {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~") ||
		strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return false
	}
	if strings.HasPrefix(s, "$") || strings.HasPrefix(s, ">") || strings.HasPrefix(s, "#!") {
		return false
	}
	var runes, letters int
	for _, r := range s {
		runes++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if runes > 5 && float64(letters)/float64(runes) < 0.4 {
		return false
	}
	return true
}

// collapse joins lines, trimming leading and trailing blanks and reducing
// every blank run to a single separator.
func collapse(lines []string) string {
	var b strings.Builder
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank = true
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}
