// Package doctext converts between plain text and the line comments of a Go
// doc comment.
package doctext

import (
	"go/doc/comment"
	"strings"
)

// Lines splits text into lines. CRLF and lone CR are treated as line breaks
// and a single trailing line break does not start an extra line.
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// Comment returns the line comments carrying text. Trailing blanks are
// dropped and empty lines become a bare "//", as gofmt prints them.
func Comment(text string) []string {
	lines := Lines(text)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			out = append(out, "//")
			continue
		}
		out = append(out, "// "+line)
	}
	return out
}

// Text is the inverse of Comment: it strips the comment marker and the single
// space following it from each line.
func Text(comments []string) string {
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		c = strings.TrimPrefix(c, "//")
		c = strings.TrimPrefix(c, " ")
		lines = append(lines, c)
	}
	return strings.Join(lines, "\n")
}

// Format returns comments as gofmt prints them in a top-level doc comment.
// comments must not hold directives.
func Format(comments []string) []string {
	if len(comments) == 0 {
		return comments
	}

	var b strings.Builder
	for _, c := range comments {
		c = strings.TrimPrefix(c, "//")
		b.WriteString(strings.TrimPrefix(c, " "))
		b.WriteString("\n")
	}

	var p comment.Parser
	var pr comment.Printer
	text := string(pr.Comment(p.Parse(b.String())))

	out := []string{}
	for text != "" {
		var line string
		line, text, _ = strings.Cut(text, "\n")
		line = strings.TrimRight(line, " \t")
		switch {
		case line == "":
			out = append(out, "//")
		case strings.HasPrefix(line, "\t"):
			out = append(out, "//"+line)
		default:
			out = append(out, "// "+line)
		}
	}
	return out
}
