package doctest

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Block is a fenced code block of a markdown document.
type Block struct {
	// Lang is the first word of the info string, lower cased.
	Lang string
	// Attrs are the remaining words of the info string.
	Attrs []string
	Code  string
	// Line is the 1-based line of the opening fence.
	Line int
}

// Runnable reports whether the block becomes an example: Go code not
// tagged ignore or compile_fail.
func (b Block) Runnable() bool {
	if b.Lang != "go" && b.Lang != "golang" {
		return false
	}
	for _, a := range b.Attrs {
		switch a {
		case "ignore", "compile_fail":
			return false
		}
	}
	return true
}

// Blocks returns the fenced code blocks of a CommonMark document in order,
// including the ones nested in list items and block quotes. An unclosed
// fence runs to the end of its container.
func Blocks(doc string) []Block {
	src := []byte(strings.ReplaceAll(doc, "\r\n", "\n"))
	root := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []Block
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		blocks = append(blocks, fencedBlock(src, fenced))
		return ast.WalkSkipChildren, nil
	})

	return blocks
}

func fencedBlock(src []byte, n *ast.FencedCodeBlock) Block {
	var b Block

	if n.Info != nil {
		info := n.Info.Segment
		b.Lang, b.Attrs = parseInfo(string(info.Value(src)))
		b.Line = lineOf(src, info.Start)
	}

	lines := n.Lines()
	var code bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(src))
	}
	if code.Len() > 0 && !bytes.HasSuffix(code.Bytes(), []byte("\n")) {
		code.WriteByte('\n')
	}
	b.Code = code.String()

	// without an info string the fence is the line before the first code line
	if n.Info == nil && lines.Len() > 0 {
		b.Line = lineOf(src, lines.At(0).Start) - 1
	}

	return b
}

func lineOf(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return bytes.Count(src[:offset], []byte("\n")) + 1
}

// parseInfo splits an info string such as "go,no_run" or "go ignore".
func parseInfo(info string) (string, []string) {
	words := strings.FieldsFunc(info, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(words) == 0 {
		return "", nil
	}
	return strings.ToLower(words[0]), words[1:]
}
