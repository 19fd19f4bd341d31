package position

import (
	"fmt"
	"go/token"

	"github.com/apparentlymart/go-textseg/v13/textseg"
)

// Place is a human facing source location. Line and Character are 1-based and
// Character counts grapheme clusters, not bytes.
type Place struct {
	File      string
	Line      int
	Character int
}

func (p Place) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Character)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Character)
}

func (p Place) IsValid() bool {
	return p.Line > 0
}

// Of returns the place of pos. When src is the content of the file pos
// belongs to, the column is recomputed in grapheme clusters.
func Of(fset *token.FileSet, pos token.Pos, src []byte) Place {
	if fset == nil || !pos.IsValid() {
		return Place{}
	}

	p := fset.Position(pos)
	place := Place{File: p.Filename, Line: p.Line, Character: p.Column}
	// a file without content has no line table
	if place.Line < 1 {
		place.Line = 1
	}
	if place.Character < 1 {
		place.Character = 1
	}

	if src == nil || p.Offset > len(src) {
		return place
	}

	start := LineStart(src, p.Offset)
	if n, err := textseg.TokenCount(src[start:p.Offset], textseg.ScanGraphemeClusters); err == nil {
		place.Character = n + 1
	}

	return place
}

// LineStart returns the byte offset of the first byte of the line holding offset.
func LineStart(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	for i := offset - 1; i >= 0; i-- {
		if src[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

// Indent returns the leading whitespace of the line holding offset, up to
// offset. It returns "" when anything other than blanks precedes offset.
func Indent(src []byte, offset int) string {
	start := LineStart(src, offset)
	for _, b := range src[start:offset] {
		if b != ' ' && b != '\t' {
			return ""
		}
	}
	return string(src[start:offset])
}
