package position_test

import (
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/walteh/doccomment/pkg/position"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		offset   int
		wantLine int
		wantCol  int
	}{
		{
			name:     "empty text",
			text:     "",
			offset:   0,
			wantLine: 1,
			wantCol:  1,
		},
		{
			name:     "single line, middle position",
			text:     "Hello, World!",
			offset:   7,
			wantLine: 1,
			wantCol:  8,
		},
		{
			name:     "multiple lines, third line",
			text:     "package p\n\n//doccomment:attach x\n",
			offset:   11,
			wantLine: 3,
			wantCol:  1,
		},
		{
			name:     "multi byte runes count once",
			text:     "const s = \"héllo\" // x",
			offset:   len("const s = \"héllo\" "),
			wantLine: 1,
			wantCol:  19,
		},
		{
			name:     "combining sequences count once",
			text:     "\"e\u0301e\u0301\" x",
			offset:   len("\"e\u0301e\u0301\" "),
			wantLine: 1,
			wantCol:  6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fset := token.NewFileSet()
			file := fset.AddFile("x.go", fset.Base(), len(tt.text))
			file.SetLinesForContent([]byte(tt.text))

			got := position.Of(fset, file.Pos(tt.offset), []byte(tt.text))
			assert.Equal(t, "x.go", got.File)
			assert.Equal(t, tt.wantLine, got.Line, "line")
			assert.Equal(t, tt.wantCol, got.Character, "column")
		})
	}
}

func TestOfInvalid(t *testing.T) {
	assert.False(t, position.Of(nil, token.NoPos, nil).IsValid())
	assert.False(t, position.Of(token.NewFileSet(), token.NoPos, nil).IsValid())
}

func TestPlaceString(t *testing.T) {
	assert.Equal(t, "a.go:3:7", position.Place{File: "a.go", Line: 3, Character: 7}.String())
	assert.Equal(t, "3:7", position.Place{Line: 3, Character: 7}.String())
}

func TestIndent(t *testing.T) {
	src := []byte("type S struct {\n\t\tField int\n}\n")

	assert.Equal(t, "\t\t", position.Indent(src, 18))
	assert.Equal(t, "", position.Indent(src, 20))
	assert.Equal(t, 16, position.LineStart(src, 18))
	assert.Equal(t, 0, position.LineStart(src, 3))
}
