package doctext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty",
			text: "",
			want: []string{},
		},
		{
			name: "single_line",
			text: "foobar",
			want: []string{"// foobar"},
		},
		{
			name: "readme",
			text: "# Title\nBody",
			want: []string{"// # Title", "// Body"},
		},
		{
			name: "trailing_newline_is_not_a_line",
			text: "# Title\nBody\n",
			want: []string{"// # Title", "// Body"},
		},
		{
			name: "blank_lines_are_bare",
			text: "a\n\nb",
			want: []string{"// a", "//", "// b"},
		},
		{
			name: "crlf",
			text: "a\r\nb\r\n",
			want: []string{"// a", "// b"},
		},
		{
			name: "fences_and_indentation_are_kept",
			text: "```go\n\tx := 1\n```",
			want: []string{"// ```go", "// \tx := 1", "// ```"},
		},
		{
			name: "trailing_blanks_are_dropped",
			text: "a   \n \t\nb\t",
			want: []string{"// a", "//", "// b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Comment(tt.text))
		})
	}
}

func TestTextRoundTrip(t *testing.T) {
	for _, text := range []string{
		"foobar",
		"# Title\nBody",
		"  leading spaces\n\n\ttabbed\nlast",
		"//go:generate looks like a directive",
	} {
		assert.Equal(t, text, Text(Comment(text)), "text: %q", text)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty",
			text: "",
			want: []string{},
		},
		{
			name: "canonical_text_is_kept",
			text: "# Title\nBody\n\nSecond paragraph.",
			want: []string{"// # Title", "// Body", "//", "// Second paragraph."},
		},
		{
			name: "indented_lines_become_code",
			text: "a\n\n    code\n    more",
			want: []string{"// a", "//", "//\tcode", "//\tmore"},
		},
		{
			name: "list_items_are_indented",
			text: "Steps:\n  - one\n  - two",
			want: []string{"// Steps:", "//   - one", "//   - two"},
		},
		{
			name: "heading_line_stands_alone",
			text: "# Title\n\nBody",
			want: []string{"// # Title", "//", "// Body"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(Comment(tt.text)))
		})
	}
}
