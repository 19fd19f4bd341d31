package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackageAndFunc(t *testing.T) {
	tests := []struct {
		name     string
		pkg      string
		function string
	}{
		{"github.com/walteh/doccomment/pkg/generate.(*Generator).Package", "github.com/walteh/doccomment/pkg/generate", "(*Generator).Package"},
		{"github.com/walteh/doccomment/pkg/doctext.Lines", "github.com/walteh/doccomment/pkg/doctext", "Lines"},
		{"main.main", "main", "main"},
		{"nodot", "nodot", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, fn := PackageAndFunc(tt.name)
			assert.Equal(t, tt.pkg, pkg)
			assert.Equal(t, tt.function, fn)
		})
	}
}

func TestFormatCaller(t *testing.T) {
	assert.Equal(t, "pkg/x:file.go:12", FormatCaller("pkg/x", "/a/b/file.go", 12))
	assert.Equal(t, "file.go", FileNameOfPath("file.go"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, false, true)
	logger.Debug().Msg("hidden")
	logger.Info().Str("path", "x.go").Msg("wrote file")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "wrote file")
	assert.Contains(t, buf.String(), "path=x.go")

	buf.Reset()
	logger = NewLogger(&buf, true, true)
	logger.Debug().Msg("shown")

	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "pkg/debug:debug_test.go:")
}
