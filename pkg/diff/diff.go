// Package diff renders pending file changes as unified diffs.
package diff

import (
	"github.com/pmezard/go-difflib/difflib"
	"gitlab.com/tozd/go/errors"
)

// Unified returns the unified diff turning old into new, labelled with path.
// An empty string means the contents are equal. A nil old renders as
// /dev/null, as does a nil new.
func Unified(path string, old, new []byte) (string, error) {
	if string(old) == string(new) && (old == nil) == (new == nil) {
		return "", nil
	}

	from, to := "a/"+path, "b/"+path
	if old == nil {
		from = "/dev/null"
	}
	if new == nil {
		to = "/dev/null"
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(old),
		B:        lines(new),
		FromFile: from,
		ToFile:   to,
		Context:  3,
	})
	if err != nil {
		return "", errors.Errorf("diffing %s: %w", path, err)
	}
	return text, nil
}

func lines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	return difflib.SplitLines(string(b))
}
