package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/doccomment/pkg/diff"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
)

// Writer puts a Result on disk or renders it as a diff.
type Writer struct {
	fs afero.Fs
	// Root makes diff labels relative. Empty keeps paths as they are.
	Root string
}

func NewWriter(fs afero.Fs, root string) *Writer {
	return &Writer{fs: fs, Root: root}
}

// Apply writes every change. It stops at the first failure.
func (w *Writer) Apply(ctx context.Context, res *Result) error {
	if res == nil {
		return nil
	}

	for _, change := range res.Changes {
		if change.Delete {
			if err := w.fs.Remove(change.Path); err != nil && !os.IsNotExist(err) {
				return errors.Errorf("removing %s: %w", change.Path, err)
			}
			zerolog.Ctx(ctx).Info().Str("path", w.label(change.Path)).Msg("removed stale file")
			continue
		}

		if err := w.write(change.Path, change.New); err != nil {
			return err
		}

		zerolog.Ctx(ctx).Info().
			Str("path", w.label(change.Path)).
			Bool("created", change.Old == nil).
			Bool("generated", change.Generated).
			Msg("wrote file")
	}

	return nil
}

func (w *Writer) write(path string, content []byte) (err error) {
	if err := w.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Errorf("creating directory for %s: %w", path, err)
	}

	f, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Errorf("opening %s: %w", path, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	if _, err := f.Write(content); err != nil {
		return errors.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// Diff renders every change as a unified diff.
func (w *Writer) Diff(res *Result) (string, error) {
	if res == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, change := range res.Changes {
		var next []byte
		if !change.Delete {
			next = change.New
		}
		text, err := diff.Unified(w.label(change.Path), change.Old, next)
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func (w *Writer) label(path string) string {
	if w.Root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
