package attach

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/doccomment/pkg/attacher"
	"github.com/walteh/doccomment/pkg/consteval"
	"github.com/walteh/doccomment/pkg/diagnostic"
	"github.com/walteh/doccomment/pkg/generate"
	"github.com/walteh/doccomment/pkg/loader"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
)

type Handler struct {
	fs  afero.Fs
	out io.Writer

	write bool
	diff  bool
}

func NewAttachCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "attach [files...]",
		Short: "apply the attach directives of the given files only",
	}

	cmd.Flags().BoolVarP(&me.write, "write", "w", false, "write the result to the source file instead of standard output")
	cmd.Flags().BoolVarP(&me.diff, "diff", "d", false, "print a unified diff instead of the rewritten source")
	cmd.Args = cobra.MinimumNArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.out = cmd.OutOrStdout()
		return me.Run(cmd.Context(), args)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, files []string) error {
	res := &generate.Result{}
	var errs error

	for _, path := range files {
		change, err := me.rewrite(ctx, path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if change != nil {
			res.Merge(&generate.Result{Changes: []*generate.FileChange{change}})
		}
	}

	if errs != nil {
		return errs
	}

	writer := generate.NewWriter(me.fs, "")

	switch {
	case me.diff:
		text, err := writer.Diff(res)
		if err != nil {
			return err
		}
		fmt.Fprint(me.out, text)
		return nil
	case me.write:
		return writer.Apply(ctx, res)
	}

	return nil
}

// rewrite returns the change of one file, nil when it is already up to date.
// Without -w or -d the rewritten source is printed.
func (me *Handler) rewrite(ctx context.Context, path string) (*generate.FileChange, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Errorf("resolving %s: %w", path, err)
	}

	pkg, file, err := me.load(ctx, abs)
	if err != nil {
		return nil, err
	}

	out, err := attacher.New(consteval.New(pkg.Fset, pkg.Types, me.fs)).Rewrite(ctx, pkg.Fset, file)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("file", abs).Int("attached", out.Attached).Bool("changed", out.Changed).Msg("rewrote file")

	if !me.write && !me.diff {
		if _, err := me.out.Write(out.Src); err != nil {
			return nil, errors.Errorf("printing %s: %w", path, err)
		}
	}

	if !out.Changed {
		return nil, nil
	}
	return &generate.FileChange{Path: abs, Old: file.Src, New: out.Src}, nil
}

// load type checks the package of the file so that constants declared in
// its siblings resolve. Files outside of a module are checked on their own.
func (me *Handler) load(ctx context.Context, abs string) (*loader.Package, *loader.File, error) {
	pkgs, err := loader.Load(ctx, me.fs, filepath.Dir(abs), "file="+abs)
	if err == nil {
		for _, pkg := range pkgs {
			if file, ok := pkg.FileByPath(abs); ok {
				return pkg, file, nil
			}
		}
	}

	zerolog.Ctx(ctx).Debug().Err(err).Str("file", abs).Msg("checking file on its own")

	src, rerr := afero.ReadFile(me.fs, abs)
	if rerr != nil {
		return nil, nil, errors.Errorf("%w: %s: %v", diagnostic.ErrUnreadableFile, abs, rerr)
	}

	pkg, err := loader.FromSource(ctx, filepath.Dir(abs), "command-line-arguments", map[string][]byte{filepath.Base(abs): src})
	if err != nil {
		return nil, nil, err
	}
	return pkg, pkg.Files[0], nil
}
