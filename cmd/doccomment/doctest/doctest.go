package doctest

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/doccomment/pkg/doctest"
	"github.com/walteh/doccomment/pkg/generate"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	fs  afero.Fs
	out io.Writer

	name           string
	testOnly       bool
	build          string
	dir            string
	pkg            string
	examplePackage string
	fixImports     bool
	diff           bool
}

// NewDoctestCommand is meant for go:generate lines such as
//
//	//go:generate doccomment doctest ../README.md --name readme
func NewDoctestCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "doctest <path>",
		Short: "synthesize a doc container and examples from a text file",
	}

	cmd.Flags().StringVar(&me.name, "name", "", "name of the container type (default \""+doctest.DefaultName+"\")")
	cmd.Flags().BoolVar(&me.testOnly, "testonly", false, "place the container in the test file")
	cmd.Flags().StringVar(&me.build, "build", "", "build constraint expression for the generated files")
	cmd.Flags().StringVar(&me.dir, "dir", ".", "package directory the files are written to")
	cmd.Flags().StringVar(&me.pkg, "package", os.Getenv("GOPACKAGE"), "package name (default $GOPACKAGE or the package declared in --dir)")
	cmd.Flags().StringVar(&me.examplePackage, "example-package", string(doctest.External), "package the examples are compiled in: external or internal")
	cmd.Flags().BoolVar(&me.fixImports, "fix-imports", true, "add missing imports to the examples")
	cmd.Flags().BoolVar(&me.diff, "diff", false, "print a unified diff instead of writing files")
	cmd.Args = cobra.ExactArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.out = cmd.OutOrStdout()
		return me.Run(cmd.Context(), args[0])
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, path string) error {
	dir, err := filepath.Abs(me.dir)
	if err != nil {
		return errors.Errorf("resolving %s: %w", me.dir, err)
	}

	pkg := me.pkg
	if pkg == "" {
		pkg, err = me.packageName(dir)
		if err != nil {
			return err
		}
	}

	inv := &doctest.Invocation{
		Path:     filepath.ToSlash(path),
		Name:     me.name,
		TestOnly: me.testOnly,
		Build:    me.build,
	}

	outs, err := doctest.New(me.fs).Synthesize(ctx, inv, doctest.Options{
		Package:        pkg,
		Dir:            dir,
		ExamplePackage: doctest.ExamplePackage(me.examplePackage),
		FixImports:     me.fixImports,
	})
	if err != nil {
		return err
	}

	changes, err := generate.Outputs(me.fs, outs)
	if err != nil {
		return err
	}
	res := &generate.Result{Changes: changes}

	writer := generate.NewWriter(me.fs, dir)
	if me.diff {
		text, err := writer.Diff(res)
		if err != nil {
			return err
		}
		fmt.Fprint(me.out, text)
		return nil
	}

	return writer.Apply(ctx, res)
}

// packageName reads the package clause of the first non-test Go file in dir.
func (me *Handler) packageName(dir string) (string, error) {
	entries, err := afero.ReadDir(me.fs, dir)
	if err != nil {
		return "", errors.Errorf("listing %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		src, err := afero.ReadFile(me.fs, path)
		if err != nil {
			return "", errors.Errorf("reading %s: %w", path, err)
		}
		f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.PackageClauseOnly)
		if err != nil {
			continue
		}
		return f.Name.Name, nil
	}

	return "", errors.Errorf("no Go package in %s, set --package", dir)
}
