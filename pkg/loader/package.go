package loader

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/tools/go/packages"
)

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedModule

// File is one parsed source file of a package.
type File struct {
	Path string
	Src  []byte
	AST  *ast.File
	// Generated is set for files carrying a "Code generated ... DO NOT EDIT." header.
	Generated bool
}

// Package is a type checked package whose files can be rewritten.
type Package struct {
	Name    string
	PkgPath string
	Dir     string
	Fset    *token.FileSet
	Files   []*File
	Types   *types.Package
}

// Load loads the packages matching patterns, relative to dir. Type errors are
// tolerated: generated files may not exist yet when doccomment runs.
func Load(ctx context.Context, fs afero.Fs, dir string, patterns ...string) ([]*Package, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	cfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     dir,
		Env:     append(os.Environ(), "GO111MODULE=on"),
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, errors.Errorf("failed to load packages %v: %w", patterns, err)
	}

	if len(pkgs) == 0 {
		return nil, errors.Errorf("no packages found in directory: %s", dir)
	}

	out := make([]*Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		zerolog.Ctx(ctx).Debug().Msgf("package: %s (path: %s)", pkg.Name, pkg.PkgPath)
		if len(pkg.Errors) > 0 {
			for _, perr := range pkg.Errors {
				zerolog.Ctx(ctx).Debug().Msgf("    - %v", perr)
			}
		}

		if len(pkg.CompiledGoFiles) == 0 {
			// a pattern matched a directory without Go files
			continue
		}

		if len(pkg.Syntax) != len(pkg.CompiledGoFiles) {
			return nil, errors.Errorf("package %s: %d files but %d syntax trees", pkg.PkgPath, len(pkg.CompiledGoFiles), len(pkg.Syntax))
		}

		p := &Package{
			Name:    pkg.Name,
			PkgPath: pkg.PkgPath,
			Dir:     filepath.Dir(pkg.CompiledGoFiles[0]),
			Fset:    pkg.Fset,
			Types:   pkg.Types,
		}

		for i, path := range pkg.CompiledGoFiles {
			src, err := afero.ReadFile(fs, path)
			if err != nil {
				return nil, errors.Errorf("failed to read file: %w", err)
			}
			p.Files = append(p.Files, &File{
				Path:      path,
				Src:       src,
				AST:       pkg.Syntax[i],
				Generated: ast.IsGenerated(pkg.Syntax[i]),
			})
		}

		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PkgPath < out[j].PkgPath })

	return out, nil
}

// FromSource parses and type checks one package held in memory. srcs maps
// file names, relative to dir, to their content.
func FromSource(ctx context.Context, dir, pkgPath string, srcs map[string][]byte) (*Package, error) {
	if len(srcs) == 0 {
		return nil, errors.Errorf("no files given for package %s", pkgPath)
	}

	names := make([]string, 0, len(srcs))
	for name := range srcs {
		names = append(names, name)
	}
	sort.Strings(names)

	p := &Package{
		PkgPath: pkgPath,
		Dir:     dir,
		Fset:    token.NewFileSet(),
	}

	asts := make([]*ast.File, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		file, err := parser.ParseFile(p.Fset, path, srcs[name], parser.ParseComments|parser.AllErrors)
		if err != nil {
			return nil, errors.Errorf("failed to parse %s: %w", path, err)
		}
		if p.Name == "" {
			p.Name = file.Name.Name
		} else if p.Name != file.Name.Name {
			return nil, errors.Errorf("found packages %s and %s in %s", p.Name, file.Name.Name, dir)
		}
		asts = append(asts, file)
		p.Files = append(p.Files, &File{
			Path:      path,
			Src:       srcs[name],
			AST:       file,
			Generated: ast.IsGenerated(file),
		})
	}

	conf := &types.Config{
		Importer: importer.Default(),
		Error: func(err error) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("type error")
		},
	}

	// with an Error handler set, Check keeps going and the package is usable
	p.Types, _ = conf.Check(pkgPath, p.Fset, asts, nil)

	return p, nil
}

// FileByPath returns the file of the package at path.
func (p *Package) FileByPath(path string) (*File, bool) {
	for _, f := range p.Files {
		if f.Path == path {
			return f, true
		}
	}
	return nil, false
}
