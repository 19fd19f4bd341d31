// Package generate runs both generators over loaded packages and computes
// the resulting file changes.
package generate

import (
	"bytes"
	"context"
	"go/token"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/doccomment/pkg/attacher"
	"github.com/walteh/doccomment/pkg/config"
	"github.com/walteh/doccomment/pkg/consteval"
	"github.com/walteh/doccomment/pkg/diagnostic"
	"github.com/walteh/doccomment/pkg/directive"
	"github.com/walteh/doccomment/pkg/doctest"
	"github.com/walteh/doccomment/pkg/loader"
	"gitlab.com/tozd/go/errors"
)

const generatedGlob = "{*_doctest_gen.go,*_doctest_gen_test.go}"

// FileChange is a pending write or removal of one file.
type FileChange struct {
	Path string
	// Old is nil when the file does not exist yet.
	Old []byte
	New []byte
	// Generated marks files fully produced by doccomment, as opposed to
	// rewritten source files.
	Generated bool
	Delete    bool
}

// Result lists the changes of a run, sorted by path.
type Result struct {
	Changes []*FileChange
}

// UpToDate reports whether nothing would change on disk.
func (r *Result) UpToDate() bool {
	return r == nil || len(r.Changes) == 0
}

// Merge appends the changes of other.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Changes = append(r.Changes, other.Changes...)
	sort.SliceStable(r.Changes, func(i, j int) bool {
		return r.Changes[i].Path < r.Changes[j].Path
	})
}

// Generator processes packages according to a configuration.
type Generator struct {
	fs  afero.Fs
	cfg *config.Config
}

func New(fs afero.Fs, cfg *config.Config) *Generator {
	return &Generator{fs: fs, cfg: cfg}
}

// Run loads the packages matching patterns relative to dir and processes
// every package not excluded by the configuration. Changes of packages that
// succeeded are returned alongside the aggregated error of those that did not.
func (g *Generator) Run(ctx context.Context, dir string, patterns ...string) (*Result, error) {
	pkgs, err := loader.Load(ctx, g.fs, dir, patterns...)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var merr *multierror.Error

	for _, pkg := range pkgs {
		if g.cfg.Excluded(pkg.Dir) {
			zerolog.Ctx(ctx).Debug().Str("package", pkg.PkgPath).Msg("excluded by config")
			continue
		}

		pres, err := g.Package(ctx, pkg)
		if err != nil {
			merr = diagnostic.Append(merr, err)
			continue
		}
		res.Merge(pres)
	}

	return res, merr.ErrorOrNil()
}

type pendingDoctest struct {
	inv *doctest.Invocation
	// origin is the directive the invocation comes from, nil for config doctests.
	origin *directive.Invocation
	file   *loader.File
}

// Package computes the changes for one package: rewritten doc comments of
// its source files, synthesized doctest files and, when pruning, removals of
// generated files nothing produces anymore. A package with any error yields
// no changes.
func (g *Generator) Package(ctx context.Context, pkg *loader.Package) (*Result, error) {
	log := zerolog.Ctx(ctx).With().Str("package", pkg.PkgPath).Logger()
	ctx = log.WithContext(ctx)

	var merr *multierror.Error
	res := &Result{}

	att := attacher.New(consteval.New(pkg.Fset, pkg.Types, g.fs))

	var pending []*pendingDoctest

	for _, file := range pkg.Files {
		if file.Generated {
			continue
		}

		out, err := att.Rewrite(ctx, pkg.Fset, file)
		if err != nil {
			merr = diagnostic.Append(merr, err)
		} else if out.Changed {
			res.Changes = append(res.Changes, &FileChange{Path: file.Path, Old: file.Src, New: out.Src})
		}

		// malformed directives are already reported by the rewrite
		invs, _ := directive.Scan(pkg.Fset, file.AST, file.Src)
		for _, inv := range directive.Filter(invs, directive.KindDoctest) {
			dt, err := doctest.ParseArgs(inv.Args)
			if err != nil {
				merr = diagnostic.Append(merr, diagnostic.At(pkg.Fset, inv.Pos(), file.Src, err))
				continue
			}
			pending = append(pending, &pendingDoctest{inv: dt, origin: inv, file: file})
		}
	}

	for _, d := range g.cfg.DoctestsFor(pkg.Dir) {
		pending = append(pending, &pendingDoctest{inv: d.Invocation(pkg.Dir, g.cfg.Dir)})
	}

	colliding, errs := g.collisions(pkg, pending)
	merr = diagnostic.Append(merr, errs...)

	syn := doctest.New(g.fs)
	produced := map[string]bool{}

	for _, p := range pending {
		if colliding[p] {
			continue
		}

		outs, err := syn.Synthesize(ctx, p.inv, doctest.Options{
			Package:        pkg.Name,
			Dir:            pkg.Dir,
			ExamplePackage: doctest.ExamplePackage(g.cfg.ExamplePackage),
			FixImports:     g.cfg.ShouldFixImports(),
		})
		if err != nil {
			merr = diagnostic.Append(merr, p.locate(pkg.Fset, err))
			continue
		}

		for _, out := range outs {
			produced[out.Path] = true
		}

		changes, err := Outputs(g.fs, outs)
		if err != nil {
			merr = diagnostic.Append(merr, err)
			continue
		}
		res.Changes = append(res.Changes, changes...)
	}

	if g.cfg.Prune {
		stale, err := g.stale(pkg.Dir, produced)
		if err != nil {
			merr = diagnostic.Append(merr, err)
		}
		res.Changes = append(res.Changes, stale...)
	}

	if merr != nil {
		return nil, merr
	}

	sort.SliceStable(res.Changes, func(i, j int) bool {
		return res.Changes[i].Path < res.Changes[j].Path
	})

	log.Debug().Int("changes", len(res.Changes)).Int("doctests", len(pending)).Msg("processed package")

	return res, nil
}

func (p *pendingDoctest) locate(fset *token.FileSet, err error) error {
	if p.origin == nil {
		return errors.Errorf("config doctest %q: %w", p.inv.ContainerName(), err)
	}
	return diagnostic.At(fset, p.origin.Pos(), p.file.Src, err)
}

// collisions reports container names declared twice, either by two
// invocations or by an invocation and a declaration of the package. Names
// differing only in the case of their first letter collide too, since their
// blocks become the same Example and Test functions.
// Declarations in files generated by doccomment do not count.
func (g *Generator) collisions(pkg *loader.Package, pending []*pendingDoctest) (map[*pendingDoctest]bool, []error) {
	var errs []error
	colliding := map[*pendingDoctest]bool{}
	seen := map[string]*pendingDoctest{}

	for _, p := range pending {
		name := p.inv.ContainerName()
		stem := doctest.Stem(name)

		if prev, ok := seen[stem]; ok {
			colliding[p] = true
			if prevName := prev.inv.ContainerName(); prevName != name {
				errs = append(errs, p.locate(pkg.Fset, errors.Errorf("%w: doctest container %q generates the same functions as %q from %s",
					diagnostic.ErrNameCollision, name, prevName, prev.describe(pkg.Fset))))
				continue
			}
			errs = append(errs, p.locate(pkg.Fset, errors.Errorf("%w: doctest container %q is already synthesized by %s",
				diagnostic.ErrNameCollision, name, prev.describe(pkg.Fset))))
			continue
		}
		seen[stem] = p

		if pkg.Types == nil {
			continue
		}
		obj := pkg.Types.Scope().Lookup(name)
		if obj == nil {
			continue
		}
		declared := pkg.Fset.Position(obj.Pos())
		if doctest.IsGeneratedName(filepath.Base(declared.Filename)) {
			continue
		}
		colliding[p] = true
		errs = append(errs, p.locate(pkg.Fset, errors.Errorf("%w: doctest container %q is already declared at %s",
			diagnostic.ErrNameCollision, name, declared)))
	}

	return colliding, errs
}

func (p *pendingDoctest) describe(fset *token.FileSet) string {
	if p.origin == nil {
		return "the config file"
	}
	return fset.Position(p.origin.Pos()).String()
}

// Outputs compares synthesized files with what is on disk and returns the
// changes needed to bring the disk up to date.
func Outputs(fs afero.Fs, outs []*doctest.Output) ([]*FileChange, error) {
	var changes []*FileChange
	for _, out := range outs {
		old, err := read(fs, out.Path)
		if err != nil {
			return nil, err
		}
		if old != nil && bytes.Equal(old, out.Content) {
			continue
		}
		changes = append(changes, &FileChange{Path: out.Path, Old: old, New: out.Content, Generated: true})
	}
	return changes, nil
}

func read(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// stale returns removals for generated doctest files in dir that this run
// did not produce. Files not carrying doccomment's header are left alone.
func (g *Generator) stale(dir string, produced map[string]bool) ([]*FileChange, error) {
	entries, err := afero.ReadDir(g.fs, dir)
	if err != nil {
		return nil, errors.Errorf("listing %s: %w", dir, err)
	}

	var out []*FileChange
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := doublestar.Match(generatedGlob, entry.Name())
		if err != nil {
			return nil, errors.Errorf("matching %s: %w", entry.Name(), err)
		}
		path := filepath.Join(dir, entry.Name())
		if !ok || produced[path] {
			continue
		}

		data, err := afero.ReadFile(g.fs, path)
		if err != nil {
			return nil, errors.Errorf("reading %s: %w", path, err)
		}
		if !bytes.HasPrefix(data, []byte(doctest.GeneratedPrefix)) {
			continue
		}
		out = append(out, &FileChange{Path: path, Old: data, Generated: true, Delete: true})
	}
	return out, nil
}
