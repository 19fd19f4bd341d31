// Package attacher rewrites Go source so that every //doccomment:attach
// directive becomes doc comment text on the declaration it belongs to.
//
// The rewrite is a byte level splice: only the doc comment groups holding a
// directive change, everything else in the file is emitted as it was read.
// Within such a group the generator owns the prose. The evaluated strings are
// rendered first, in directive order, then a bare "//" line, then the group's
// directives (doccomment's and any others) in their original order. Top-level
// prose is printed the way gofmt reformats doc comments, so gofmt leaves the
// output alone and running the rewrite again yields the same bytes.
package attacher

import (
	"bytes"
	"context"
	"go/ast"
	"go/token"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/doccomment/pkg/consteval"
	"github.com/walteh/doccomment/pkg/diagnostic"
	"github.com/walteh/doccomment/pkg/directive"
	"github.com/walteh/doccomment/pkg/doctext"
	"github.com/walteh/doccomment/pkg/loader"
	"github.com/walteh/doccomment/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// Attacher is the Doc-Attacher.
type Attacher struct {
	eval *consteval.Evaluator
}

func New(eval *consteval.Evaluator) *Attacher {
	return &Attacher{eval: eval}
}

// Result is the outcome of rewriting one file.
type Result struct {
	Src      []byte
	Changed  bool
	Attached int
}

type edit struct {
	start, end int
	text       string
}

// Rewrite returns the source of file with every attach directive applied.
// All failures of the file are reported together; on failure no source is
// returned.
func (a *Attacher) Rewrite(ctx context.Context, fset *token.FileSet, file *loader.File) (*Result, error) {
	invs, diags := directive.Scan(fset, file.AST, file.Src)
	attaches := directive.Filter(invs, directive.KindAttach)

	if len(attaches) == 0 && len(diags) == 0 {
		return &Result{Src: file.Src}, nil
	}

	byGroup := map[*ast.CommentGroup][]*directive.Invocation{}
	for _, inv := range attaches {
		byGroup[inv.Group] = append(byGroup[inv.Group], inv)
	}

	dir := filepath.Dir(file.Path)
	var edits []edit

	for _, group := range DocGroups(file.AST) {
		groupInvs, ok := byGroup[group]
		if !ok {
			continue
		}
		delete(byGroup, group)

		var texts []string
		failed := false
		for _, inv := range groupInvs {
			text, err := a.eval.Eval(ctx, inv.Args, dir)
			if err != nil {
				diags = append(diags, diagnostic.At(fset, inv.Pos(), file.Src, err))
				failed = true
				continue
			}
			texts = append(texts, text)
		}
		if failed {
			continue
		}

		e, err := replaceGroup(fset, file.Src, group, texts)
		if err != nil {
			diags = append(diags, diagnostic.At(fset, group.Pos(), file.Src, err))
			continue
		}
		edits = append(edits, e)

		zerolog.Ctx(ctx).Debug().
			Str("file", file.Path).
			Int("line", fset.Position(group.End()).Line+1).
			Int("directives", len(groupInvs)).
			Msg("attached doc comment")
	}

	// whatever is left is not the doc comment of any declaration
	for _, groupInvs := range byGroup {
		for _, inv := range groupInvs {
			diags = append(diags, diagnostic.At(fset, inv.Pos(), file.Src,
				errors.Errorf("%w: nothing to document, the directive must be part of a declaration's doc comment", diagnostic.ErrMalformedInvocation)))
		}
	}

	if err := diags.Err(); err != nil {
		return nil, err
	}

	out := apply(file.Src, edits)

	return &Result{
		Src:      out,
		Changed:  !bytes.Equal(out, file.Src),
		Attached: len(edits),
	}, nil
}

// DocGroups returns the doc comment groups of every declaration of file that
// can carry documentation: the package clause, functions, general
// declarations and their specs, struct fields and interface methods at any
// nesting depth. Function bodies are not entered.
func DocGroups(file *ast.File) []*ast.CommentGroup {
	var groups []*ast.CommentGroup
	seen := map[*ast.CommentGroup]bool{}
	add := func(g *ast.CommentGroup) {
		if g != nil && !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.File:
			add(n.Doc)
		case *ast.FuncDecl:
			add(n.Doc)
			// the signature may hold struct types, the body is not a declaration site
			ast.Inspect(n.Type, func(m ast.Node) bool {
				if f, ok := m.(*ast.Field); ok {
					add(f.Doc)
				}
				return true
			})
			if n.Recv != nil {
				for _, f := range n.Recv.List {
					add(f.Doc)
				}
			}
			return false
		case *ast.FuncLit, *ast.BlockStmt:
			return false
		case *ast.GenDecl:
			add(n.Doc)
		case *ast.TypeSpec:
			add(n.Doc)
		case *ast.ValueSpec:
			add(n.Doc)
		case *ast.ImportSpec:
			add(n.Doc)
		case *ast.Field:
			add(n.Doc)
		}
		return true
	})

	sort.Slice(groups, func(i, j int) bool { return groups[i].Pos() < groups[j].Pos() })

	return groups
}

func replaceGroup(fset *token.FileSet, src []byte, group *ast.CommentGroup, texts []string) (edit, error) {
	start := fset.Position(group.Pos()).Offset
	end := fset.Position(group.End()).Offset
	if start < 0 || end > len(src) || start > end {
		return edit{}, errors.Errorf("comment group at %d:%d lies outside the file", start, end)
	}

	var prose []string
	for _, text := range texts {
		prose = append(prose, doctext.Comment(text)...)
	}

	var directives []string
	for _, c := range group.List {
		if directive.IsDirective(c.Text) {
			directives = append(directives, c.Text)
		}
	}

	indent := position.Indent(src, start)

	lines := prose
	if indent == "" && position.LineStart(src, start) == start {
		lines = doctext.Format(prose)
	}
	if len(prose) > 0 && len(directives) > 0 {
		lines = append(lines, "//")
	}
	lines = append(lines, directives...)

	return edit{
		start: start,
		end:   end,
		text:  strings.Join(lines, "\n"+indent),
	}, nil
}

func apply(src []byte, edits []edit) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var buf bytes.Buffer
	buf.Grow(len(src))

	last := 0
	for _, e := range edits {
		buf.Write(src[last:e.start])
		buf.WriteString(e.text)
		last = e.end
	}
	buf.Write(src[last:])

	return buf.Bytes()
}
