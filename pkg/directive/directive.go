// Package directive finds doccomment invocations in Go source.
//
// An invocation is a directive comment of the form
//
//	//doccomment:<verb> <arguments>
//
// Being a directive, it is hidden from go doc output.
package directive

import (
	"go/ast"
	"go/token"
	"sort"
	"strings"

	"github.com/walteh/doccomment/pkg/diagnostic"
	"gitlab.com/tozd/go/errors"
)

const Prefix = "//doccomment:"

type Kind string

const (
	KindAttach  Kind = "attach"
	KindDoctest Kind = "doctest"
)

// Invocation is a single call site.
type Invocation struct {
	Kind    Kind
	Args    string
	Comment *ast.Comment
	Group   *ast.CommentGroup
}

func (inv *Invocation) Pos() token.Pos {
	return inv.Comment.Pos()
}

// Parse reports whether c is a doccomment directive and, if so, returns the
// invocation it holds.
func Parse(c *ast.Comment) (*Invocation, bool, error) {
	if !strings.HasPrefix(c.Text, Prefix) {
		return nil, false, nil
	}

	rest := strings.TrimPrefix(c.Text, Prefix)
	verb, args, _ := strings.Cut(rest, " ")
	args = strings.TrimSpace(args)

	switch Kind(verb) {
	case KindAttach, KindDoctest:
	default:
		return nil, true, errors.Errorf("%w: unknown directive %q", diagnostic.ErrMalformedInvocation, Prefix+verb)
	}

	if args == "" {
		return nil, true, errors.Errorf("%w: %s requires arguments", diagnostic.ErrMalformedInvocation, Prefix+verb)
	}

	return &Invocation{Kind: Kind(verb), Args: args, Comment: c}, true, nil
}

// Scan returns the invocations of file in source order. Malformed directives
// are reported as diagnostics and skipped.
func Scan(fset *token.FileSet, file *ast.File, src []byte) ([]*Invocation, diagnostic.Diagnostics) {
	var (
		invs  []*Invocation
		diags diagnostic.Diagnostics
	)

	for _, group := range file.Comments {
		for _, c := range group.List {
			inv, ok, err := Parse(c)
			if !ok {
				continue
			}
			if err != nil {
				diags = append(diags, diagnostic.At(fset, c.Pos(), src, err))
				continue
			}
			inv.Group = group
			invs = append(invs, inv)
		}
	}

	sort.SliceStable(invs, func(i, j int) bool { return invs[i].Pos() < invs[j].Pos() })

	return invs, diags
}

// Filter returns the invocations of the given kind.
func Filter(invs []*Invocation, kind Kind) []*Invocation {
	var out []*Invocation
	for _, inv := range invs {
		if inv.Kind == kind {
			out = append(out, inv)
		}
	}
	return out
}

// IsDirective reports whether a line comment is a directive in the sense of
// go/ast: //line, //extern, //export or //[a-z0-9]+:[a-z0-9].
func IsDirective(text string) bool {
	c, ok := strings.CutPrefix(text, "//")
	if !ok {
		return false
	}
	for _, p := range []string{"line ", "extern ", "export "} {
		if strings.HasPrefix(c, p) {
			return true
		}
	}

	colon := strings.Index(c, ":")
	if colon <= 0 || colon+1 >= len(c) {
		return false
	}
	for i := 0; i <= colon+1; i++ {
		if i == colon {
			continue
		}
		b := c[i]
		if !('a' <= b && b <= 'z' || '0' <= b && b <= '9') {
			return false
		}
	}
	return true
}
