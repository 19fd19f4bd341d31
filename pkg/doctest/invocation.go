package doctest

import (
	"go/build/constraint"
	"go/scanner"
	"go/token"
	"strconv"

	"github.com/walteh/doccomment/pkg/diagnostic"
	"gitlab.com/tozd/go/errors"
)

// DefaultName is the reserved container name used when an invocation does
// not name one.
const DefaultName = "doctest"

const (
	keywordTestOnly = "testonly"
	keywordBuild    = "build"
)

// Invocation references a text file whose code blocks become examples.
type Invocation struct {
	// Path of the text file, relative to the directory of the invoking file.
	Path string
	// Name of the synthesized container.
	Name string
	// TestOnly places the container in the test file, so it only exists
	// while tests are compiled.
	TestOnly bool
	// Build is a build constraint expression forwarded to the generated files.
	Build string
}

// ParseArgs parses the arguments of a doctest directive:
//
//	"path" [name] [testonly] [build="expr"]
func ParseArgs(args string) (*Invocation, error) {
	toks, err := tokenize(args)
	if err != nil {
		return nil, err
	}

	if len(toks) == 0 || toks[0].tok != token.STRING {
		return nil, errors.Errorf("%w: doctest expects a quoted path first, got %q", diagnostic.ErrMalformedInvocation, args)
	}

	path, err := strconv.Unquote(toks[0].lit)
	if err != nil {
		return nil, errors.Errorf("%w: invalid path literal %s", diagnostic.ErrMalformedInvocation, toks[0].lit)
	}

	inv := &Invocation{Path: path}

	for i := 1; i < len(toks); i++ {
		t := toks[i]
		if t.tok != token.IDENT {
			return nil, errors.Errorf("%w: unexpected %q in doctest arguments", diagnostic.ErrMalformedInvocation, t.text())
		}

		switch t.lit {
		case keywordTestOnly:
			inv.TestOnly = true
		case keywordBuild:
			if i+2 >= len(toks) || toks[i+1].tok != token.ASSIGN || toks[i+2].tok != token.STRING {
				return nil, errors.Errorf("%w: build expects build=\"expr\"", diagnostic.ErrMalformedInvocation)
			}
			expr, err := strconv.Unquote(toks[i+2].lit)
			if err != nil {
				return nil, errors.Errorf("%w: invalid build literal %s", diagnostic.ErrMalformedInvocation, toks[i+2].lit)
			}
			inv.Build = expr
			i += 2
		default:
			if inv.Name != "" || i != 1 {
				return nil, errors.Errorf("%w: unexpected %q in doctest arguments", diagnostic.ErrMalformedInvocation, t.lit)
			}
			inv.Name = t.lit
		}
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	return inv, nil
}

// Validate checks the name and the build constraint.
func (inv *Invocation) Validate() error {
	if inv.Path == "" {
		return errors.Errorf("%w: empty path", diagnostic.ErrMalformedInvocation)
	}
	if inv.Name != "" && (!token.IsIdentifier(inv.Name) || inv.Name == "_") {
		return errors.Errorf("%w: %q is not a valid identifier", diagnostic.ErrMalformedInvocation, inv.Name)
	}
	if inv.Build != "" {
		if _, err := constraint.Parse("//go:build " + inv.Build); err != nil {
			return errors.Errorf("%w: invalid build constraint %q: %v", diagnostic.ErrMalformedInvocation, inv.Build, err)
		}
	}
	return nil
}

// ContainerName is the identifier of the synthesized container.
func (inv *Invocation) ContainerName() string {
	if inv.Name == "" {
		return DefaultName
	}
	return inv.Name
}

type tokenLit struct {
	tok token.Token
	lit string
}

func (t tokenLit) text() string {
	if t.lit != "" {
		return t.lit
	}
	return t.tok.String()
}

func tokenize(args string) ([]tokenLit, error) {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(args))

	var (
		s    scanner.Scanner
		serr error
	)
	s.Init(file, []byte(args), func(pos token.Position, msg string) {
		if serr == nil {
			serr = errors.Errorf("%w: %s in %q", diagnostic.ErrMalformedInvocation, msg, args)
		}
	}, 0)

	var toks []tokenLit
	for {
		_, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		// automatic semicolon at the end of the line
		if tok == token.SEMICOLON && lit == "\n" {
			continue
		}
		toks = append(toks, tokenLit{tok: tok, lit: lit})
	}

	if serr != nil {
		return nil, serr
	}
	return toks, nil
}
