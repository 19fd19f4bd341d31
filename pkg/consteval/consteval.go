// Package consteval reduces the expression of an attach directive to a single
// string at generation time.
//
// Expressions are Go constant expressions evaluated in the scope of the
// package holding the directive, extended with three builtins:
//
//	concat(args...)   concatenates constants of any basic kind
//	stringify(expr)   the source text of expr, unevaluated
//	include(path)     the contents of a text file, relative to the directive's file
//
// The builtins take precedence over package level declarations of the same name.
package consteval

import (
	"bytes"
	"context"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/doccomment/pkg/diagnostic"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/tools/go/ast/astutil"
)

const (
	builtinConcat    = "concat"
	builtinStringify = "stringify"
	builtinInclude   = "include"
)

// Evaluator evaluates computed strings against one package.
type Evaluator struct {
	fset *token.FileSet
	pkg  *types.Package
	fs   afero.Fs
}

// New returns an Evaluator for pkg. A nil pkg restricts expressions to the
// universe scope.
func New(fset *token.FileSet, pkg *types.Package, fs afero.Fs) *Evaluator {
	if fset == nil {
		fset = token.NewFileSet()
	}
	return &Evaluator{fset: fset, pkg: pkg, fs: fs}
}

// Eval reduces src to a string. dir is the directory of the file holding the
// expression; include paths are resolved against it.
func (e *Evaluator) Eval(ctx context.Context, src string, dir string) (string, error) {
	if src == "" {
		return "", errors.Errorf("%w: empty expression", diagnostic.ErrMalformedInvocation)
	}

	expr, err := parser.ParseExprFrom(e.fset, "", src, 0)
	if err != nil {
		return "", errors.Errorf("%w: parsing %q: %v", diagnostic.ErrMalformedInvocation, src, err)
	}

	expr, err = e.expandBuiltins(ctx, expr, dir)
	if err != nil {
		return "", err
	}

	val, _, err := e.constant(expr)
	if err != nil {
		return "", err
	}

	if val.Kind() != constant.String {
		return "", errors.Errorf("%w: %s is a %s constant, not a string", diagnostic.ErrNonConstantString, src, kindName(val.Kind()))
	}

	zerolog.Ctx(ctx).Debug().Str("expr", src).Int("len", len(constant.StringVal(val))).Msg("evaluated computed string")

	return constant.StringVal(val), nil
}

// expandBuiltins replaces every builtin call by the string literal it
// evaluates to. stringify is expanded on the way down so its argument is
// never evaluated; the others on the way up so their arguments are already
// literals.
func (e *Evaluator) expandBuiltins(ctx context.Context, expr ast.Expr, dir string) (ast.Expr, error) {
	var failed error

	pre := func(c *astutil.Cursor) bool {
		call, ok := c.Node().(*ast.CallExpr)
		if !ok || builtinName(call) != builtinStringify {
			return true
		}
		if len(call.Args) != 1 || call.Ellipsis.IsValid() {
			failed = errors.Errorf("%w: stringify takes exactly one argument", diagnostic.ErrMalformedInvocation)
			return false
		}
		c.Replace(stringLit(types.ExprString(call.Args[0])))
		return false
	}

	post := func(c *astutil.Cursor) bool {
		if failed != nil {
			return false
		}
		call, ok := c.Node().(*ast.CallExpr)
		if !ok {
			return true
		}

		var (
			s   string
			err error
		)
		switch builtinName(call) {
		case builtinConcat:
			s, err = e.concat(call)
		case builtinInclude:
			s, err = e.include(ctx, call, dir)
		default:
			return true
		}
		if err != nil {
			failed = err
			return false
		}
		c.Replace(stringLit(s))
		return true
	}

	out := astutil.Apply(expr, pre, post)
	if failed != nil {
		return nil, failed
	}

	return out.(ast.Expr), nil
}

func (e *Evaluator) concat(call *ast.CallExpr) (string, error) {
	if call.Ellipsis.IsValid() {
		return "", errors.Errorf("%w: concat does not accept a spread argument", diagnostic.ErrMalformedInvocation)
	}

	var out []byte
	for _, arg := range call.Args {
		val, typ, err := e.constant(arg)
		if err != nil {
			return "", err
		}
		out = append(out, format(val, typ)...)
	}
	return string(out), nil
}

func (e *Evaluator) include(ctx context.Context, call *ast.CallExpr, dir string) (string, error) {
	if len(call.Args) != 1 || call.Ellipsis.IsValid() {
		return "", errors.Errorf("%w: include takes exactly one argument", diagnostic.ErrMalformedInvocation)
	}

	val, _, err := e.constant(call.Args[0])
	if err != nil {
		return "", err
	}
	if val.Kind() != constant.String {
		return "", errors.Errorf("%w: include path %s is not a string", diagnostic.ErrNonConstantString, types.ExprString(call.Args[0]))
	}

	return ReadText(ctx, e.fs, Resolve(dir, constant.StringVal(val)))
}

// constant type checks expr in the package scope and returns its constant value.
func (e *Evaluator) constant(expr ast.Expr) (constant.Value, types.Type, error) {
	info := &types.Info{Types: map[ast.Expr]types.TypeAndValue{}}

	if err := types.CheckExpr(e.fset, e.pkg, token.NoPos, expr, info); err != nil {
		return nil, nil, errors.Errorf("%w: cannot evaluate %s: %v", diagnostic.ErrNonConstantString, types.ExprString(expr), stripPosition(err))
	}

	tv, ok := info.Types[expr]
	if !ok || tv.Value == nil {
		return nil, nil, errors.Errorf("%w: %s is not a compile-time constant", diagnostic.ErrNonConstantString, types.ExprString(expr))
	}

	return tv.Value, tv.Type, nil
}

var bom = []byte("\ufeff")

// Resolve returns path relative to dir unless it is absolute.
func Resolve(dir, path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// ReadText reads a whole file that must hold UTF-8 text fit for a Go
// comment. A leading byte order mark is dropped.
func ReadText(ctx context.Context, fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", errors.Errorf("%w: %s: %v", diagnostic.ErrUnreadableFile, path, err)
	}
	if !utf8.Valid(data) {
		return "", errors.Errorf("%w: %s is not valid UTF-8 text", diagnostic.ErrUnreadableFile, path)
	}

	if bytes.IndexByte(data, 0) >= 0 {
		return "", errors.Errorf("%w: %s holds a NUL byte", diagnostic.ErrUnreadableFile, path)
	}
	data = bytes.TrimPrefix(data, bom)
	if bytes.Contains(data, bom) {
		return "", errors.Errorf("%w: %s holds a byte order mark past its start", diagnostic.ErrUnreadableFile, path)
	}

	zerolog.Ctx(ctx).Debug().Str("path", path).Int("bytes", len(data)).Msg("included file")

	return string(data), nil
}

func builtinName(call *ast.CallExpr) string {
	id, ok := call.Fun.(*ast.Ident)
	if !ok {
		return ""
	}
	switch id.Name {
	case builtinConcat, builtinStringify, builtinInclude:
		return id.Name
	}
	return ""
}

func stringLit(s string) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(s)}
}

// format renders a constant the way concat joins it.
func format(val constant.Value, typ types.Type) string {
	switch val.Kind() {
	case constant.String:
		return constant.StringVal(val)
	case constant.Bool:
		return strconv.FormatBool(constant.BoolVal(val))
	case constant.Int:
		if b, ok := typ.(*types.Basic); ok && b.Kind() == types.UntypedRune {
			if r, exact := constant.Int64Val(val); exact {
				return string(rune(r))
			}
		}
		return val.ExactString()
	case constant.Float:
		f, _ := constant.Float64Val(val)
		return strconv.FormatFloat(f, 'g', -1, 64)
	default:
		return val.String()
	}
}

func kindName(k constant.Kind) string {
	switch k {
	case constant.Bool:
		return "bool"
	case constant.Int:
		return "integer"
	case constant.Float:
		return "float"
	case constant.Complex:
		return "complex"
	default:
		return "unknown"
	}
}

// stripPosition drops the meaningless position of the synthetic expression file.
func stripPosition(err error) string {
	var terr types.Error
	if errors.As(err, &terr) {
		return terr.Msg
	}
	return err.Error()
}
