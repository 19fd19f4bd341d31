package doctest

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"regexp"
	"strconv"
	"strings"

	"github.com/walteh/doccomment/pkg/diagnostic"
	"gitlab.com/tozd/go/errors"
)

type importSpec struct {
	name string
	path string
}

func (s importSpec) String() string {
	if s.name == "" {
		return strconv.Quote(s.path)
	}
	return s.name + " " + strconv.Quote(s.path)
}

// example is a runnable block split into the parts that live at file level
// and the statements that form the function running it.
type example struct {
	block   Block
	imports []importSpec
	decls   []string
	body    string
	// output is set when the body ends with an output comment.
	output bool
}

var outputComment = regexp.MustCompile(`(?i)^[[:space:]]*(unordered )?output:`)

func parseExample(source string, b Block) (*example, error) {
	ex, err := splitExample(source, b)
	if err != nil {
		return nil, err
	}
	ex.output = hasOutput(ex.body)
	return ex, nil
}

// hasOutput reports whether the last comment of body is an output comment,
// the rule go test uses to decide whether an example is run.
func hasOutput(body string) bool {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", "package p\n\nfunc _() {\n"+body+"\n}\n", parser.ParseComments)
	if err != nil || len(f.Comments) == 0 {
		return false
	}
	return outputComment.MatchString(f.Comments[len(f.Comments)-1].Text())
}

func splitExample(source string, b Block) (*example, error) {
	if isProgram(b.Code) {
		return parseProgram(source, b)
	}

	head, body, err := splitImports(b.Code)
	if err != nil {
		return nil, errors.Errorf("%w: %s:%d: %v", diagnostic.ErrMalformedInvocation, source, b.Line, err)
	}

	ex := &example{block: b, body: body}

	if head != "" {
		ex.imports, err = parseImports(head)
		if err != nil {
			return nil, errors.Errorf("%w: %s:%d: %v", diagnostic.ErrMalformedInvocation, source, b.Line, err)
		}
	}

	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "", "package p\n\nfunc _() {\n"+body+"\n}\n", 0); err != nil {
		return nil, errors.Errorf("%w: %s:%d: code block does not parse: %v", diagnostic.ErrMalformedInvocation, source, b.Line, err)
	}

	return ex, nil
}

// isProgram reports whether code starts with a package clause.
func isProgram(code string) bool {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(code))

	var s scanner.Scanner
	s.Init(file, []byte(code), nil, 0)

	_, tok, _ := s.Scan()
	return tok == token.PACKAGE
}

// parseProgram turns a complete program into an example: main's body is the
// example, every other declaration moves to file level.
func parseProgram(source string, b Block) (*example, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", b.Code, parser.ParseComments)
	if err != nil {
		return nil, errors.Errorf("%w: %s:%d: code block does not parse: %v", diagnostic.ErrMalformedInvocation, source, b.Line, err)
	}

	offset := func(p token.Pos) int { return fset.Position(p).Offset }

	ex := &example{block: b}
	for _, spec := range f.Imports {
		ex.imports = append(ex.imports, toImportSpec(spec))
	}

	foundMain := false
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			ex.decls = append(ex.decls, b.Code[offset(declStart(d.Doc, d.Pos())):offset(d.End())])
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.Name == "main" && d.Body != nil {
				foundMain = true
				ex.body = b.Code[offset(d.Body.Lbrace)+1 : offset(d.Body.Rbrace)]
				continue
			}
			ex.decls = append(ex.decls, b.Code[offset(declStart(d.Doc, d.Pos())):offset(d.End())])
		}
	}

	if !foundMain {
		return nil, errors.Errorf("%w: %s:%d: program has no main function", diagnostic.ErrMalformedInvocation, source, b.Line)
	}

	return ex, nil
}

func declStart(doc *ast.CommentGroup, pos token.Pos) token.Pos {
	if doc != nil {
		return doc.Pos()
	}
	return pos
}

// splitImports separates the leading import declarations of a snippet from
// the statements following them.
func splitImports(code string) (string, string, error) {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(code))

	var (
		s    scanner.Scanner
		serr error
	)
	s.Init(file, []byte(code), func(_ token.Position, msg string) {
		if serr == nil {
			serr = errors.New(msg)
		}
	}, 0)

	end := 0
	for {
		_, tok, _ := s.Scan()
		for tok == token.SEMICOLON {
			_, tok, _ = s.Scan()
		}
		if tok != token.IMPORT {
			break
		}

		pos, tok, lit := s.Scan()
		if tok == token.LPAREN {
			for tok != token.RPAREN && tok != token.EOF {
				pos, tok, lit = s.Scan()
			}
		} else {
			for tok != token.STRING && tok != token.EOF && tok != token.SEMICOLON {
				pos, tok, lit = s.Scan()
			}
		}

		switch tok {
		case token.RPAREN:
			end = file.Offset(pos) + 1
		case token.STRING:
			end = file.Offset(pos) + len(lit)
		default:
			return "", "", errors.New("unterminated import declaration")
		}
	}

	if serr != nil {
		return "", "", serr
	}

	return code[:end], strings.TrimPrefix(code[end:], "\n"), nil
}

func parseImports(head string) ([]importSpec, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", "package p\n"+head+"\n", parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	specs := make([]importSpec, 0, len(f.Imports))
	for _, spec := range f.Imports {
		specs = append(specs, toImportSpec(spec))
	}
	return specs, nil
}

func toImportSpec(spec *ast.ImportSpec) importSpec {
	path, _ := strconv.Unquote(spec.Path.Value)
	out := importSpec{path: path}
	if spec.Name != nil {
		out.name = spec.Name.Name
	}
	return out
}
