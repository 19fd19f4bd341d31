// Package doctest turns a text file, typically a README, into Go examples.
//
// For an invocation it synthesizes an otherwise empty container type whose
// doc comment is the file's text, line for line as gofmt prints it, and a
// test file with one function per runnable fenced Go block. A block ending
// in an output comment becomes an Example whose output go test checks, any
// other block becomes a Test so a panic fails the run.
package doctest

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/doccomment/pkg/consteval"
	"github.com/walteh/doccomment/pkg/diagnostic"
	"github.com/walteh/doccomment/pkg/doctext"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/tools/imports"
)

// ExamplePackage selects the package the examples are compiled in.
type ExamplePackage string

const (
	// External compiles examples in the "_test" package, the way a user of
	// the package sees it.
	External ExamplePackage = "external"
	Internal ExamplePackage = "internal"
)

func (p ExamplePackage) Validate() error {
	switch p {
	case External, Internal:
		return nil
	}
	return errors.Errorf("unknown example package %q, want %q or %q", p, External, Internal)
}

const (
	containerSuffix = "_doctest_gen.go"
	examplesSuffix  = "_doctest_gen_test.go"

	// GeneratedPrefix starts the first line of every synthesized file.
	GeneratedPrefix = "// Code generated by doccomment"
)

// ContainerFile returns the base name of the file holding the container of name.
func ContainerFile(name string) string {
	return name + containerSuffix
}

// ExamplesFile returns the base name of the test file holding the examples of name.
func ExamplesFile(name string) string {
	return name + examplesSuffix
}

// IsGeneratedName reports whether base looks like a file this package writes.
func IsGeneratedName(base string) bool {
	return strings.HasSuffix(base, containerSuffix) || strings.HasSuffix(base, examplesSuffix)
}

// Options describe the package the files are synthesized for.
type Options struct {
	// Package is the name of the package in Dir.
	Package string
	// Dir is the directory of the invoking file. The referenced path is
	// resolved against it and the files are written to it.
	Dir            string
	ExamplePackage ExamplePackage
	// FixImports adds missing imports to the examples file with goimports.
	FixImports bool
}

// Output is one synthesized file.
type Output struct {
	Path    string
	Content []byte
}

// Synthesizer is the Doctest-Synthesizer.
type Synthesizer struct {
	fs afero.Fs
}

func New(fs afero.Fs) *Synthesizer {
	return &Synthesizer{fs: fs}
}

// Synthesize reads the file inv references once and returns the files to
// write. Identical inputs give byte-identical outputs.
func (s *Synthesizer) Synthesize(ctx context.Context, inv *Invocation, opts Options) ([]*Output, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if opts.Package == "" {
		return nil, errors.Errorf("package name is required")
	}
	if opts.ExamplePackage == "" {
		opts.ExamplePackage = External
	}
	if err := opts.ExamplePackage.Validate(); err != nil {
		return nil, err
	}

	path := consteval.Resolve(opts.Dir, inv.Path)
	text, err := consteval.ReadText(ctx, s.fs, path)
	if err != nil {
		return nil, err
	}

	name := inv.ContainerName()
	lines := doctext.Comment(text)

	var examples []*example
	for _, b := range Blocks(text) {
		if !b.Runnable() {
			zerolog.Ctx(ctx).Debug().Str("path", inv.Path).Int("line", b.Line).Str("lang", b.Lang).Strs("attrs", b.Attrs).Msg("skipping code block")
			continue
		}
		ex, err := parseExample(inv.Path, b)
		if err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}

	var outs []*Output

	if !inv.TestOnly {
		outPath := filepath.Join(opts.Dir, ContainerFile(name))
		src, err := format.Source(s.containerFile(inv, opts.Package, name, lines))
		if err != nil {
			return nil, errors.Errorf("generated %s does not parse: %w", outPath, err)
		}
		outs = append(outs, &Output{Path: outPath, Content: src})
	}

	if inv.TestOnly || len(examples) > 0 {
		pkg := opts.Package
		if opts.ExamplePackage == External {
			pkg += "_test"
		}

		outPath := filepath.Join(opts.Dir, ExamplesFile(name))
		src := s.examplesFile(inv, pkg, name, examples)
		if inv.TestOnly {
			container(src, name, lines)
		}

		formatted, err := formatExamples(outPath, src.Bytes(), opts.FixImports)
		if err != nil {
			return nil, errors.Errorf("%w: examples of %s do not compile: %v", diagnostic.ErrMalformedInvocation, inv.Path, err)
		}

		outs = append(outs, &Output{Path: outPath, Content: formatted})
	}

	zerolog.Ctx(ctx).Debug().
		Str("path", path).
		Str("container", name).
		Int("lines", len(lines)).
		Int("examples", len(examples)).
		Msg("synthesized doctest")

	return outs, nil
}

func header(buf *bytes.Buffer, inv *Invocation, pkg string) {
	fmt.Fprintf(buf, "%s from %s. DO NOT EDIT.\n\n", GeneratedPrefix, filepath.ToSlash(inv.Path))
	if inv.Build != "" {
		fmt.Fprintf(buf, "//go:build %s\n\n", inv.Build)
	}
	fmt.Fprintf(buf, "package %s\n\n", pkg)
}

func container(buf *bytes.Buffer, name string, lines []string) {
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	fmt.Fprintf(buf, "type %s struct{}\n", name)
}

func (s *Synthesizer) containerFile(inv *Invocation, pkg, name string, lines []string) []byte {
	var buf bytes.Buffer
	header(&buf, inv, pkg)
	container(&buf, name, lines)
	return buf.Bytes()
}

func (s *Synthesizer) examplesFile(inv *Invocation, pkg, name string, examples []*example) *bytes.Buffer {
	var buf bytes.Buffer
	header(&buf, inv, pkg)

	var extra []importSpec
	for _, ex := range examples {
		if !ex.output {
			extra = append(extra, importSpec{path: "testing"})
			break
		}
	}

	switch specs := mergeImports(examples, extra...); len(specs) {
	case 0:
	case 1:
		fmt.Fprintf(&buf, "import %s\n\n", specs[0])
	default:
		buf.WriteString("import (\n")
		for _, spec := range specs {
			fmt.Fprintf(&buf, "\t%s\n", spec)
		}
		buf.WriteString(")\n\n")
	}

	for _, ex := range examples {
		for _, decl := range ex.decls {
			buf.WriteString(decl)
			buf.WriteString("\n\n")
		}
	}

	for i, ex := range examples {
		if ex.output {
			fn := ExampleName(name, i+1)
			fmt.Fprintf(&buf, "// %s runs the code block at %s:%d.\n", fn, filepath.ToSlash(inv.Path), ex.block.Line)
			fmt.Fprintf(&buf, "func %s() {\n", fn)
		} else {
			fn := TestName(name, i+1)
			fmt.Fprintf(&buf, "// %s runs the code block at %s:%d.\n", fn, filepath.ToSlash(inv.Path), ex.block.Line)
			fmt.Fprintf(&buf, "func %s(*testing.T) {\n", fn)
		}
		body := strings.TrimLeft(ex.body, "\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteByte('\n')
		}
		buf.WriteString("}\n\n")
	}

	return &buf
}

// Stem is the part of name shared by the Example and Test function names of
// its blocks. Containers with the same stem generate the same functions.
func Stem(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}

// ExampleName is the name of the n-th block of container name when it is an
// example. Examples are package level examples, whose suffix must start with
// a lower case letter.
func ExampleName(name string, n int) string {
	return fmt.Sprintf("Example_%s_%d", Stem(name), n)
}

// TestName is the name of the n-th block of container name when it is a test.
func TestName(name string, n int) string {
	r, size := utf8.DecodeRuneInString(name)
	return fmt.Sprintf("Test%c%s_%d", unicode.ToUpper(r), name[size:], n)
}

func mergeImports(examples []*example, extra ...importSpec) []importSpec {
	seen := map[importSpec]bool{}
	var specs []importSpec
	add := func(spec importSpec) {
		if seen[spec] {
			return
		}
		seen[spec] = true
		specs = append(specs, spec)
	}
	for _, ex := range examples {
		for _, spec := range ex.imports {
			add(spec)
		}
	}
	for _, spec := range extra {
		add(spec)
	}
	sort.SliceStable(specs, func(i, j int) bool {
		if specs[i].path != specs[j].path {
			return specs[i].path < specs[j].path
		}
		return specs[i].name < specs[j].name
	})
	return specs
}

func formatExamples(path string, src []byte, fixImports bool) ([]byte, error) {
	if !fixImports {
		return format.Source(src)
	}
	return imports.Process(path, src, &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
}
