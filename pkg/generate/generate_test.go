package generate

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/doccomment/pkg/config"
	"github.com/walteh/doccomment/pkg/diagnostic"
	"github.com/walteh/doccomment/pkg/loader"
	"gitlab.com/tozd/go/errors"
)

const readmeContainer = `// Code generated by doccomment from ../README.md. DO NOT EDIT.

package p

// # Title
// Body
type doctest struct{}
`

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func runPackage(t *testing.T, fs afero.Fs, cfg *config.Config, srcs map[string]string) (*Result, error) {
	t.Helper()

	ctx := testContext(t)

	files := map[string][]byte{}
	for name, src := range srcs {
		files[name] = []byte(src)
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/src/p", name), []byte(src), 0644))
	}

	pkg, err := loader.FromSource(ctx, "/src/p", "example.com/p", files)
	require.NoError(t, err)

	if cfg == nil {
		cfg = config.Default("/src")
	}
	return New(fs, cfg).Package(ctx, pkg)
}

func changesByPath(res *Result) map[string]string {
	out := map[string]string{}
	for _, c := range res.Changes {
		if c.Delete {
			out[c.Path] = "<deleted>"
			continue
		}
		out[c.Path] = string(c.New)
	}
	return out
}

func TestPackage(t *testing.T) {
	tests := []struct {
		name  string
		cfg   *config.Config
		files map[string]string
		srcs  map[string]string
		want  map[string]string
	}{
		{
			name:  "attach_and_doctest",
			files: map[string]string{"/src/README.md": "# Title\nBody\n"},
			srcs: map[string]string{
				"p.go": `package p

//doccomment:doctest "../README.md"

//doccomment:attach concat("A ", stringify(Thing), " thing.")
type Thing struct{}
`,
			},
			want: map[string]string{
				"/src/p/doctest_doctest_gen.go": readmeContainer,
				"/src/p/p.go": `package p

//doccomment:doctest "../README.md"

// A Thing thing.
//
//doccomment:attach concat("A ", stringify(Thing), " thing.")
type Thing struct{}
`,
			},
		},
		{
			name: "distinct_names_do_not_collide",
			files: map[string]string{
				"/src/p/README.md": "readme\n",
				"/src/p/GUIDE.md":  "guide\n",
			},
			srcs: map[string]string{
				"p.go": "package p\n\n//doccomment:doctest \"README.md\" readme\n//doccomment:doctest \"GUIDE.md\" guide\n",
			},
			want: map[string]string{
				"/src/p/readme_doctest_gen.go": "// Code generated by doccomment from README.md. DO NOT EDIT.\n\npackage p\n\n// readme\ntype readme struct{}\n",
				"/src/p/guide_doctest_gen.go":  "// Code generated by doccomment from GUIDE.md. DO NOT EDIT.\n\npackage p\n\n// guide\ntype guide struct{}\n",
			},
		},
		{
			name: "up_to_date_files_are_not_changes",
			files: map[string]string{
				"/src/README.md":                "# Title\nBody\n",
				"/src/p/doctest_doctest_gen.go": readmeContainer,
			},
			srcs: map[string]string{
				"p.go":                   "package p\n\n//doccomment:doctest \"../README.md\"\n",
				"doctest_doctest_gen.go": readmeContainer,
			},
			want: map[string]string{},
		},
		{
			name: "config_doctest",
			cfg: &config.Config{
				Dir:            "/src",
				ExamplePackage: "external",
				Doctests:       []*config.Doctest{{Name: "readme", Path: "README.md", Dir: "p"}},
			},
			files: map[string]string{"/src/README.md": "Body\n"},
			srcs:  map[string]string{"p.go": "package p\n"},
			want: map[string]string{
				"/src/p/readme_doctest_gen.go": "// Code generated by doccomment from ../README.md. DO NOT EDIT.\n\npackage p\n\n// Body\ntype readme struct{}\n",
			},
		},
		{
			name: "prune_removes_stale_generated_files",
			cfg:  &config.Config{Dir: "/src", ExamplePackage: "external", Prune: true},
			files: map[string]string{
				"/src/p/old_doctest_gen.go":      "// Code generated by doccomment from OLD.md. DO NOT EDIT.\n\npackage p\n\ntype old struct{}\n",
				"/src/p/old_doctest_gen_test.go": "// Code generated by doccomment from OLD.md. DO NOT EDIT.\n\npackage p_test\n",
				"/src/p/hand_doctest_gen.go":     "package p\n",
			},
			srcs: map[string]string{"p.go": "package p\n"},
			want: map[string]string{
				"/src/p/old_doctest_gen.go":      "<deleted>",
				"/src/p/old_doctest_gen_test.go": "<deleted>",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for path, content := range tt.files {
				require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
			}

			res, err := runPackage(t, fs, tt.cfg, tt.srcs)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, changesByPath(res)); diff != "" {
				t.Errorf("unexpected changes (-want +got):\n%s", diff)
			}
			assert.Equal(t, len(tt.want) == 0, res.UpToDate())
		})
	}
}

func TestPackageErrors(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		src       string
		wantErrs  []error
		wantLines []int
	}{
		{
			name:  "two_unnamed_doctests_collide",
			files: map[string]string{"/src/p/A.md": "a\n", "/src/p/B.md": "b\n"},
			src: `package p

//doccomment:doctest "A.md"
//doccomment:doctest "B.md"
`,
			wantErrs:  []error{diagnostic.ErrNameCollision},
			wantLines: []int{4},
		},
		{
			name:  "names_differing_in_first_letter_case_collide",
			files: map[string]string{"/src/p/A.md": "a\n", "/src/p/B.md": "b\n"},
			src: `package p

//doccomment:doctest "A.md" Readme
//doccomment:doctest "B.md" readme
`,
			wantErrs:  []error{diagnostic.ErrNameCollision},
			wantLines: []int{4},
		},
		{
			name:  "container_collides_with_declaration",
			files: map[string]string{"/src/p/README.md": "x\n"},
			src: `package p

//doccomment:doctest "README.md" readme

type readme int
`,
			wantErrs:  []error{diagnostic.ErrNameCollision},
			wantLines: []int{3},
		},
		{
			name: "every_failure_is_reported",
			src: `package p

var v = "runtime"

//doccomment:doctest "MISSING.md"

//doccomment:attach v
type T struct{}

//doccomment:doctest README.md
`,
			wantErrs:  []error{diagnostic.ErrNonConstantString, diagnostic.ErrUnreadableFile, diagnostic.ErrMalformedInvocation},
			wantLines: []int{7, 10, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for path, content := range tt.files {
				require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
			}

			res, err := runPackage(t, fs, nil, map[string]string{"p.go": tt.src})
			require.Error(t, err)
			assert.Nil(t, res)

			for _, want := range tt.wantErrs {
				assert.True(t, errors.Is(err, want), "want %v in %v", want, err)
			}

			lines := strings.Split(err.Error(), "\n")
			require.Len(t, lines, len(tt.wantLines), err.Error())
			for i, line := range tt.wantLines {
				assert.Contains(t, lines[i], "/src/p/p.go:"+strconv.Itoa(line)+":")
			}
		})
	}
}

func TestRunWritesAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	ctx := testContext(t)

	write := func(name, content string) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	write("go.mod", "module example.com/p\n\ngo 1.21\n")
	write("README.md", "# Title\nBody\n")
	write("p/p.go", `package p

//doccomment:doctest "../README.md"

//doccomment:attach concat("A ", stringify(Thing), " thing.")
type Thing struct{}
`)
	write("skip/skip.go", "package skip\n\n//doccomment:attach \"never\"\ntype S struct{}\n")

	fs := afero.NewOsFs()
	cfg := config.Default(dir)
	cfg.Exclude = []string{"skip"}

	res, err := New(fs, cfg).Run(ctx, dir, "./...")
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)

	require.NoError(t, NewWriter(fs, dir).Apply(ctx, res))

	container, err := os.ReadFile(filepath.Join(dir, "p", "doctest_doctest_gen.go"))
	require.NoError(t, err)
	assert.Equal(t, readmeContainer, string(container))

	src, err := os.ReadFile(filepath.Join(dir, "p", "p.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "// A Thing thing.\n//\n//doccomment:attach")

	again, err := New(fs, cfg).Run(ctx, dir, "./...")
	require.NoError(t, err)
	assert.True(t, again.UpToDate(), "second run must not change anything: %v", changesByPath(again))

	skipped, err := os.ReadFile(filepath.Join(dir, "skip", "skip.go"))
	require.NoError(t, err)
	assert.NotContains(t, string(skipped), "// never")
}
