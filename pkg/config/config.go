// Package config loads the optional .doccomment.hcl / .doccomment.yaml file.
package config

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/walteh/doccomment/pkg/doctest"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Names are the file names Find looks for, in order.
var Names = []string{".doccomment.hcl", ".doccomment.yaml", ".doccomment.yml"}

// Config file structure
type Config struct {
	// ExamplePackage is "external" (the default) or "internal".
	ExamplePackage string `hcl:"example_package,optional" yaml:"example_package,omitempty"`
	// FixImports defaults to true.
	FixImports *bool `hcl:"fix_imports,optional" yaml:"fix_imports,omitempty"`
	// Prune removes generated doctest files no invocation produces anymore.
	Prune bool `hcl:"prune,optional" yaml:"prune,omitempty"`
	// Exclude lists doublestar globs, relative to Dir, of package
	// directories to skip.
	Exclude []string `hcl:"exclude,optional" yaml:"exclude,omitempty"`

	// Doctests are invocations declared outside of Go source.
	Doctests []*Doctest `hcl:"doctest,block" yaml:"doctests,omitempty"`

	// Dir is the directory of the config file. Relative paths resolve against it.
	Dir string `yaml:"-"`
}

// Doctest is a doctest invocation for the package in Dir. Path and Dir are
// relative to the config file.
type Doctest struct {
	Name     string `hcl:"name,label" yaml:"name"`
	Path     string `hcl:"path,attr" yaml:"path"`
	Dir      string `hcl:"dir,optional" yaml:"dir,omitempty"`
	TestOnly bool   `hcl:"testonly,optional" yaml:"testonly,omitempty"`
	Build    string `hcl:"build,optional" yaml:"build,omitempty"`
}

// Default is the configuration used without a config file.
func Default(dir string) *Config {
	return &Config{ExamplePackage: string(doctest.External), Dir: dir}
}

// Find returns the first config file in dir, or "" if there is none.
func Find(fs afero.Fs, dir string) (string, error) {
	for _, name := range Names {
		path := filepath.Join(dir, name)
		ok, err := afero.Exists(fs, path)
		if err != nil {
			return "", errors.Errorf("checking %s: %w", path, err)
		}
		if ok {
			return path, nil
		}
	}
	return "", nil
}

// Load reads a config file, YAML or HCL depending on the extension.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Errorf("resolving config path: %w", err)
	}
	dir := filepath.Dir(abs)

	cfg := Default(dir)

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	} else {
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCL(data, path)
		if diags.HasErrors() {
			return nil, errors.Errorf("parsing HCL: %s", diags.Error())
		}

		ectx := &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"config_dir": cty.StringVal(dir),
			},
		}

		diags = gohcl.DecodeBody(hclFile.Body, ectx, cfg)
		if diags.HasErrors() {
			return nil, errors.Errorf("decoding HCL: %s", diags.Error())
		}
	}

	cfg.Dir = dir
	if cfg.ExamplePackage == "" {
		cfg.ExamplePackage = string(doctest.External)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := doctest.ExamplePackage(c.ExamplePackage).Validate(); err != nil {
		return err
	}

	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	seen := map[string]bool{}
	for i, d := range c.Doctests {
		if err := d.Invocation(filepath.Join(c.Dir, d.Dir), c.Dir).Validate(); err != nil {
			return errors.Errorf("doctest %d (%q): %w", i, d.Name, err)
		}
		key := filepath.Join(c.Dir, d.Dir) + "\x00" + d.Name
		if seen[key] {
			return errors.Errorf("doctest %q is declared twice for directory %q", d.Name, d.Dir)
		}
		seen[key] = true
	}

	return nil
}

// ShouldFixImports reports whether goimports runs over the examples.
func (c *Config) ShouldFixImports() bool {
	return c.FixImports == nil || *c.FixImports
}

// Excluded reports whether the package directory dir matches an exclude pattern.
func (c *Config) Excluded(dir string) bool {
	rel, err := filepath.Rel(c.Dir, dir)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range c.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// DoctestsFor returns the doctests declared for the package directory dir.
func (c *Config) DoctestsFor(dir string) []*Doctest {
	var out []*Doctest
	for _, d := range c.Doctests {
		if filepath.Clean(filepath.Join(c.Dir, d.Dir)) == filepath.Clean(dir) {
			out = append(out, d)
		}
	}
	return out
}

// Invocation converts the block into the invocation the synthesizer runs
// for the package in pkgDir, with its path made relative to pkgDir.
func (d *Doctest) Invocation(pkgDir, configDir string) *doctest.Invocation {
	path := filepath.FromSlash(d.Path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, path)
	}
	if rel, err := filepath.Rel(pkgDir, path); err == nil {
		path = rel
	}
	return &doctest.Invocation{
		Path:     filepath.ToSlash(path),
		Name:     d.Name,
		TestOnly: d.TestOnly,
		Build:    d.Build,
	}
}
