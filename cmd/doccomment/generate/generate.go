package generate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/doccomment/pkg/config"
	"github.com/walteh/doccomment/pkg/generate"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	fs  afero.Fs
	out io.Writer
	dir string

	configPath     string
	diff           bool
	check          bool
	prune          bool
	examplePackage string
}

func NewGenerateCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "generate [patterns...]",
		Short: "attach computed doc comments and synthesize doctests in the matching packages",
	}

	cmd.Flags().StringVar(&me.configPath, "config", "", "config file (default: .doccomment.hcl, .doccomment.yaml or .doccomment.yml in the working directory)")
	cmd.Flags().BoolVar(&me.diff, "diff", false, "print a unified diff instead of writing files")
	cmd.Flags().BoolVar(&me.check, "check", false, "fail if any file is not up to date, without writing")
	cmd.Flags().BoolVar(&me.prune, "prune", false, "remove generated doctest files no invocation produces anymore")
	cmd.Flags().StringVar(&me.examplePackage, "example-package", "", "package the examples are compiled in: external or internal")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Errorf("getting working directory: %w", err)
		}
		me.dir = wd
		me.out = cmd.OutOrStdout()
		return me.Run(cmd.Context(), args)
	}

	return cmd
}

func (me *Handler) loadConfig() (*config.Config, error) {
	path := me.configPath
	if path == "" {
		found, err := config.Find(me.fs, me.dir)
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := config.Default(me.dir)
	if path != "" {
		loaded, err := config.Load(me.fs, path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if me.prune {
		cfg.Prune = true
	}
	if me.examplePackage != "" {
		cfg.ExamplePackage = me.examplePackage
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (me *Handler) Run(ctx context.Context, patterns []string) error {
	cfg, err := me.loadConfig()
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	res, err := generate.New(me.fs, cfg).Run(ctx, me.dir, patterns...)
	if err != nil {
		return err
	}

	writer := generate.NewWriter(me.fs, me.dir)

	if me.diff {
		text, err := writer.Diff(res)
		if err != nil {
			return err
		}
		fmt.Fprint(me.out, text)
	}

	if me.check {
		if !res.UpToDate() {
			return errors.Errorf("%d file(s) are not up to date, run doccomment generate", len(res.Changes))
		}
		return nil
	}

	if me.diff {
		return nil
	}

	if res.UpToDate() {
		zerolog.Ctx(ctx).Info().Msg("everything is up to date")
		return nil
	}

	return writer.Apply(ctx, res)
}
