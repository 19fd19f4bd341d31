package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	attachcmd "github.com/walteh/doccomment/cmd/doccomment/attach"
	doctestcmd "github.com/walteh/doccomment/cmd/doccomment/doctest"
	generatecmd "github.com/walteh/doccomment/cmd/doccomment/generate"
	logging "github.com/walteh/doccomment/pkg/debug"
)

func main() {
	ctx := context.Background()

	var (
		verbose bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "doccomment",
		Short: "generate Go doc comments and examples from computed strings and text files",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.NewLogger(cmd.ErrOrStderr(), verbose, noColor)
			cmd.SetContext(logger.WithContext(cmd.Context()))
		},
	}

	cmd.PersistentFlags().BoolVar(&verbose, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored log output")

	info, ok := debug.ReadBuildInfo()
	if !ok {
		cmd.Version = "unknown"
	} else {
		cmd.Version = info.Main.Version
	}

	cmd.InitDefaultVersionFlag()

	cmd.AddCommand(&cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(cmd.Version)
		},
		Hidden: true,
	})

	cmd.AddCommand(generatecmd.NewGenerateCommand())
	cmd.AddCommand(attachcmd.NewAttachCommand())
	cmd.AddCommand(doctestcmd.NewDoctestCommand())

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
