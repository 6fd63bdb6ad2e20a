package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/franksops/gonewer/internal/log"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var globalFlags struct {
	verbosity int
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "gnewer [source] [dest]",
	Short: "List or sync source files that are newer than their destination",
	Long: `gnewer walks a source tree and passes on only the files that are newer
than their destination. The destination is either a directory mirroring the
source tree (optionally with a different extension or a templated path) or a
single file built from all sources, in which case every source is passed on
as soon as any one of them is newer.

Stale source paths are printed one per line. With --sync they are also copied
to their destination. Source and dest may be local paths or s3://bucket/prefix
URLs.`,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := log.ParseFormat(globalFlags.logFormat)
		if err != nil {
			return err
		}
		log.Init(globalFlags.verbosity, format, cmd.ErrOrStderr())
		return nil
	},
	RunE: runFilter,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "gnewer %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "text",
		"log format (text, json)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
