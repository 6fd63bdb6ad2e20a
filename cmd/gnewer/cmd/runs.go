package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/franksops/gonewer/config"
	"github.com/franksops/gonewer/store"
)

var runsFlags struct {
	limit    int
	stateDir string
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(runsFlags.stateDir)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(runsFlags.limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		return printRuns(cmd.OutOrStdout(), runs)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsFlags.limit, "limit", 20, "maximum number of runs to show (0 for all)")
	runsCmd.Flags().StringVar(&runsFlags.stateDir, "state-dir", config.DefaultStateDir, "directory holding the run history")
	rootCmd.AddCommand(runsCmd)
}

func printRuns(w io.Writer, runs []*store.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATE\tMODE\tSEEN\tEMITTED\tSUPPRESSED\tCOPIED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.State,
			r.Mode,
			r.Seen,
			r.Emitted,
			r.Suppressed,
			r.Copied,
			r.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}
