package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/franksops/gonewer/config"
	"github.com/franksops/gonewer/engine"
	"github.com/franksops/gonewer/internal/log"
	"github.com/franksops/gonewer/newer"
	"github.com/franksops/gonewer/ui"
)

// tuiRefresh is how often the terminal view is redrawn from a snapshot.
const tuiRefresh = 250 * time.Millisecond

var opts filterOptions

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to config file (default: ./"+config.FileName+" when present)")
	f.StringVar(&opts.ext, "ext", "", "destination extension for directory dests, e.g. .js")
	f.StringVar(&opts.mapTmpl, "map", "", "destination path template, e.g. '{{.Dest}}/{{.Dir}}/{{.Stem}}.min{{.Ext}}'")
	f.StringSliceVar(&opts.include, "include", nil, "only consider sources matching these globs")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "skip sources matching these globs")
	f.IntVar(&opts.prefetch, "prefetch", 0, "destination lookups to run ahead of the stream (0 or 1 disables)")
	f.IntVar(&opts.workers, "workers", engine.DefaultWorkers, "copy workers for --sync")
	f.StringVar(&opts.stateDir, "state-dir", config.DefaultStateDir, "directory holding the run history")
	f.BoolVar(&opts.sync, "sync", false, "copy stale sources to their destination")
	f.BoolVar(&opts.checksum, "checksum", false, "verify copies with xxhash (requires --sync)")
	f.BoolVar(&opts.tui, "tui", false, "show a live terminal view")
	f.BoolVar(&opts.noMetadata, "no-metadata", false, "do not carry permissions and ownership to copies")
}

func runFilter(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig(wd)
	if err != nil {
		return err
	}
	opts.apply(cfg, args, cmd.Flags().Changed)
	if err := cfg.Check(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, srcRoot, err := createProvider(ctx, cfg.Source, false)
	if err != nil {
		return err
	}
	dst, destRoot, err := createProvider(ctx, cfg.Dest, !opts.noMetadata)
	if err != nil {
		return err
	}

	filterCfg, err := cfg.Filter(destRoot)
	if err != nil {
		return err
	}
	filter, err := newer.New(filterCfg, newer.WithProvider(dst), newer.WithPrefetch(cfg.Prefetch))
	if err != nil {
		return err
	}
	walker, err := engine.NewWalker(src, cfg.Include, cfg.Exclude)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.StateDir)
	if err != nil {
		return err
	}
	defer st.Close()

	var listing bytes.Buffer
	var out io.Writer = cmd.OutOrStdout()
	if opts.tui {
		out = &listing
	}

	pipeline := engine.NewPipeline(engine.Options{
		SourceRoot: srcRoot,
		Dest:       cfg.Dest,
		Out:        out,
		Sync:       opts.sync,
		Workers:    cfg.Workers,
		Verify:     opts.checksum,
	}, walker, filter, src, dst, st)

	var summary *engine.Summary
	if opts.tui {
		summary, err = runWithTUI(ctx, pipeline, cfg)
		if _, werr := listing.WriteTo(cmd.OutOrStdout()); werr != nil && err == nil {
			err = werr
		}
	} else {
		summary, err = pipeline.Run(ctx)
	}
	if summary != nil {
		log.Logger().Info("summary",
			"run", summary.RunID,
			"mode", summary.Mode,
			"scanned", summary.Scanned,
			"emitted", summary.Filter.Emitted,
			"suppressed", summary.Filter.Suppressed,
			"discarded", summary.Filter.Discarded,
			"copied", summary.Copied,
			"duration", summary.Duration)
	}
	return err
}

// runWithTUI runs the pipeline behind a bubbletea view. Quitting the view
// cancels the run. Only errors are logged while the view owns the terminal.
func runWithTUI(ctx context.Context, p *engine.Pipeline, cfg *config.Config) (*engine.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.SetVerbosity(log.VerbosityError)
	defer log.SetVerbosity(globalFlags.verbosity)

	start := time.Now()
	model := ui.NewTUIModel(ui.StateFromSnapshot(cfg.Source, cfg.Dest, p.Snapshot(), 0), p)
	program := tea.NewProgram(model)

	var summary *engine.Summary
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		summary, runErr = p.Run(ctx)
	}()

	go func() {
		ticker := time.NewTicker(tuiRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				program.Send(ui.TUIUpdateMsg{State: ui.StateFromSnapshot(cfg.Source, cfg.Dest, p.Snapshot(), time.Since(start))})
			case <-done:
				final := ui.StateFromSnapshot(cfg.Source, cfg.Dest, p.Snapshot(), time.Since(start))
				final.Done = true
				final.Err = runErr
				program.Send(ui.TUIUpdateMsg{State: final})
				return
			}
		}
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return summary, fmt.Errorf("terminal view failed: %w", err)
	}
	cancel()
	<-done
	return summary, runErr
}
