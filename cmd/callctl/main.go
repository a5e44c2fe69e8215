package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"call-insights-go/internal/app"
	"call-insights-go/internal/config"
	"call-insights-go/internal/dataset"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	quiet bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "callctl",
		Short:        "Run the call analysis pipeline from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress log output")

	root.AddCommand(
		newProcessCmd(opts),
		newBatchCmd(opts),
		newStatsCmd(opts),
		newSweepCmd(opts),
	)
	return root
}

func openApp(opts *options) (*app.App, error) {
	// stdout carries JSON results
	log := logger.NewWithOutput(os.Stderr)
	if opts.quiet {
		log = logger.Discard()
	}
	return app.New(config.Load(), log, prometheus.NewRegistry())
}

func newProcessCmd(opts *options) *cobra.Command {
	var customer string
	cmd := &cobra.Command{
		Use:   "process <audio>...",
		Short: "Transcribe, analyse and store audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				rec, err := a.Service.Process(cmd.Context(), pipeline.Upload{
					Path:       path,
					Filename:   filepath.Base(path),
					CustomerID: customer,
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id to attach")
	return cmd
}

func newBatchCmd(opts *options) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch <manifest.xlsx>",
		Short: "Process every call listed in a spreadsheet manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := dataset.Load(args[0], a.Log)
			if err != nil {
				return err
			}

			type outcome struct {
				Row    int    `json:"row"`
				CallID string `json:"call_id,omitempty"`
				Error  string `json:"error,omitempty"`
			}
			results := make([]outcome, len(entries))

			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(parallel, 1))
			for i, e := range entries {
				g.Go(func() error {
					rec, err := a.Service.Process(gctx, pipeline.Upload{
						Path:       e.Audio,
						Filename:   baseName(e.Audio),
						CustomerID: e.CustomerID,
						CallID:     e.CallID,
						Transcript: e.Transcript,
					})
					results[i] = outcome{Row: e.Row, CallID: rec.CallID}
					if err != nil {
						// one bad row should not stop the batch
						results[i].Error = err.Error()
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 4, "uploads in flight at once")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	var overall bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print weekly (or overall) call statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if overall {
				st, err := a.Engine.Overall(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			}
			wk, err := a.Engine.Weekly(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), wk)
		},
	}
	cmd.Flags().BoolVar(&overall, "overall", false, "aggregate all live records instead of the current week")
	return cmd
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired call records once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n := a.Sweeper.SweepOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired calls\n", n)
			return nil
		},
	}
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
