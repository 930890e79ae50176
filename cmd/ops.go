package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/scoutsync/internal/app"
	"github.com/okian/scoutsync/internal/domain/model"
)

// withEngine opens an engine for one command and closes it after.
func withEngine(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, e *engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := openEngine(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer e.Close(context.Background())
	return fn(ctx, e)
}

func newRunCommand(opts *RootOptions, use, short string, run func(*app.Orchestrator, context.Context) (app.RunReport, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *engine) error {
				e.orch.Probe(ctx)
				rep, err := run(e.orch, ctx)
				if err != nil && rep.StartedAt.IsZero() {
					return err
				}
				if werr := writeReport(cmd.OutOrStdout(), opts.Format, rep); werr != nil {
					return werr
				}
				if rep.Outcome == app.OutcomeError {
					return fmt.Errorf("sync failed: %s", rep.Error)
				}
				return nil
			})
		},
	}
}

// NewSyncCommand pushes pending records and pulls shared state once.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return newRunCommand(opts, "sync", "Push pending records and pull roster and schedule once", (*app.Orchestrator).SyncNow)
}

// NewRefreshCommand runs the clean pass followed by a sync.
func NewRefreshCommand(opts *RootOptions) *cobra.Command {
	return newRunCommand(opts, "refresh", "Normalize local data, then sync", (*app.Orchestrator).FullRefresh)
}

// NewResetCommand refreshes and rebuilds the roster and schedule caches.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return newRunCommand(opts, "reset", "Refresh and rebuild cached roster and schedule from the remote", (*app.Orchestrator).HardReset)
}

// NewStatusCommand prints the local sync status.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending records and remote reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *engine) error {
				e.orch.Probe(ctx)
				st, err := collectStatus(ctx, e)
				if err != nil {
					return err
				}
				return writeStatus(cmd.OutOrStdout(), opts.Format, st)
			})
		},
	}
}

// NewCaptureCommand stores a scouting record read as JSON from a file or stdin.
func NewCaptureCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Store a scouting record from JSON and queue it for push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rec, err := readRecord(in)
			if err != nil {
				return err
			}
			return withEngine(cmd, opts, func(ctx context.Context, e *engine) error {
				saved, err := e.service.Capture(ctx, rec)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(saved)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("captured "+saved.ID))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON record file, - for stdin")
	return cmd
}

func readRecord(r io.Reader) (model.ScoutingRecord, error) {
	var rec model.ScoutingRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
