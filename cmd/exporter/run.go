package main

import (
	"errors"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/backend"
	"github.com/nmiodice/strava-drive-export/internal/state"
	"github.com/spf13/cobra"
)

var (
	sinceFlag    string
	daysBackFlag int

	errExportFailed = errors.New("export failed")
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sinceFlag, "since", "", `where to start: "full", an RFC 3339 time or a duration such as 720h (default: continue from the last run)`)
	cmd.Flags().IntVar(&daysBackFlag, "days-back", 0, "export activities from the last N days")
	cmd.MarkFlagsMutuallyExclusive("since", "days-back")
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one export (the default command)",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	addRunFlags(cmd)
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config, log, err := setup(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	since := config.Export.Since
	if sinceFlag != "" {
		since = sinceFlag
	}
	opts, err := backend.ParseSince(since, now)
	if err != nil {
		return err
	}
	if daysBackFlag > 0 {
		opts = backend.DaysBack(daysBackFlag, now)
	}

	deps, err := backend.GetDependencies(ctx, config, log)
	if err != nil {
		log.Errorf("error configuring application dependencies: %+v", err)
		return err
	}
	defer deps.Close()

	summary := deps.Pipeline.Run(ctx, opts)
	if err := summary.Err(); err != nil {
		log.Warnf("some activities were not exported: %v", err)
	}
	if summary.State == state.Failed {
		return errExportFailed
	}
	return nil
}
