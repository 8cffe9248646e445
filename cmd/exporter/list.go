package main

import (
	"fmt"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/backend"
	"github.com/nmiodice/strava-drive-export/internal/export"
	"github.com/nmiodice/strava-drive-export/internal/storage"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the activities an export would write, without uploading",
		Long: `list walks the Strava activity history and prints one line per activity:
its id, start date and the path its record would be written to.

Without --since or --days-back the full history is listed.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
	addRunFlags(cmd)
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config, log, err := setup(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	opts, err := backend.ParseSince(sinceFlag, now)
	if err != nil {
		return err
	}
	if daysBackFlag > 0 {
		opts = backend.DaysBack(daysBackFlag, now)
	}
	layout, err := storage.ParseLayout(config.Destination.Layout)
	if err != nil {
		return err
	}

	deps, err := backend.GetStravaDependencies(config, log)
	if err != nil {
		return err
	}
	activities, err := deps.Fetcher.FetchActivities(ctx, opts.Since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, a := range activities {
		start := "-"
		if t, ok := a.StartDate(); ok {
			start = t.Format(time.RFC3339)
		}
		r := export.Normalize(a, nil)
		fmt.Fprintf(out, "%d\t%s\t%s\n", a.ID(), start, storage.PathFor(config.Destination.Folder, layout, r))
	}
	log.Infof("listed %d activities", len(activities))
	return nil
}
