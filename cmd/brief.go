package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/radarworks/mcp-radar/internal/pipeline"
)

var briefDate string

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Generate the daily digest for a date (default today)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		date := time.Now().UTC()
		if briefDate != "" {
			var err error
			date, err = time.Parse("2006-01-02", briefDate)
			if err != nil {
				return eris.Wrapf(err, "parse --date %q", briefDate)
			}
		}

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		_, err = pipeline.Track(ctx, st, "brief", buildBrief(st, date))
		return err
	},
}

func init() {
	briefCmd.Flags().StringVar(&briefDate, "date", "", "brief date as YYYY-MM-DD (default today, UTC)")
	rootCmd.AddCommand(briefCmd)
}
