package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skeinworks/spindle/schedule"
)

// DbCmd groups database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database operations",
	Long: `Database operations.

Examples:
  spindle db migrate   # Apply pending schema migrations
  spindle db stats     # Show job and record counts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// newRuntime migrates on open; reaching here means it succeeded.
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		fmt.Println("Migrations applied")
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job and record counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		jobs, err := r.jobs.ListJobs(nil, 0, 0)
		if err != nil {
			return err
		}
		byState := map[schedule.State]int{}
		for _, job := range jobs {
			byState[job.State]++
		}

		counts, err := r.records.Counts()
		if err != nil {
			return err
		}

		fmt.Println("Database statistics")
		fmt.Printf("  Path: %s\n\n", r.cfg.Database.Path)

		fmt.Printf("Jobs: %d\n", len(jobs))
		for _, st := range []schedule.State{
			schedule.StateWorking, schedule.StateResumed, schedule.StatePaused,
			schedule.StateFailed, schedule.StateCompleted,
		} {
			if byState[st] > 0 {
				fmt.Printf("  %-10s %d\n", st, byState[st])
			}
		}

		fmt.Println("\nRecords:")
		fmt.Printf("  news:        %d\n", counts["news_records"])
		fmt.Printf("  weather:     %d\n", counts["weather_records"])
		fmt.Printf("  air quality: %d\n", counts["air_quality_records"])
		return nil
	},
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}
