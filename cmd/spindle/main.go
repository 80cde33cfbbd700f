package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skeinworks/spindle/cmd/spindle/commands"
)

var rootCmd = &cobra.Command{
	Use:   "spindle",
	Short: "spindle - scheduled web-content ingestion",
	Long: `spindle - scheduled web-content ingestion daemon.

spindle runs recurring fetch-and-parse jobs (news, weather, air quality)
on interval or cron schedules, with durable job definitions in sqlite.

Available commands:
  start   - Run the scheduler daemon in the foreground
  jobs    - Manage scheduled jobs (ls/add/pause/resume/rm/history)
  specs   - Manage specifications (parameter bundles jobs reference)
  db      - Database operations (migrate/stats)
  version - Show build information

Examples:
  spindle start                     # Run the daemon
  spindle jobs ls                   # List scheduled jobs
  spindle jobs pause <job-id>       # Suspend a job's trigger
  spindle specs add --name sources --params '{"urls":["https://example.com"]}'
  spindle db stats                  # Show job and record counts`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&commands.Verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "Path to config file (default: ./spindle.toml)")

	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.SpecsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
