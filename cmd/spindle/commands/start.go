package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// StartCmd runs the scheduler daemon in the foreground.
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler daemon in foreground mode.

The daemon rebuilds the trigger index from the job store, then ticks the
scheduling loop, dispatching due spider jobs until interrupted (Ctrl+C).
Shutdown is graceful: the loop stops and in-flight work drains.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := r.scheduler.Start(ctx); err != nil {
			return err
		}

		running := r.scheduler.GetRunningJobs(0, 0)
		fmt.Printf("spindle daemon started\n")
		fmt.Printf("  Database:      %s\n", r.cfg.Database.Path)
		fmt.Printf("  Tick interval: %v\n", tickInterval(r.cfg))
		fmt.Printf("  Armed jobs:    %d\n", len(running))
		fmt.Printf("  Work keys:     %v\n", r.registry.Keys())
		fmt.Printf("\nPress Ctrl+C to shut down\n\n")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down, draining in-flight work...")
		r.scheduler.Stop()
		fmt.Println("spindle daemon stopped")
		return nil
	},
}
