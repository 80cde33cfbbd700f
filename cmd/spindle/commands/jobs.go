package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skeinworks/spindle/errors"
	"github.com/skeinworks/spindle/schedule"
)

// JobsCmd manages scheduled jobs.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled jobs",
	Long: `Manage scheduled jobs.

Jobs added while the daemon runs become visible to it on its next restart;
the daemon rebuilds its trigger index from the store at startup.

Examples:
  spindle jobs ls
  spindle jobs add --work ingest.news-spider --every 10m --spec <spec-id>
  spindle jobs add --work ingest.weather-spider --cron "0 8 * * *" --spec <spec-id>
  spindle jobs pause <job-id>
  spindle jobs resume <job-id>
  spindle jobs rm <job-id> [<job-id>...]
  spindle jobs history <job-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		var states []schedule.State
		if stateFlag != "" {
			st := schedule.State(stateFlag)
			if !schedule.IsValidState(st) {
				return errors.Newf("unknown state %q", stateFlag)
			}
			states = []schedule.State{st}
		}

		jobs, err := r.jobs.ListJobs(states, lsLimitFlag, 0)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs")
			return nil
		}

		fmt.Printf("%-36s  %-24s  %-9s  %-19s  %s\n", "ID", "NAME", "STATE", "NEXT RUN", "WORK")
		for _, job := range jobs {
			next := "-"
			if job.NextRunAt != nil {
				next = job.NextRunAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-36s  %-24s  %-9s  %-19s  %s\n",
				job.ID, truncate(job.Name, 24), job.State, next, job.WorkKey)
		}
		return nil
	},
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if workFlag == "" {
			return errors.New("--work is required")
		}
		if (everyFlag == "") == (cronFlag == "") {
			return errors.New("exactly one of --every or --cron is required")
		}
		switch schedule.FailPolicy(failPolicyFlag) {
		case "", schedule.FailPolicyMark, schedule.FailPolicyRetry:
		default:
			return errors.Newf("unknown fail policy %q", failPolicyFlag)
		}

		var sched schedule.Schedule
		if everyFlag != "" {
			d, err := time.ParseDuration(everyFlag)
			if err != nil {
				return errors.Wrapf(err, "invalid --every value %q", everyFlag)
			}
			sched = schedule.Every(d)
		} else {
			sched = schedule.Cron(cronFlag)
			sched.Timezone = timezoneFlag
		}

		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		job, err := r.scheduler.AddJob(&schedule.Job{
			Name:         nameFlag,
			WorkKey:      workFlag,
			SpecID:       specFlag,
			Schedule:     sched,
			MaxInstances: maxInstancesFlag,
			Coalesce:     coalesceFlag,
			FailPolicy:   schedule.FailPolicy(failPolicyFlag),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Added job %s (%s)\n", job.ID, job.Name)
		if job.NextRunAt != nil {
			fmt.Printf("Next run: %s\n", job.NextRunAt.UTC().Format(time.RFC3339))
		}
		return nil
	},
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Suspend a job's trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		paused := schedule.StatePaused
		if err := r.jobs.UpdateJob(args[0], schedule.JobPatch{State: &paused}); err != nil {
			return err
		}
		fmt.Printf("Paused job %s\n", args[0])
		return nil
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Re-arm a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		resumed := schedule.StateResumed
		if err := r.jobs.UpdateJob(args[0], schedule.JobPatch{State: &resumed}); err != nil {
			return err
		}
		fmt.Printf("Resumed job %s\n", args[0])
		return nil
	},
}

var jobsRmCmd = &cobra.Command{
	Use:   "rm <job-id> [<job-id>...]",
	Short: "Delete jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		for _, id := range args {
			deleted, err := r.jobs.DeleteJob(id)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Printf("Job %s not found, skipped\n", id)
				continue
			}
			if _, err := r.execs.DeleteExecutionsByJob(id); err != nil {
				r.log.Warnw("Failed to delete execution history", "job_id", id, "error", err)
			}
			fmt.Printf("Deleted job %s\n", id)
		}
		return nil
	},
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history <job-id>",
	Short: "Show recent executions of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		execs, err := r.execs.ListExecutionsByJob(args[0], historyLimitFlag)
		if err != nil {
			return err
		}
		if len(execs) == 0 {
			fmt.Println("No executions")
			return nil
		}

		fmt.Printf("%-36s  %-9s  %-19s  %-8s  %s\n", "ID", "STATUS", "STARTED", "DURATION", "DETAIL")
		for _, exec := range execs {
			duration := "-"
			if exec.DurationMs != nil {
				duration = fmt.Sprintf("%dms", *exec.DurationMs)
			}
			detail := exec.ResultSummary
			if exec.ErrorMessage != "" {
				detail = exec.ErrorMessage
			}
			fmt.Printf("%-36s  %-9s  %-19s  %-8s  %s\n",
				exec.ID, exec.Status,
				exec.StartedAt.UTC().Format("2006-01-02 15:04:05"),
				duration, truncate(detail, 60))
		}
		return nil
	},
}

var (
	stateFlag        string
	lsLimitFlag      int
	historyLimitFlag int
	workFlag         string
	nameFlag         string
	specFlag         string
	everyFlag        string
	cronFlag         string
	timezoneFlag     string
	maxInstancesFlag int
	coalesceFlag     bool
	failPolicyFlag   string
)

func init() {
	jobsLsCmd.Flags().StringVar(&stateFlag, "state", "", "Filter by state (working|paused|resumed|failed|completed)")
	jobsLsCmd.Flags().IntVar(&lsLimitFlag, "limit", 0, "Maximum jobs to list (0 = all)")

	jobsAddCmd.Flags().StringVar(&workFlag, "work", "", "Registered work key (e.g. ingest.news-spider)")
	jobsAddCmd.Flags().StringVar(&nameFlag, "name", "", "Job name (defaults to work key)")
	jobsAddCmd.Flags().StringVar(&specFlag, "spec", "", "Specification id to attach")
	jobsAddCmd.Flags().StringVar(&everyFlag, "every", "", "Interval schedule, Go duration (e.g. 10m, 1h30m)")
	jobsAddCmd.Flags().StringVar(&cronFlag, "cron", "", "Cron schedule expression (e.g. \"0 8 * * *\")")
	jobsAddCmd.Flags().StringVar(&timezoneFlag, "tz", "", "IANA timezone for cron evaluation (default UTC)")
	jobsAddCmd.Flags().IntVar(&maxInstancesFlag, "max-instances", 0, "Max concurrent invocations (0 = config default)")
	jobsAddCmd.Flags().BoolVar(&coalesceFlag, "coalesce", true, "Skip firings at the concurrency limit instead of queuing")
	jobsAddCmd.Flags().StringVar(&failPolicyFlag, "fail-policy", "", "mark-failed or retry-next-fire (default retry-next-fire)")

	jobsHistoryCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Number of executions to show")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsAddCmd)
	JobsCmd.AddCommand(jobsPauseCmd)
	JobsCmd.AddCommand(jobsResumeCmd)
	JobsCmd.AddCommand(jobsRmCmd)
	JobsCmd.AddCommand(jobsHistoryCmd)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-3]) + "..."
}
