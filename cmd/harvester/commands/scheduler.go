package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/harvest"
	"github.com/teranos/breg-harvester/pulse/schedule"
)

// SchedulerCmd shows or changes the periodic harvest
var SchedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Show or change the periodic harvest",
	RunE:  runSchedulerShow,
}

var schedulerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the periodic harvest",
	RunE:  runSchedulerShow,
}

var schedulerSetCmd = &cobra.Command{
	Use:   "set <seconds>",
	Short: "Replace the periodic harvest with a new interval",
	Long: `Replace the periodic harvest so that it runs every <seconds>,
the first run one interval from now. A running server picks the new
schedule up on its next tick.

Example:
  harvester scheduler set 86400`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedulerSet,
}

var schedulerHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs of the periodic harvest",
	RunE:  runSchedulerHistory,
}

var historyLimit int

func init() {
	schedulerHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to display")

	SchedulerCmd.AddCommand(schedulerShowCmd)
	SchedulerCmd.AddCommand(schedulerSetCmd)
	SchedulerCmd.AddCommand(schedulerHistoryCmd)
}

func runSchedulerShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	job, err := schedule.NewStore(database).GetJob(cfg.Scheduler.JobID)
	if errors.IsNotFoundError(err) {
		pterm.Info.Printf("No periodic harvest yet (%s); 'harvester serve' creates it\n", cfg.Scheduler.JobID)
		return nil
	}
	if err != nil {
		return err
	}
	printSummary(job.Summarize(time.Now()))
	return nil
}

func runSchedulerSet(cmd *cobra.Command, args []string) error {
	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds <= 0 {
		return errors.NewInvalidRequestError("interval must be a positive number of seconds, got %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	now := time.Now()
	job := harvest.NewScheduledJob(cfg.Scheduler.JobID, seconds, now)
	if err := schedule.NewStore(database).ReplaceJob(job); err != nil {
		return err
	}
	pterm.Success.Println("Periodic harvest replaced")
	printSummary(job.Summarize(now))
	return nil
}

func runSchedulerHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, total, err := schedule.NewExecutionStore(database).ListExecutions(cfg.Scheduler.JobID, historyLimit, 0)
	if err != nil {
		return err
	}
	if total == 0 {
		pterm.Info.Println("The periodic harvest has not run yet")
		return nil
	}

	rows := pterm.TableData{{"STARTED", "STATUS", "DURATION", "JOB", "DETAIL"}}
	for _, run := range runs {
		duration, job, detail := "-", "-", ""
		if run.DurationMs != nil {
			duration = (time.Duration(*run.DurationMs) * time.Millisecond).String()
		}
		if run.AsyncJobID != nil {
			job = *run.AsyncJobID
		}
		if run.ErrorMessage != nil {
			detail = *run.ErrorMessage
		} else if run.ResultSummary != nil {
			detail = *run.ResultSummary
		}
		rows = append(rows, []string{run.StartedAt, run.Status, duration, job, truncate(detail, 60)})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	fmt.Printf("\nShowing %d of %d run(s)\n", len(runs), total)
	return nil
}

func printSummary(s schedule.Summary) {
	rows := pterm.TableData{
		{"ID", s.ID},
		{"Name", s.Name},
		{"Interval", fmt.Sprintf("%ds (%s)", s.IntervalSeconds, time.Duration(s.IntervalSeconds)*time.Second)},
		{"Next run", s.NextDate.Local().Format(time.RFC1123)},
		{"State", s.State},
	}
	if s.LastRunAt != nil {
		rows = append(rows, []string{"Last run", s.LastRunAt.Local().Format(time.RFC1123)})
	}
	pterm.DefaultTable.WithData(rows).Render()
}
