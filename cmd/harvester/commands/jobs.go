package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/pulse/async"
)

// JobsCmd groups job inspection commands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect harvest jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List harvest jobs",
	Long: `List harvest jobs, newest first, optionally filtered by status
(queued, running, completed, failed, cancelled).

Examples:
  harvester jobs ls
  harvester jobs ls --status failed --limit 50`,
	RunE: runJobsLs,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one harvest job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued harvest",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	jobsLsCmd.Flags().String("status", "", "Filter by status")
	jobsLsCmd.Flags().Int("limit", 20, "Maximum number of jobs to display")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsStatusCmd)
	JobsCmd.AddCommand(jobsCancelCmd)
}

func openQueue() (*async.Queue, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return async.NewQueue(database), func() { database.Close() }, nil
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	statusFilter, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	var status *async.JobStatus
	if statusFilter != "" {
		if !async.IsValidStatus(statusFilter) {
			return errors.NewInvalidRequestError("unknown status %q", statusFilter)
		}
		s := async.JobStatus(statusFilter)
		status = &s
	}

	queue, closeDB, err := openQueue()
	if err != nil {
		return err
	}
	defer closeDB()

	jobs, err := queue.ListJobs(status, limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs found")
		return nil
	}

	rows := pterm.TableData{{"JOB ID", "STATUS", "PROGRESS", "CREATED", "DESCRIPTION"}}
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			string(job.Status),
			fmt.Sprintf("%d/%d", job.Progress.Current, job.Progress.Total),
			job.CreatedAt.Format("2006-01-02 15:04"),
			truncate(job.Description, 60),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	fmt.Printf("\nTotal: %d job(s)\n", len(jobs))
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	queue, closeDB, err := openQueue()
	if err != nil {
		return err
	}
	defer closeDB()

	job, err := queue.GetJob(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job ID:      %s\n", job.ID)
	fmt.Printf("Status:      %s\n", job.Status)
	fmt.Printf("Source:      %s\n", job.Source)
	fmt.Printf("Description: %s\n", job.Description)
	if job.Progress.Total > 0 {
		fmt.Printf("Progress:    %d/%d (%.0f%%)\n", job.Progress.Current, job.Progress.Total, job.Progress.Percentage())
	}
	fmt.Printf("Created:     %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.StartedAt != nil {
		fmt.Printf("Started:     %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Ended:       %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if job.Error != "" {
		pterm.Error.Println(job.Error)
	}
	if job.Status == async.JobStatusCompleted {
		return printResult(job.Result)
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	queue, closeDB, err := openQueue()
	if err != nil {
		return err
	}
	defer closeDB()

	job, err := queue.CancelJob(args[0], "cancelled from the command line")
	if err != nil {
		return err
	}
	pterm.Success.Printf("Cancelled %s\n", job.ID)
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
