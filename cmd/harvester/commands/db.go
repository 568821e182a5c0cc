package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/db"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
	"github.com/teranos/breg-harvester/pulse/schedule"
)

// DbCmd manages the harvester database
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the harvester database",
	Long: `Manage the SQLite database holding jobs, schedules and the term cache.

Examples:
  harvester db migrate               # Apply pending migrations
  harvester db stats                 # Job counts by status
  harvester db prune --older-than 72h`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job and schedule counts",
	RunE:  runDbStats,
}

var dbPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished jobs and schedule runs older than a cutoff",
	RunE:  runDbPrune,
}

var pruneOlderThan time.Duration

func init() {
	dbPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Age cutoff (defaults to harvest.result_ttl_seconds)")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbPruneCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.GetDatabasePath()
	database, err := db.Open(path, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()

	pending, err := db.Pending(database)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		pterm.Success.Printf("Database %s is up to date\n", path)
		return nil
	}
	for _, m := range pending {
		pterm.Info.Printf("Applying %s\n", m.File)
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		return err
	}
	pterm.Success.Printf("Applied %d migration(s) to %s\n", len(pending), path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := async.NewQueue(database).GetStats()
	if err != nil {
		return err
	}
	schedules, err := schedule.NewStore(database).ListJobs(context.Background())
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Database " + cfg.GetDatabasePath())
	rows := pterm.TableData{{"STATUS", "JOBS"}}
	for _, status := range []async.JobStatus{
		async.JobStatusQueued, async.JobStatusRunning, async.JobStatusCompleted,
		async.JobStatusFailed, async.JobStatusCancelled,
	} {
		rows = append(rows, []string{string(status), fmt.Sprint(stats.StatusCounts()[string(status)])})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	fmt.Printf("\nScheduled jobs: %d\n", len(schedules))
	return nil
}

func runDbPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cutoff := pruneOlderThan
	if cutoff <= 0 {
		cutoff = cfg.ResultTTL()
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := async.NewQueue(database).Cleanup(context.Background(), cutoff)
	if err != nil {
		return err
	}
	runs, err := schedule.NewExecutionStore(database).CleanupOldExecutions(cutoff)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Deleted %d job(s) and %d schedule run(s) older than %s\n", n, runs, cutoff)
	return nil
}
