package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/harvest"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
)

// HarvestCmd enqueues or runs a harvest of the configured sources
var HarvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest the configured sources",
	Long: `Harvest the configured sources into harvest.graph_uri.

By default the harvest is queued for the workers of a running
'harvester serve'. --wait follows the job until it finishes; --inline
runs the harvest in this process instead.

Examples:
  harvester harvest                  # Queue a harvest
  harvester harvest --wait           # Queue and wait for the result
  harvester harvest --inline --strict`,
	RunE: runHarvest,
}

var (
	harvestStrict bool
	harvestWait   bool
	harvestInline bool
)

const waitPoll = time.Second

func init() {
	HarvestCmd.Flags().BoolVar(&harvestStrict, "strict", false, "Abort when any source fails validation (overrides harvest.strict)")
	HarvestCmd.Flags().BoolVar(&harvestWait, "wait", false, "Wait for the queued harvest to finish")
	HarvestCmd.Flags().BoolVar(&harvestInline, "inline", false, "Run the harvest in this process")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strict") {
		cfg.Harvest.Strict = harvestStrict
	}

	sources, err := harvest.SourcesFromConfig(cfg)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		pterm.Warning.Println("No sources configured (harvest.sources, harvest.sources_file)")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if harvestInline {
		return runInlineHarvest(ctx, cfg, sources)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	queue := async.NewQueue(database)
	job, err := harvest.Enqueue(queue, sources, cfg)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Queued %s (%s)\n", job.ID, job.Description)
	if !harvestWait {
		return nil
	}
	return waitForJob(ctx, queue, job.ID)
}

// runInlineHarvest executes the harvest handler directly, without the
// queue. Progress goes to the log.
func runInlineHarvest(ctx context.Context, cfg *am.Config, sources []harvest.Source) error {
	log := logger.Logger
	handler := harvest.NewHandler(cfg, nil, newSourceFetcher(log), log)

	payload := harvest.NewPayload(sources, cfg)
	job, err := async.NewJobWithPayload(harvest.HandlerName, harvest.JobSourceManual,
		fmt.Sprintf("harvest %d sources into %s", len(sources), payload.GraphURI), payload.JSON())
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start(job.Description)
	start := time.Now()
	if err := handler.Execute(ctx, job); err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Harvest finished in %s", time.Since(start).Round(time.Millisecond)))
	return printResult(job.Result)
}

// waitForJob polls the queue until the job reaches a final state.
func waitForJob(ctx context.Context, queue *async.Queue, id string) error {
	spinner, _ := pterm.DefaultSpinner.Start("Waiting for " + id)
	ticker := time.NewTicker(waitPoll)
	defer ticker.Stop()

	for {
		job, err := queue.GetJob(id)
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		if job.Progress.Total > 0 {
			spinner.UpdateText(fmt.Sprintf("%s: %d/%d sources", job.Status, job.Progress.Current, job.Progress.Total))
		} else {
			spinner.UpdateText(fmt.Sprintf("%s: %s", id, job.Status))
		}
		if job.Status.IsFinal() {
			if job.Status != async.JobStatusCompleted {
				spinner.Fail(fmt.Sprintf("%s %s: %s", id, job.Status, job.Error))
				return errors.Newf("harvest %s %s", id, job.Status)
			}
			spinner.Success(id + " finished")
			return printResult(job.Result)
		}

		select {
		case <-ctx.Done():
			spinner.Warning("Stopped waiting; the harvest keeps running")
			return nil
		case <-ticker.C:
		}
	}
}

func printResult(raw json.RawMessage) error {
	var result harvest.Result
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return errors.Wrap(err, "decode harvest result")
	}

	rows := pterm.TableData{{"URI", "TYPE", "MIME"}}
	for _, src := range result.Sources {
		rows = append(rows, []string{src.URI, src.DataType, src.MIME})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	for _, r := range result.Rejected {
		pterm.Warning.Printf("Rejected %s: %s\n", r.Source, r.Reason)
	}
	pterm.Info.Printf("Graph now holds %d triples\n", result.NumTriples)
	logger.Debugw("Harvest result", logger.FieldTriples, result.NumTriples, "rejected", len(result.Rejected))
	return nil
}
