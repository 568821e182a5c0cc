package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/cmd/harvester/commands"
	"github.com/teranos/breg-harvester/logger"
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvest DCAT catalogs into a SPARQL graph",
	Long: `breg-harvester - RDF catalog harvester and browser.

Fetches the configured RDF sources, validates them, loads them into a
named graph of a SPARQL store and serves a small API to trigger
harvests, manage the periodic schedule and browse the harvested catalog.

Available commands:
  serve      - Run the API, the workers and the scheduler
  harvest    - Enqueue or run a harvest
  jobs       - Inspect harvest jobs
  scheduler  - Show or change the periodic harvest
  sources    - List or add harvest sources
  resolve    - Resolve the label of a term IRI
  config     - Show or initialise the configuration
  db         - Database maintenance

Examples:
  harvester serve                   # Start the API on server.port
  harvester harvest --inline        # Harvest now, in this process
  harvester jobs ls --status failed # List failed harvests
  harvester scheduler set 86400     # Harvest once a day`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			am.SetConfigFile(path)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: harvester.toml in the working directory or a parent)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.HarvestCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.SchedulerCmd)
	rootCmd.AddCommand(commands.SourcesCmd)
	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
