package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
)

// ConfigCmd manages the harvester configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the harvester configuration",
	Long: `Display and manage the harvester configuration.

Configuration sources (in order of precedence):
1. Environment variables (HARVESTER_<SECTION>_<KEY>, plus the legacy
   names HARVESTER_SOURCES, HARVESTER_GRAPH_URI, BREG_TIMEOUT, ...)
2. The file given with --config
3. ./harvester.toml or the first one found in a parent directory
4. /etc/breg-harvester/harvester.toml
5. Default values

Examples:
  harvester config init                 # Write harvester.toml with defaults
  harvester config show --format json
  harvester config validate`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

var (
	configFormat string
	configForce  bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file (a backup is kept)")

	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := am.ConfigFileName
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return errors.NewInvalidRequestError("%s already exists (use --force to overwrite)", path)
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := am.WriteDefaults(path, cfg); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out, err := renderConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	if from := am.ConfigFileUsed(); from != "" && configFormat != "json" {
		fmt.Printf("# loaded from %s\n", from)
	}
	fmt.Print(out)
	return nil
}

func renderConfig(cfg *am.Config, format string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	case "yaml":
		data, err = yaml.Marshal(cfg)
	case "toml":
		data, err = toml.Marshal(cfg)
	default:
		return "", errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to marshal config to %s", format)
	}
	return string(data), nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}
