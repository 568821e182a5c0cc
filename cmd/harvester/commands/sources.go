package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/harvest"
)

// SourcesCmd lists and declares harvest sources
var SourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List or add harvest sources",
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List the configured sources",
	RunE:    runSourcesList,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <uri> <type>",
	Short: "Declare a new source in the config file",
	Long: `Append a source to harvest.sources in the config file.

The type is xml, turtle, nt or json-ld, or the matching MIME type.

Example:
  harvester sources add https://example.org/catalog.ttl turtle`,
	Args: cobra.ExactArgs(2),
	RunE: runSourcesAdd,
}

func init() {
	SourcesCmd.AddCommand(sourcesListCmd)
	SourcesCmd.AddCommand(sourcesAddCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sources, err := harvest.SourcesFromConfig(cfg)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		pterm.Info.Println("No sources configured")
		return nil
	}

	rows := pterm.TableData{{"URI", "TYPE", "MIME"}}
	for _, src := range sources {
		rows = append(rows, []string{src.URI, string(src.Type), src.MIME()})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	return nil
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	src, err := harvest.NewSource(args[0], args[1])
	if err != nil {
		return err
	}
	cfg, err := am.Load()
	if err != nil {
		return err
	}

	path := am.ConfigFileUsed()
	if path == "" {
		path = am.ConfigFileName
	}
	if err := addSource(cfg, path, src); err != nil {
		return err
	}
	pterm.Success.Printf("Added %s (%s) to %s\n", src.URI, src.Type, path)
	return nil
}

// addSource rewrites harvest.sources in path as [uri, type] pairs with
// src appended. Sources from harvest.sources_file stay where they are.
func addSource(cfg *am.Config, path string, src harvest.Source) error {
	specs, err := cfg.SourceSpecs()
	if err != nil {
		return err
	}
	pairs := make([][]string, 0, len(specs)+1)
	for _, spec := range specs {
		if spec.URI == src.URI {
			continue
		}
		pairs = append(pairs, []string{spec.URI, spec.Type})
	}
	pairs = append(pairs, []string{src.URI, string(src.Type)})
	return am.SaveSetting(path, "harvest.sources", pairs)
}
