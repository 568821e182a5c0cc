package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/rdf"
	"github.com/teranos/breg-harvester/resolver"
	"github.com/teranos/breg-harvester/termcache"
)

const resolveTimeout = 30 * time.Second

// ResolveCmd looks up the label of an IRI the way the catalog browser does
var ResolveCmd = &cobra.Command{
	Use:   "resolve <iri>",
	Short: "Resolve the label of an IRI",
	Long: `Dereference an IRI and print its label in the configured language.
Documents are cached in the term cache; failures are remembered.

Examples:
  harvester resolve http://purl.org/dc/terms/title
  harvester resolve "<http://www.w3.org/ns/dcat#Dataset>" --ext`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var resolveExt bool

func init() {
	ResolveCmd.Flags().BoolVar(&resolveExt, "ext", false, "Also follow rdfs:isDefinedBy and the namespace document")
}

func runResolve(cmd *cobra.Command, args []string) error {
	term, err := parseTermArg(args[0])
	if err != nil {
		return err
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

	cache, err := termcache.FromConfig(cfg.TermCache, database, logger.Logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	result := resolver.FromConfig(cfg.Resolver, cache, logger.Logger).Resolve(ctx, term, resolveExt)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode result")
	}
	fmt.Println(string(out))
	return nil
}

// parseTermArg accepts a bare IRI or an N3 term.
func parseTermArg(arg string) (rdf.Term, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "<") || strings.HasPrefix(arg, "\"") || strings.HasPrefix(arg, "_:") {
		return rdf.ParseN3(arg)
	}
	if arg == "" {
		return rdf.Term{}, errors.NewInvalidRequestError("empty IRI")
	}
	return rdf.NewIRI(arg), nil
}
