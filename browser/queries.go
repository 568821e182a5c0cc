package browser

import (
	"fmt"
	"strings"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/rdf"
)

const prefixes = `PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
PREFIX dcat: <http://www.w3.org/ns/dcat#>
PREFIX dct: <http://purl.org/dc/terms/>
PREFIX foaf: <http://xmlns.com/foaf/0.1/>
`

// FacetLimit bounds how many rows a facet query returns.
const FacetLimit = 50

// Facet is a browsable term list, named by its API path.
type Facet string

const (
	FacetCatalogTaxonomy      Facet = "catalog/taxonomy"
	FacetCatalogLocation      Facet = "catalog/location"
	FacetCatalogLanguage      Facet = "catalog/language"
	FacetDatasetTheme         Facet = "dataset/theme"
	FacetCatalogPublisherType Facet = "catalog/publisher/type"
)

// Facets lists every facet in API order.
var Facets = []Facet{
	FacetCatalogTaxonomy,
	FacetCatalogLocation,
	FacetCatalogLanguage,
	FacetDatasetTheme,
	FacetCatalogPublisherType,
}

// facetPatterns bind ?object to the facet's terms.
var facetPatterns = map[Facet]string{
	FacetCatalogTaxonomy: `?subject rdf:type dcat:Catalog .
    ?subject dcat:themeTaxonomy ?object .`,
	FacetCatalogLocation: `?subject rdf:type dcat:Catalog .
    ?subject dct:spatial ?object .`,
	FacetCatalogLanguage: `?subject rdf:type dcat:Catalog .
    ?subject dct:LinguisticSystem ?object .`,
	FacetDatasetTheme: `?subject rdf:type dcat:Dataset .
    ?subject dcat:theme ?object .`,
	FacetCatalogPublisherType: `?subject rdf:type dcat:Catalog .
    ?subject dct:publisher ?publisher .
    ?publisher dct:type ?object .`,
}

// FacetQuery builds the SELECT for f over graph.
func FacetQuery(f Facet, graph string) (string, error) {
	pattern, ok := facetPatterns[f]
	if !ok {
		return "", errors.NewNotFoundError("unknown facet %q", f)
	}
	var b strings.Builder
	b.WriteString(prefixes)
	b.WriteString("SELECT DISTINCT ?object\n")
	writeFrom(&b, graph)
	b.WriteString("WHERE {\n    ")
	b.WriteString(pattern)
	fmt.Fprintf(&b, "\n} LIMIT %d", FacetLimit)
	return b.String(), nil
}

func writeFrom(b *strings.Builder, graph string) {
	if graph == "" {
		return
	}
	b.WriteString("FROM ")
	b.WriteString(rdf.NewIRI(graph).N3())
	b.WriteByte('\n')
}

// Filter keys accepted by dataset search, in SELECT order.
const (
	KeyCatalog       = "catalog"
	KeyDataset       = "dataset"
	KeyThemeTaxonomy = "themeTaxonomy"
	KeyLanguage      = "language"
	KeyTheme         = "theme"
	KeyPublisher     = "publisher"
	KeyPublisherType = "publisherType"
	KeyLocation      = "location"
)

var filterKeys = []string{
	KeyCatalog,
	KeyDataset,
	KeyThemeTaxonomy,
	KeyLanguage,
	KeyTheme,
	KeyPublisher,
	KeyPublisherType,
	KeyLocation,
}

var searchPatterns = []string{
	"?catalog rdf:type dcat:Catalog .",
	"?dataset rdf:type dcat:Dataset .",
	"?catalog dcat:dataset ?dataset .",
	"?catalog dcat:themeTaxonomy ?themeTaxonomy .",
	"?catalog dct:LinguisticSystem ?language .",
	"?dataset dcat:theme ?theme .",
	"?catalog dct:publisher ?publisher .",
	"?publisher dct:type ?publisherType .",
	"?catalog dct:spatial ?location .",
}

// Filters restrict dataset search: each key maps to the N3 terms its
// variable may take. Unknown keys are ignored.
type Filters map[string][]string

// normalize parses every value as an N3 term and returns the filters
// in canonical form, keyed in SELECT order.
func (f Filters) normalize() ([][2]string, error) {
	var out [][2]string
	for _, key := range filterKeys {
		values, ok := f[key]
		if !ok || len(values) == 0 {
			continue
		}
		terms := make([]string, 0, len(values))
		for _, v := range values {
			t, err := rdf.ParseN3(v)
			if err != nil {
				return nil, errors.NewInvalidRequestError("filter %s: %s", key, err.Error())
			}
			terms = append(terms, t.N3())
		}
		out = append(out, [2]string{key, strings.Join(terms, ", ")})
	}
	return out, nil
}

// SearchQuery builds the dataset search SELECT. Filter values must be
// valid N3 terms.
func SearchQuery(filters Filters, limit int, graph string) (string, error) {
	clauses, err := filters.normalize()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(prefixes)
	b.WriteString("SELECT")
	for _, key := range filterKeys {
		b.WriteString(" ?")
		b.WriteString(key)
	}
	b.WriteByte('\n')
	writeFrom(&b, graph)
	b.WriteString("WHERE {\n")
	for _, p := range searchPatterns {
		b.WriteString("    ")
		b.WriteString(p)
		b.WriteByte('\n')
	}
	if len(clauses) > 0 {
		parts := make([]string, len(clauses))
		for i, c := range clauses {
			parts[i] = fmt.Sprintf("?%s IN (%s)", c[0], c[1])
		}
		fmt.Fprintf(&b, "    FILTER (%s)\n", strings.Join(parts, " && "))
	}
	fmt.Fprintf(&b, "} LIMIT %d", limit)
	return b.String(), nil
}

// DatasetsQuery selects the details of the given datasets.
func DatasetsQuery(datasets []rdf.Term, graph string) string {
	n3 := make([]string, len(datasets))
	for i, d := range datasets {
		n3[i] = d.N3()
	}

	var b strings.Builder
	b.WriteString(prefixes)
	b.WriteString("SELECT ?catalog ?dataset ?description ?identifier ?title ?distribution ?distributionURL ?distributionType ?datasetSpatial ?theme\n")
	writeFrom(&b, graph)
	b.WriteString(`WHERE {
    ?catalog rdf:type dcat:Catalog .
    ?dataset rdf:type dcat:Dataset .
    ?catalog dcat:dataset ?dataset .
    ?dataset dct:description ?description .
    ?dataset dct:identifier ?identifier .
    ?dataset dct:title ?title .
    ?dataset dcat:distribution ?distribution .
    ?distribution dcat:accessURL ?distributionURL .
    ?distribution dcat:mediaType ?distributionType .
    ?dataset dct:spatial ?datasetSpatial .
    ?dataset dcat:theme ?theme .
`)
	fmt.Fprintf(&b, "    FILTER (?dataset IN (%s))\n}", strings.Join(n3, ", "))
	return b.String()
}
