// Package harvest ingests declared RDF sources into a named graph of the
// triple store: each source is validated, fetched, decoded in its
// declared syntax and inserted, and the graph size is reported.
package harvest

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/rdf"
	"github.com/teranos/breg-harvester/validator"
)

// DataType is the declared serialization of a source.
type DataType = rdf.Format

// Source is one declared (uri, type) pair.
type Source struct {
	URI  string   `json:"uri" yaml:"uri"`
	Type DataType `json:"data_type" yaml:"type"`
}

// SourceOutcome describes an accepted source in results and API responses.
type SourceOutcome struct {
	URI      string `json:"uri"`
	DataType string `json:"data_type"`
	MIME     string `json:"mime"`
	Format   string `json:"format"`
}

// NewSource checks the declared type and returns the source.
// Types may be given by name ("turtle") or MIME type ("text/turtle").
func NewSource(uri, dataType string) (Source, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Source{}, errors.NewConfigurationError("source uri is empty")
	}
	format, err := rdf.ParseFormat(dataType)
	if err != nil {
		return Source{}, errors.Mark(errors.Wrapf(err, "source %s", uri), errors.ErrConfiguration)
	}
	return Source{URI: uri, Type: format}, nil
}

func (s Source) MIME() string { return s.Type.MIMEType() }

// Outcome is the serializable description of s.
func (s Source) Outcome() SourceOutcome {
	return SourceOutcome{
		URI:      s.URI,
		DataType: string(s.Type),
		MIME:     s.MIME(),
		Format:   string(s.Type),
	}
}

// ToMap yields {uri, data_type, mime, format}.
func (s Source) ToMap() map[string]string {
	o := s.Outcome()
	return map[string]string{
		"uri":       o.URI,
		"data_type": o.DataType,
		"mime":      o.MIME,
		"format":    o.Format,
	}
}

// validatorSource is what the validation service gets to see.
func (s Source) validatorSource() validator.Source {
	return validator.Source{URI: s.URI, MIME: s.MIME()}
}

// SourcesFromSpecs checks every spec and keeps the declared order.
func SourcesFromSpecs(specs []am.SourceSpec) ([]Source, error) {
	sources := make([]Source, 0, len(specs))
	for i, spec := range specs {
		src, err := NewSource(spec.URI, spec.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "source %d", i)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// SourcesFromConfig returns harvest.sources followed by the entries of
// harvest.sources_file, if one is set.
func SourcesFromConfig(cfg *am.Config) ([]Source, error) {
	if cfg == nil {
		return nil, nil
	}
	specs, err := cfg.SourceSpecs()
	if err != nil {
		return nil, err
	}
	sources, err := SourcesFromSpecs(specs)
	if err != nil {
		return nil, err
	}
	if cfg.Harvest.SourcesFile != "" {
		fromFile, err := LoadSourcesFile(cfg.Harvest.SourcesFile)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fromFile...)
	}
	return sources, nil
}

type sourcesFile struct {
	Sources []am.SourceSpec `yaml:"sources"`
}

// LoadSourcesFile reads sources from YAML:
//
//	sources:
//	  - uri: https://example.org/catalog.ttl
//	    type: turtle
func LoadSourcesFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read sources file %s", path), errors.ErrConfiguration)
	}
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse sources file %s", path), errors.ErrConfiguration)
	}
	sources, err := SourcesFromSpecs(file.Sources)
	if err != nil {
		return nil, errors.Wrapf(err, "sources file %s", path)
	}
	return sources, nil
}

// Outcomes describes sources for responses; nil in, nil out.
func Outcomes(sources []Source) []SourceOutcome {
	if sources == nil {
		return nil
	}
	out := make([]SourceOutcome, len(sources))
	for i, s := range sources {
		out[i] = s.Outcome()
	}
	return out
}
