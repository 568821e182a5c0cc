package am

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teranos/breg-harvester/errors"
)

// SourceSpecs returns the declared harvest sources.
//
// harvest.sources accepts the original JSON encoding
// ([["http://example.org/a.ttl", "turtle"], ...]) when it comes from the
// environment, or an array of pairs / tables when it comes from TOML.
// An empty value yields no sources and no error.
func (c *Config) SourceSpecs() ([]SourceSpec, error) {
	switch raw := c.Harvest.Sources.(type) {
	case nil:
		return nil, nil
	case string:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, nil
		}
		var pairs [][]string
		if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "harvest.sources is not a JSON list of [uri, type] pairs"), errors.ErrConfiguration)
		}
		specs := make([]SourceSpec, 0, len(pairs))
		for i, pair := range pairs {
			if len(pair) != 2 {
				return nil, errors.NewConfigurationError("harvest.sources[%d]: expected [uri, type], got %d items", i, len(pair))
			}
			specs = append(specs, SourceSpec{URI: pair[0], Type: pair[1]})
		}
		return specs, nil
	case []interface{}:
		specs := make([]SourceSpec, 0, len(raw))
		for i, item := range raw {
			spec, err := specFromValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "harvest.sources[%d]", i)
			}
			specs = append(specs, spec)
		}
		return specs, nil
	default:
		return nil, errors.NewConfigurationError("harvest.sources has unsupported type %T", raw)
	}
}

func specFromValue(item interface{}) (SourceSpec, error) {
	switch v := item.(type) {
	case []interface{}:
		if len(v) != 2 {
			return SourceSpec{}, errors.NewConfigurationError("expected [uri, type], got %d items", len(v))
		}
		return SourceSpec{URI: fmt.Sprint(v[0]), Type: fmt.Sprint(v[1])}, nil
	case map[string]interface{}:
		uri, _ := v["uri"].(string)
		typ, _ := v["type"].(string)
		if uri == "" || typ == "" {
			return SourceSpec{}, errors.NewConfigurationError("expected {uri, type} table")
		}
		return SourceSpec{URI: uri, Type: typ}, nil
	default:
		return SourceSpec{}, errors.NewConfigurationError("unsupported source entry %T", item)
	}
}
