// Package validator decides whether a harvest source may be ingested.
//
// Validation is delegated to a remote SHACL service (the ITB validator)
// that dereferences the source itself and answers with a SHACL
// validation report. The package never evaluates shapes locally.
package validator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/internal/httpclient"
	"github.com/teranos/breg-harvester/rdf"
)

// Source is what a validator needs to know about a harvest source.
type Source struct {
	URI  string
	MIME string
}

// Validator reports whether src is acceptable. Implementations must not
// return errors; anything that prevents a verdict is a rejection.
type Validator interface {
	Validate(ctx context.Context, src Source, strict bool) bool
	Name() string
}

// AlwaysPass accepts every source. It is used when validation is disabled.
type AlwaysPass struct{}

func (AlwaysPass) Validate(context.Context, Source, bool) bool { return true }
func (AlwaysPass) Name() string                                { return "always-pass" }

// ReportConforms interprets a SHACL validation report. Any sh:conforms
// true passes. Otherwise strict fails, and lenient passes unless some
// result has sh:Violation severity.
func ReportConforms(report *rdf.Graph, strict bool) bool {
	for _, obj := range report.Objects(rdf.Term{}, rdf.SHConforms) {
		if isTrue(obj) {
			return true
		}
	}
	if strict {
		return false
	}
	for _, obj := range report.Objects(rdf.Term{}, rdf.SHResultSeverity) {
		if obj.IsIRI() && obj.Value == rdf.SHViolation {
			return false
		}
	}
	return true
}

// IsReport tells whether g describes a SHACL validation report.
func IsReport(g *rdf.Graph) bool {
	if len(g.Objects(rdf.Term{}, rdf.SHConforms)) > 0 {
		return true
	}
	for _, obj := range g.Objects(rdf.Term{}, rdf.RDFType) {
		if obj.IsIRI() && obj.Value == rdf.SHValidationReport {
			return true
		}
	}
	return false
}

func isTrue(t rdf.Term) bool {
	if !t.IsLiteral() {
		return false
	}
	if t.Datatype != "" && t.Datatype != rdf.XSDBoolean {
		return false
	}
	v := strings.TrimSpace(t.Value)
	return v == "true" || v == "1"
}

// FromConfig selects the validator once for a harvest.
func FromConfig(cfg am.ValidatorConfig, log *zap.SugaredLogger) Validator {
	if cfg.Disabled {
		if log != nil {
			log.Infow("Validator disabled, accepting every source")
		}
		return AlwaysPass{}
	}

	client := httpclient.New(httpclient.DefaultOptions(requestTimeout))

	if cfg.Kind == KindGeneric {
		var rules []Rule
		for _, rs := range cfg.RuleSets {
			rules = append(rules, Rule{URL: rs, Format: rdf.FormatTurtle})
		}
		return NewGeneric(cfg.URL, rules, client, log)
	}
	return NewBReg(cfg.URL, client, log)
}
