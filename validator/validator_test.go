package validator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/rdf"
)

const conformingReport = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:sh="http://www.w3.org/ns/shacl#">
  <sh:ValidationReport rdf:about="urn:report:1">
    <sh:conforms rdf:datatype="http://www.w3.org/2001/XMLSchema#boolean">true</sh:conforms>
  </sh:ValidationReport>
</rdf:RDF>`

const violationReport = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:sh="http://www.w3.org/ns/shacl#">
  <sh:ValidationReport rdf:about="urn:report:1">
    <sh:conforms rdf:datatype="http://www.w3.org/2001/XMLSchema#boolean">false</sh:conforms>
    <sh:result rdf:resource="urn:result:1"/>
  </sh:ValidationReport>
  <sh:ValidationResult rdf:about="urn:result:1">
    <sh:resultSeverity rdf:resource="http://www.w3.org/ns/shacl#Violation"/>
  </sh:ValidationResult>
</rdf:RDF>`

const plainRDF = `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="urn:x"><rdf:value>1</rdf:value></rdf:Description>
</rdf:RDF>`

var source = Source{URI: "http://example.org/catalog.ttl", MIME: "text/turtle"}

func report(conforms string, severities ...string) *rdf.Graph {
	g := rdf.NewGraph()
	r := rdf.NewIRI("urn:report:1")
	if conforms != "" {
		g.Add(rdf.Triple{Subject: r, Predicate: rdf.NewIRI(rdf.SHConforms), Object: rdf.NewTypedLiteral(conforms, "", rdf.XSDBoolean)})
	}
	for i, sev := range severities {
		res := rdf.NewBlank("r" + string(rune('0'+i)))
		g.Add(rdf.Triple{Subject: res, Predicate: rdf.NewIRI(rdf.SHResultSeverity), Object: rdf.NewIRI(rdf.NSSH + sev)})
	}
	return g
}

func TestReportConforms(t *testing.T) {
	tests := []struct {
		name   string
		report *rdf.Graph
		strict bool
		want   bool
	}{
		{"conforms", report("true"), false, true},
		{"conforms strict", report("true"), true, true},
		{"conforms despite violation", report("true", "Violation"), true, true},
		{"not conforming strict", report("false", "Warning"), true, false},
		{"warnings only lenient", report("false", "Warning", "Info"), false, true},
		{"violation lenient", report("false", "Warning", "Violation"), false, false},
		{"empty report lenient", rdf.NewGraph(), false, true},
		{"empty report strict", rdf.NewGraph(), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReportConforms(tt.report, tt.strict))
		})
	}
}

func TestIsReport(t *testing.T) {
	assert.True(t, IsReport(report("false")))
	assert.False(t, IsReport(rdf.NewGraph()))

	typed := rdf.NewGraph()
	typed.Add(rdf.Triple{
		Subject:   rdf.NewIRI("urn:report:1"),
		Predicate: rdf.NewIRI(rdf.RDFType),
		Object:    rdf.NewIRI(rdf.SHValidationReport),
	})
	assert.True(t, IsReport(typed))
}

func TestReportConforms_IgnoresNonBooleanConforms(t *testing.T) {
	g := rdf.NewGraph()
	g.Add(rdf.Triple{
		Subject:   rdf.NewIRI("urn:report:1"),
		Predicate: rdf.NewIRI(rdf.SHConforms),
		Object:    rdf.NewIRI("http://example.org/true"),
	})
	assert.False(t, ReportConforms(g, true))
}

func TestBody(t *testing.T) {
	t.Run("breg", func(t *testing.T) {
		body := NewBReg("", nil, nil).Body(source)
		assert.Equal(t, RequestBody{
			ContentSyntax:     "text/turtle",
			ContentToValidate: "http://example.org/catalog.ttl",
			EmbeddingMethod:   "URL",
			ValidationType:    "latest",
			ReportSyntax:      "application/rdf+xml",
		}, body)

		raw, err := json.Marshal(body)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "externalRules")
	})

	t.Run("generic with default rules", func(t *testing.T) {
		v := NewGeneric("", nil, nil, nil)
		assert.Equal(t, URLGeneric, v.URL())

		body := v.Body(source)
		assert.Equal(t, "any", body.ValidationType)
		require.Len(t, body.ExternalRules, 2)
		assert.Equal(t, externalRule{RuleSet: RuleSetMDR, RuleSyntax: "text/turtle", EmbeddingMethod: "URL"}, body.ExternalRules[0])
		assert.Equal(t, RuleSetShapes, body.ExternalRules[1].RuleSet)
	})
}

func newService(t *testing.T, status int, reply string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body RequestBody
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			got.Store(body)
		}
		w.Header().Set("Content-Type", "application/rdf+xml")
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestRemoteValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("conforming report passes", func(t *testing.T) {
		srv, got := newService(t, http.StatusOK, conformingReport)
		v := NewBReg(srv.URL, srv.Client(), zaptest.NewLogger(t).Sugar())

		assert.True(t, v.Validate(ctx, source, true))
		body := got.Load().(RequestBody)
		assert.Equal(t, source.URI, body.ContentToValidate)
		assert.Equal(t, "latest", body.ValidationType)
	})

	t.Run("violation fails lenient", func(t *testing.T) {
		srv, _ := newService(t, http.StatusOK, violationReport)
		v := NewGeneric(srv.URL, nil, srv.Client(), zaptest.NewLogger(t).Sugar())

		assert.False(t, v.Validate(ctx, source, false))
	})

	t.Run("error status fails closed", func(t *testing.T) {
		srv, _ := newService(t, http.StatusBadRequest, conformingReport)
		v := NewBReg(srv.URL, srv.Client(), zaptest.NewLogger(t).Sugar())

		assert.False(t, v.Validate(ctx, source, false))
	})

	t.Run("unparseable report fails closed", func(t *testing.T) {
		srv, _ := newService(t, http.StatusOK, "<html>oops")
		v := NewBReg(srv.URL, srv.Client(), zaptest.NewLogger(t).Sugar())

		assert.False(t, v.Validate(ctx, source, false))
	})

	t.Run("reply that is not a report fails closed", func(t *testing.T) {
		replies := map[string]string{
			"empty":      "",
			"plain text": "Internal error",
			"json error": `{"message":"validation service unavailable"}`,
			"html":       "<!DOCTYPE html><html><head><title>Error</title></head><body>Bad gateway</body></html>",
			"turtle":     "@prefix ex: <http://example.org/> .\nex:a ex:b ex:c .\n",
			"other rdf":  plainRDF,
		}
		for name, reply := range replies {
			srv, _ := newService(t, http.StatusOK, reply)
			v := NewBReg(srv.URL, srv.Client(), zaptest.NewLogger(t).Sugar())

			assert.False(t, v.Validate(ctx, source, false), "%s lenient", name)
			assert.False(t, v.Validate(ctx, source, true), "%s strict", name)
		}
	})

	t.Run("unreachable service fails closed", func(t *testing.T) {
		srv, _ := newService(t, http.StatusOK, conformingReport)
		url := srv.URL
		srv.Close()

		v := NewBReg(url, http.DefaultClient, zaptest.NewLogger(t).Sugar())
		assert.False(t, v.Validate(ctx, source, false))
	})
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, AlwaysPass{}, FromConfig(am.ValidatorConfig{Disabled: true}, nil))
	assert.True(t, AlwaysPass{}.Validate(context.Background(), source, true))

	breg := FromConfig(am.ValidatorConfig{Kind: "breg"}, nil)
	require.IsType(t, &Remote{}, breg)
	assert.Equal(t, URLBReg, breg.(*Remote).URL())
	assert.Equal(t, KindBReg, breg.Name())

	generic := FromConfig(am.ValidatorConfig{
		Kind:     "generic",
		URL:      "http://validator.internal/api/validate",
		RuleSets: []string{"http://example.org/shapes.ttl"},
	}, nil).(*Remote)
	assert.Equal(t, "http://validator.internal/api/validate", generic.URL())
	body := generic.Body(source)
	require.Len(t, body.ExternalRules, 1)
	assert.Equal(t, "http://example.org/shapes.ttl", body.ExternalRules[0].RuleSet)
}
