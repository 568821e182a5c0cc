package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/metrics"
	"github.com/teranos/breg-harvester/rdf"
	"github.com/teranos/breg-harvester/rdf/sniff"
)

// Public ITB endpoints
const (
	URLGeneric = "https://www.itb.ec.europa.eu/shacl/any/api/validate"
	URLBReg    = "https://www.itb.ec.europa.eu/shacl/bregdcat-ap/api/validate"
)

// BRegDCAT-AP 2.00 SHACL files used as external rules by the generic validator
const (
	RuleSetMDR = "https://joinup.ec.europa.eu/sites/default/files/distribution/access_url/2020-07/" +
		"404077ab-f8aa-4580-a436-741ae42e0c3a/BRegDCAT-AP_shacl_mdr-vocabularies_2.00.ttl"
	RuleSetShapes = "https://joinup.ec.europa.eu/sites/default/files/distribution/access_url/2020-07/" +
		"24180c3dc-b405-49c8-91f0-8d3a7fe51e9e/BRegDCAT-AP_shacl_shapes_2.00.ttl"
)

// Validator kinds accepted in validator.kind
const (
	KindBReg    = "breg"
	KindGeneric = "generic"
)

const (
	validationTypeAny    = "any"
	validationTypeLatest = "latest"
	embeddingMethodURL   = "URL"

	// The service downloads the source itself, which can be slow
	requestTimeout = 2 * time.Minute
	maxReportSize  = 32 << 20
)

// Reports are requested as RDF/XML and read only as such.
var reportFormats = []rdf.Format{rdf.FormatRDFXML}

// Rule is an external SHACL rule set passed to the generic validator.
type Rule struct {
	URL    string
	Format rdf.Format
}

// DefaultRules are the BRegDCAT-AP vocabularies and shapes.
var DefaultRules = []Rule{
	{URL: RuleSetMDR, Format: rdf.FormatTurtle},
	{URL: RuleSetShapes, Format: rdf.FormatTurtle},
}

type externalRule struct {
	RuleSet         string `json:"ruleSet"`
	RuleSyntax      string `json:"ruleSyntax"`
	EmbeddingMethod string `json:"embeddingMethod"`
}

// RequestBody is the JSON document posted to the validation service.
type RequestBody struct {
	ContentSyntax     string         `json:"contentSyntax"`
	ContentToValidate string         `json:"contentToValidate"`
	EmbeddingMethod   string         `json:"embeddingMethod"`
	ValidationType    string         `json:"validationType"`
	ReportSyntax      string         `json:"reportSyntax"`
	ExternalRules     []externalRule `json:"externalRules,omitempty"`
}

// Remote validates sources against a remote SHACL validation service.
type Remote struct {
	name           string
	url            string
	validationType string
	rules          []Rule
	client         *http.Client
	parser         *sniff.Parser
	logger         *zap.SugaredLogger
}

// NewGeneric validates with the service's "any" type and the given
// external rule sets. Empty url and rules select the public endpoint
// and DefaultRules.
func NewGeneric(url string, rules []Rule, client *http.Client, log *zap.SugaredLogger) *Remote {
	if url == "" {
		url = URLGeneric
	}
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return newRemote(KindGeneric, url, validationTypeAny, rules, client, log)
}

// NewBReg validates with the BRegDCAT-AP service's latest shapes.
func NewBReg(url string, client *http.Client, log *zap.SugaredLogger) *Remote {
	if url == "" {
		url = URLBReg
	}
	return newRemote(KindBReg, url, validationTypeLatest, nil, client, log)
}

func newRemote(name, url, validationType string, rules []Rule, client *http.Client, log *zap.SugaredLogger) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With(logger.FieldComponent, "validator", logger.FieldValidator, name)
	return &Remote{
		name:           name,
		url:            url,
		validationType: validationType,
		rules:          rules,
		client:         client,
		parser:         sniff.New(nil, log),
		logger:         log,
	}
}

func (r *Remote) Name() string { return r.name }

// URL is the validation endpoint.
func (r *Remote) URL() string { return r.url }

// Body builds the request for src.
func (r *Remote) Body(src Source) RequestBody {
	body := RequestBody{
		ContentSyntax:     src.MIME,
		ContentToValidate: src.URI,
		EmbeddingMethod:   embeddingMethodURL,
		ValidationType:    r.validationType,
		ReportSyntax:      rdf.FormatRDFXML.MIMEType(),
	}
	for _, rule := range r.rules {
		body.ExternalRules = append(body.ExternalRules, externalRule{
			RuleSet:         rule.URL,
			RuleSyntax:      rule.Format.MIMEType(),
			EmbeddingMethod: embeddingMethodURL,
		})
	}
	return body
}

// Validate asks the service about src. Transport, status and report
// errors reject the source.
func (r *Remote) Validate(ctx context.Context, src Source, strict bool) bool {
	pass, err := r.validate(ctx, src, strict)
	if err != nil {
		r.logger.Warnw("Validation request failed",
			logger.FieldSource, src.URI,
			logger.FieldURL, r.url,
			logger.FieldError, err)
		pass = false
	}
	metrics.RecordValidation(r.name, pass)
	r.logger.Infow("Validated source", logger.FieldSource, src.URI, logger.FieldStrict, strict, "conforms", pass)
	return pass
}

func (r *Remote) validate(ctx context.Context, src Source, strict bool) (bool, error) {
	payload, err := json.Marshal(r.Body(src))
	if err != nil {
		return false, errors.Wrap(err, "encode validation request")
	}
	r.logger.Debugw("Requesting validation", logger.FieldSource, src.URI, "body", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return false, errors.Wrap(err, "build validation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", rdf.FormatRDFXML.MIMEType())

	resp, err := r.client.Do(req)
	if err != nil {
		return false, errors.NewFetchError(err, "post %s", r.url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReportSize))
	if err != nil {
		return false, errors.NewFetchError(err, "read report from %s", r.url)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, errors.WithDetailf(
			errors.NewFetchError(errors.Newf("status %d", resp.StatusCode), "validate %s", src.URI),
			"body: %s", truncate(data, 512))
	}

	report, _, err := r.parser.Parse(ctx, data, r.url, reportFormats)
	if err != nil {
		return false, err
	}
	if !IsReport(report) {
		return false, errors.NewValidationError("response for %s is not a SHACL validation report", src.URI)
	}
	r.logger.Debugw("Validation report", logger.FieldSource, src.URI, logger.FieldTriples, report.Len())
	return ReportConforms(report, strict), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
