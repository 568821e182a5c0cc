package rdf

// Namespaces
const (
	NSRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS = "http://www.w3.org/2000/01/rdf-schema#"
	NSXSD  = "http://www.w3.org/2001/XMLSchema#"
	NSSKOS = "http://www.w3.org/2004/02/skos/core#"
	NSDCAT = "http://www.w3.org/ns/dcat#"
	NSDCT  = "http://purl.org/dc/terms/"
	NSFOAF = "http://xmlns.com/foaf/0.1/"
	NSSH   = "http://www.w3.org/ns/shacl#"
)

const (
	RDFType       = NSRDF + "type"
	RDFLangString = NSRDF + "langString"
	RDFSLabel     = NSRDFS + "label"
	XSDString     = NSXSD + "string"
	XSDBoolean    = NSXSD + "boolean"
	XSDInteger    = NSXSD + "integer"
	SKOSPrefLabel = NSSKOS + "prefLabel"

	SHConforms         = NSSH + "conforms"
	SHResultSeverity   = NSSH + "resultSeverity"
	SHViolation        = NSSH + "Violation"
	SHValidationReport = NSSH + "ValidationReport"
)

// LabelProperties are consulted in order by PreferredLabel.
var LabelProperties = []string{SKOSPrefLabel, RDFSLabel}
