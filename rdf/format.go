package rdf

import (
	"fmt"
	"strings"

	"github.com/teranos/breg-harvester/errors"
)

// Format is an RDF serialization, named as in source declarations.
type Format string

const (
	FormatRDFXML   Format = "xml"
	FormatTurtle   Format = "turtle"
	FormatJSONLD   Format = "json-ld"
	FormatNTriples Format = "nt"
)

// Formats lists every supported format.
var Formats = []Format{FormatRDFXML, FormatTurtle, FormatJSONLD, FormatNTriples}

var mimeTypes = map[Format]string{
	FormatRDFXML:   "application/rdf+xml",
	FormatTurtle:   "text/turtle",
	FormatJSONLD:   "application/ld+json",
	FormatNTriples: "application/n-triples",
}

// MIMEType returns the media type for the format, or "" when unknown.
func (f Format) MIMEType() string { return mimeTypes[f] }

func (f Format) Valid() bool {
	_, ok := mimeTypes[f]
	return ok
}

func (f Format) String() string { return string(f) }

// ParseFormat accepts a format name ("xml", "turtle", "json-ld", "nt")
// or one of the MIME types.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if f := Format(s); f.Valid() {
		return f, nil
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	for f, mime := range mimeTypes {
		if s == mime {
			return f, nil
		}
	}
	switch s {
	case "rdf", "rdfxml", "rdf/xml", "application/xml", "text/xml":
		return FormatRDFXML, nil
	case "ttl":
		return FormatTurtle, nil
	case "jsonld":
		return FormatJSONLD, nil
	case "ntriples", "n-triples":
		return FormatNTriples, nil
	}
	return "", errors.Newf("unknown RDF format %q", s)
}

// AcceptHeader lists the RDF media types in the given preference order.
func AcceptHeader(formats []Format) string {
	parts := make([]string, 0, len(formats)+1)
	for i, f := range formats {
		q := 10 - i
		if q < 1 {
			q = 1
		}
		if q == 10 {
			parts = append(parts, f.MIMEType())
		} else {
			parts = append(parts, fmt.Sprintf("%s;q=0.%d", f.MIMEType(), q))
		}
	}
	return strings.Join(append(parts, "*/*;q=0.1"), ", ")
}
