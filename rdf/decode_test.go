package rdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spainIRI = "http://publications.europa.eu/resource/authority/country/ESP"

var samples = map[Format]string{
	FormatTurtle: `@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
<` + spainIRI + `> skos:prefLabel "Spain"@en, "España"@es .
`,
	FormatNTriples: `<` + spainIRI + `> <http://www.w3.org/2004/02/skos/core#prefLabel> "Spain"@en .
<` + spainIRI + `> <http://www.w3.org/2004/02/skos/core#prefLabel> "España"@es .
`,
	FormatRDFXML: `<?xml version="1.0" encoding="utf-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:skos="http://www.w3.org/2004/02/skos/core#">
  <rdf:Description rdf:about="` + spainIRI + `">
    <skos:prefLabel xml:lang="en">Spain</skos:prefLabel>
    <skos:prefLabel xml:lang="es">España</skos:prefLabel>
  </rdf:Description>
</rdf:RDF>
`,
	FormatJSONLD: `{
  "@context": {"skos": "http://www.w3.org/2004/02/skos/core#"},
  "@id": "` + spainIRI + `",
  "skos:prefLabel": [
    {"@value": "Spain", "@language": "en"},
    {"@value": "España", "@language": "es"}
  ]
}`,
}

func TestDecode(t *testing.T) {
	for _, format := range Formats {
		t.Run(string(format), func(t *testing.T) {
			g, err := Decode([]byte(samples[format]), format, DecodeOptions{})
			require.NoError(t, err)
			assert.Equal(t, 2, g.Len())

			label, prop, ok := g.PreferredLabel(NewIRI(spainIRI), "en")
			require.True(t, ok)
			assert.Equal(t, "Spain", label.Value)
			assert.Equal(t, SKOSPrefLabel, prop)

			label, _, ok = g.PreferredLabel(NewIRI(spainIRI), "es")
			require.True(t, ok)
			assert.Equal(t, "España", label.Value)
		})
	}
}

func TestDecodeRejectsOtherSyntaxes(t *testing.T) {
	_, err := Decode([]byte(samples[FormatJSONLD]), FormatNTriples, DecodeOptions{})
	assert.Error(t, err)

	_, err = Decode([]byte("not json"), FormatJSONLD, DecodeOptions{})
	assert.Error(t, err)

	_, err = Decode([]byte("x"), Format("csv"), DecodeOptions{})
	assert.Error(t, err)
}

func TestDecodeRejectsBlankPayload(t *testing.T) {
	for _, format := range Formats {
		for _, payload := range []string{"", "  \n\t"} {
			_, err := Decode([]byte(payload), format, DecodeOptions{})
			assert.Error(t, err, "%s %q", format, payload)
		}
	}
}

func TestDecodeRDFXMLRejectsNonRDF(t *testing.T) {
	payloads := map[string]string{
		"plain text":     "error",
		"not found":      "Not Found",
		"compact json":   `{"message":"x"}`,
		"compact jsonld": `{"@id":"http://example.org/a","http://www.w3.org/2000/01/rdf-schema#label":"A"}`,
		"broken html":    "<html>oops",
		"xhtml page":     "<html><head><title>404</title></head><body><p>Not Found</p></body></html>",
		"two roots":      "<a/><b/>",
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload), FormatRDFXML, DecodeOptions{})
			assert.Error(t, err)
		})
	}
}

func TestDecodeRDFXMLAcceptsEmptyRDFDocument(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"/>`
	g, err := Decode([]byte(doc), FormatRDFXML, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestDecodeJSONLDRefusesRemoteContextWithoutClient(t *testing.T) {
	doc := `{"@context": "http://example.org/context.jsonld", "@id": "http://example.org/a", "name": "x"}`
	_, err := Decode([]byte(doc), FormatJSONLD, DecodeOptions{})
	assert.Error(t, err)
}

func TestNTriplesRoundTripKeepsLabel(t *testing.T) {
	original, err := Decode([]byte(samples[FormatTurtle]), FormatTurtle, DecodeOptions{})
	require.NoError(t, err)

	restored, err := UnmarshalNTriples(MarshalNTriples(original))
	require.NoError(t, err)

	assert.Equal(t, original.Triples(), restored.Triples())

	want, _, _ := original.PreferredLabel(NewIRI(spainIRI), "en")
	got, _, ok := restored.PreferredLabel(NewIRI(spainIRI), "en")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestMarshalNTriplesEscapes(t *testing.T) {
	g := NewGraph()
	g.Add(Triple{NewBlank("b1"), NewIRI(RDFSLabel), NewLiteral("line one\nline \"two\"")})

	out := string(MarshalNTriples(g))
	assert.Equal(t, `_:b1 <http://www.w3.org/2000/01/rdf-schema#label> "line one\nline \"two\"" .`+"\n", out)

	back, err := UnmarshalNTriples([]byte(out))
	require.NoError(t, err)
	require.Equal(t, 1, back.Len())
	assert.Equal(t, "line one\nline \"two\"", back.Triples()[0].Object.Value)
}
