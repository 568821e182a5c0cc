package rdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermN3(t *testing.T) {
	tests := []struct {
		name string
		term Term
		want string
	}{
		{"iri", NewIRI("http://example.org/a"), "<http://example.org/a>"},
		{"blank", NewBlank("_:b0"), "_:b0"},
		{"plain literal", NewLiteral("hello"), `"hello"`},
		{"lang literal", NewLangLiteral("hello", "EN"), `"hello"@en`},
		{"typed literal", NewTypedLiteral("1", "", XSDInteger), `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"xsd string is plain", NewTypedLiteral("x", "", XSDString), `"x"`},
		{"escaped", NewLiteral("a \"quoted\"\nline\\"), `"a \"quoted\"\nline\\"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.term.N3())
		})
	}
}

func TestParseN3RoundTrip(t *testing.T) {
	for _, term := range []Term{
		NewIRI("http://example.org/a#b"),
		NewBlank("n1"),
		NewLiteral("plain"),
		NewLangLiteral("Spain", "en"),
		NewTypedLiteral("true", "", XSDBoolean),
		NewLiteral("tab\tand \"quotes\""),
	} {
		parsed, err := ParseN3(term.N3())
		require.NoError(t, err, term.N3())
		assert.Equal(t, term, parsed)
	}
}

func TestParseN3Rejects(t *testing.T) {
	for _, s := range []string{
		"",
		"http://example.org/a",
		"<http://example.org/a> } INSERT DATA {",
		"<http://example.org/a",
		`"open`,
		`"x"junk`,
		"_:",
	} {
		_, err := ParseN3(s)
		assert.Error(t, err, s)
	}
}

func TestTermClass(t *testing.T) {
	assert.Equal(t, "URIRef", NewIRI("http://x").Class())
	assert.Equal(t, "Literal", NewLiteral("x").Class())
	assert.Equal(t, "BNode", NewBlank("b").Class())
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"xml":                        FormatRDFXML,
		"turtle":                     FormatTurtle,
		"nt":                         FormatNTriples,
		"json-ld":                    FormatJSONLD,
		"application/rdf+xml":        FormatRDFXML,
		"text/turtle; charset=utf-8": FormatTurtle,
		"application/ld+json":        FormatJSONLD,
		"application/n-triples":      FormatNTriples,
		"TTL":                        FormatTurtle,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestAcceptHeader(t *testing.T) {
	h := AcceptHeader([]Format{FormatRDFXML, FormatTurtle})
	assert.Equal(t, "application/rdf+xml, text/turtle;q=0.9, */*;q=0.1", h)
}

func TestGraphDeduplicatesAndKeepsOrder(t *testing.T) {
	s := NewIRI("http://example.org/s")
	p := NewIRI(RDFSLabel)

	g := NewGraph()
	assert.True(t, g.Add(Triple{s, p, NewLiteral("b")}))
	assert.True(t, g.Add(Triple{s, p, NewLiteral("a")}))
	assert.False(t, g.Add(Triple{s, p, NewLiteral("b")}))

	require.Equal(t, 2, g.Len())
	assert.Equal(t, NewLiteral("b"), g.Triples()[0].Object)
	assert.Equal(t, NewLiteral("a"), g.Triples()[1].Object)
}

func TestPreferredLabel(t *testing.T) {
	s := NewIRI("http://example.org/es")
	other := NewIRI("http://example.org/fr")

	t.Run("prefLabel wins over rdfs:label", func(t *testing.T) {
		g := NewGraph()
		g.Add(Triple{s, NewIRI(RDFSLabel), NewLangLiteral("Spain (label)", "en")})
		g.Add(Triple{s, NewIRI(SKOSPrefLabel), NewLangLiteral("Spain", "en")})

		label, prop, ok := g.PreferredLabel(s, "en")
		require.True(t, ok)
		assert.Equal(t, "Spain", label.Value)
		assert.Equal(t, SKOSPrefLabel, prop)
	})

	t.Run("language must match", func(t *testing.T) {
		g := NewGraph()
		g.Add(Triple{s, NewIRI(SKOSPrefLabel), NewLangLiteral("España", "es")})
		g.Add(Triple{s, NewIRI(RDFSLabel), NewLangLiteral("Spain", "en")})
		g.Add(Triple{s, NewIRI(RDFSLabel), NewLiteral("untagged")})

		label, prop, ok := g.PreferredLabel(s, "en")
		require.True(t, ok)
		assert.Equal(t, "Spain", label.Value)
		assert.Equal(t, RDFSLabel, prop)
	})

	t.Run("first in document order", func(t *testing.T) {
		g := NewGraph()
		g.Add(Triple{s, NewIRI(SKOSPrefLabel), NewLangLiteral("First", "en")})
		g.Add(Triple{s, NewIRI(SKOSPrefLabel), NewLangLiteral("Second", "en")})

		label, _, ok := g.PreferredLabel(s, "en")
		require.True(t, ok)
		assert.Equal(t, "First", label.Value)
	})

	t.Run("other subjects are ignored", func(t *testing.T) {
		g := NewGraph()
		g.Add(Triple{other, NewIRI(SKOSPrefLabel), NewLangLiteral("France", "en")})

		_, _, ok := g.PreferredLabel(s, "en")
		assert.False(t, ok)
	})
}

func TestRelabelBlanks(t *testing.T) {
	g := NewGraph()
	pub := NewIRI("http://example.org/publisher")
	g.Add(Triple{Subject: NewIRI("http://example.org/cat"), Predicate: pub, Object: NewBlank("_:b1")})
	g.Add(Triple{Subject: NewBlank("_:b1"), Predicate: NewIRI(RDFSLabel), Object: NewLiteral("Org")})

	out := g.RelabelBlanks("run1-")
	require.Equal(t, 2, out.Len())
	assert.Equal(t, NewBlank("run1-b1"), out.Triples()[0].Object)
	assert.Equal(t, NewBlank("run1-b1"), out.Triples()[1].Subject)
	assert.Equal(t, NewLiteral("Org"), out.Triples()[1].Object)
	assert.Equal(t, NewBlank("b1"), g.Triples()[0].Object, "source graph is untouched")
}

func TestValidIRI(t *testing.T) {
	assert.True(t, ValidIRI("http://example.org/a?b=c#d"))
	assert.False(t, ValidIRI(""))
	assert.False(t, ValidIRI("http://example.org/a b"))
	assert.False(t, ValidIRI("http://example.org/<a>"))

	// N3 output of an invalid IRI does not parse back to the same value
	term := NewIRI("http://example.org/a b")
	assert.Equal(t, "<http://example.org/a%20b>", term.N3())
	back, err := ParseN3(term.N3())
	require.NoError(t, err)
	assert.NotEqual(t, term, back)
}
