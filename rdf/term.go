// Package rdf is the small RDF model the harvester needs: terms with a
// canonical N3 form, ordered graphs, format metadata, decoders for the
// four source syntaxes and an N-Triples encoder.
package rdf

import (
	"fmt"
	"strings"

	"github.com/teranos/breg-harvester/errors"
)

// TermKind distinguishes IRIs, literals and blank nodes
type TermKind int

const (
	KindIRI TermKind = iota
	KindLiteral
	KindBlank
)

// Term is an immutable RDF term.
// Literals typed xsd:string are normalised to plain literals and
// language-tagged literals carry no datatype.
type Term struct {
	Kind     TermKind
	Value    string
	Language string
	Datatype string
}

func NewIRI(iri string) Term { return Term{Kind: KindIRI, Value: iri} }

func NewBlank(id string) Term { return Term{Kind: KindBlank, Value: strings.TrimPrefix(id, "_:")} }

func NewLiteral(lexical string) Term { return Term{Kind: KindLiteral, Value: lexical} }

func NewLangLiteral(lexical, lang string) Term {
	return Term{Kind: KindLiteral, Value: lexical, Language: strings.ToLower(lang)}
}

// NewTypedLiteral builds a literal, applying the normalisation rules of Term.
func NewTypedLiteral(lexical, lang, datatype string) Term {
	if lang != "" {
		return NewLangLiteral(lexical, lang)
	}
	if datatype == XSDString || datatype == RDFLangString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: lexical, Datatype: datatype}
}

func (t Term) IsIRI() bool     { return t.Kind == KindIRI }
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }
func (t Term) IsBlank() bool   { return t.Kind == KindBlank }
func (t Term) IsZero() bool    { return t == (Term{}) }

// N3 returns the canonical form used as cache key and for equality:
// <iri>, "lexical", "lexical"@lang, "lexical"^^<datatype> or _:id.
func (t Term) N3() string {
	switch t.Kind {
	case KindIRI:
		return "<" + escapeIRI(t.Value) + ">"
	case KindBlank:
		return "_:" + t.Value
	default:
		var b strings.Builder
		b.WriteByte('"')
		b.WriteString(escapeLiteral(t.Value))
		b.WriteByte('"')
		if t.Language != "" {
			b.WriteByte('@')
			b.WriteString(t.Language)
		} else if t.Datatype != "" {
			b.WriteString("^^<")
			b.WriteString(escapeIRI(t.Datatype))
			b.WriteByte('>')
		}
		return b.String()
	}
}

func (t Term) String() string { return t.N3() }

// Class names the term kind the way API clients expect it.
func (t Term) Class() string {
	switch t.Kind {
	case KindIRI:
		return "URIRef"
	case KindBlank:
		return "BNode"
	default:
		return "Literal"
	}
}

// ParseN3 parses a single term in canonical form.
func ParseN3(s string) (Term, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "<"):
		if !strings.HasSuffix(s, ">") || len(s) < 3 {
			return Term{}, errors.Newf("unterminated IRI %q", s)
		}
		iri := s[1 : len(s)-1]
		if !ValidIRI(iri) {
			return Term{}, errors.Newf("invalid character in IRI %q", s)
		}
		return NewIRI(iri), nil

	case strings.HasPrefix(s, "_:"):
		id := s[2:]
		if id == "" || strings.ContainsAny(id, " \t\n<>\"") {
			return Term{}, errors.Newf("invalid blank node %q", s)
		}
		return NewBlank(id), nil

	case strings.HasPrefix(s, "\""):
		end := closingQuote(s)
		if end < 0 {
			return Term{}, errors.Newf("unterminated literal %q", s)
		}
		lexical, err := unescapeLiteral(s[1:end])
		if err != nil {
			return Term{}, err
		}
		rest := s[end+1:]
		switch {
		case rest == "":
			return NewLiteral(lexical), nil
		case strings.HasPrefix(rest, "@") && len(rest) > 1:
			return NewLangLiteral(lexical, rest[1:]), nil
		case strings.HasPrefix(rest, "^^"):
			dt, err := ParseN3(rest[2:])
			if err != nil || !dt.IsIRI() {
				return Term{}, errors.Newf("invalid datatype in %q", s)
			}
			return NewTypedLiteral(lexical, "", dt.Value), nil
		}
		return Term{}, errors.Newf("unexpected suffix in literal %q", s)
	}
	return Term{}, errors.Newf("not an N3 term: %q", s)
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string { return literalEscaper.Replace(s) }

func unescapeLiteral(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.New("dangling escape in literal")
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			return "", errors.Newf("unsupported escape \\%c in literal", s[i])
		}
	}
	return b.String(), nil
}

// iriForbidden are the characters N-Triples does not allow inside <>.
const iriForbidden = "<>\"{}|^`\\ \n"

// ValidIRI reports whether iri can be written in N-Triples as is. Other
// IRIs are percent-encoded by N3, so they do not survive a round trip
// through a serialized document unchanged.
func ValidIRI(iri string) bool {
	return iri != "" && !strings.ContainsAny(iri, iriForbidden)
}

// escapeIRI percent-encodes the few characters N-Triples forbids inside <>.
// The result names a different IRI; see ValidIRI.
func escapeIRI(s string) string {
	if !strings.ContainsAny(s, iriForbidden) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<', '>', '"', '{', '}', '|', '^', '`', '\\', ' ', '\n':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
