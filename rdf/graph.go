package rdf

import "strings"

// Triple is one statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func (t Triple) key() string {
	return t.Subject.N3() + " " + t.Predicate.N3() + " " + t.Object.N3()
}

// Graph is a set of triples that remembers insertion order.
// Enumeration follows the order triples were first added, which for a
// decoded document is document order.
// A Graph is not safe for concurrent mutation.
type Graph struct {
	triples []Triple
	seen    map[string]struct{}
}

func NewGraph() *Graph {
	return &Graph{seen: make(map[string]struct{})}
}

// Add inserts t unless an equal triple is already present. It reports
// whether the graph changed.
func (g *Graph) Add(t Triple) bool {
	k := t.key()
	if _, ok := g.seen[k]; ok {
		return false
	}
	g.seen[k] = struct{}{}
	g.triples = append(g.triples, t)
	return true
}

// Merge adds every triple of other.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	for _, t := range other.triples {
		g.Add(t)
	}
}

// RelabelBlanks returns a copy of g with prefix put in front of every
// blank node identifier. Decoders number blank nodes per document, so
// graphs decoded separately must be relabelled before they share a store.
func (g *Graph) RelabelBlanks(prefix string) *Graph {
	out := NewGraph()
	for _, t := range g.Triples() {
		out.Add(Triple{
			Subject:   relabelBlank(t.Subject, prefix),
			Predicate: t.Predicate,
			Object:    relabelBlank(t.Object, prefix),
		})
	}
	return out
}

func relabelBlank(t Term, prefix string) Term {
	if !t.IsBlank() {
		return t
	}
	return NewBlank(prefix + t.Value)
}

func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.triples)
}

// Triples returns the triples in insertion order. The slice must not be modified.
func (g *Graph) Triples() []Triple {
	if g == nil {
		return nil
	}
	return g.triples
}

func (g *Graph) Has(t Triple) bool {
	if g == nil {
		return false
	}
	_, ok := g.seen[t.key()]
	return ok
}

// Objects returns the objects of (subject, predicate, *) in order.
// A zero subject matches any subject.
func (g *Graph) Objects(subject Term, predicate string) []Term {
	var out []Term
	for _, t := range g.Triples() {
		if t.Predicate.Value != predicate || !t.Predicate.IsIRI() {
			continue
		}
		if !subject.IsZero() && t.Subject != subject {
			continue
		}
		out = append(out, t.Object)
	}
	return out
}

// PreferredLabel returns the first literal tagged with lang found under
// skos:prefLabel, falling back to rdfs:label. Ties within a property go
// to the earliest triple.
func (g *Graph) PreferredLabel(subject Term, lang string) (label Term, property string, ok bool) {
	lang = strings.ToLower(lang)
	for _, prop := range LabelProperties {
		for _, obj := range g.Objects(subject, prop) {
			if obj.IsLiteral() && obj.Language == lang {
				return obj, prop, true
			}
		}
	}
	return Term{}, "", false
}
