package rdf

import (
	"bufio"
	"bytes"
	"io"
)

// WriteNTriples serializes g as N-Triples in insertion order.
func WriteNTriples(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	for _, t := range g.Triples() {
		if _, err := bw.WriteString(t.NTriple()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// MarshalNTriples returns g as an N-Triples document.
func MarshalNTriples(g *Graph) []byte {
	var buf bytes.Buffer
	_ = WriteNTriples(&buf, g)
	if buf.Len() == 0 {
		return []byte{}
	}
	return buf.Bytes()
}

// UnmarshalNTriples parses a document produced by MarshalNTriples.
func UnmarshalNTriples(data []byte) (*Graph, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewGraph(), nil
	}
	return Decode(data, FormatNTriples, DecodeOptions{})
}

// NTriple renders t as one N-Triples statement, with the trailing dot.
func (t Triple) NTriple() string {
	return t.Subject.N3() + " " + t.Predicate.N3() + " " + t.Object.N3() + " ."
}
