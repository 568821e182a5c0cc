package rdf

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/http"
	"sort"

	krdf "github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"

	"github.com/teranos/breg-harvester/errors"
)

// DecodeOptions tunes decoding.
type DecodeOptions struct {
	// Base resolves relative IRIs in JSON-LD documents.
	Base string
	// HTTPClient loads remote JSON-LD contexts. Nil disables remote contexts.
	HTTPClient *http.Client
}

// Decode parses data in the given format into a new graph.
func Decode(data []byte, format Format, opts DecodeOptions) (*Graph, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty document")
	}
	switch format {
	case FormatRDFXML:
		return decodeRDFXML(data)
	case FormatTurtle:
		return decodeKnakk(data, krdf.Turtle)
	case FormatNTriples:
		return decodeKnakk(data, krdf.NTriples)
	case FormatJSONLD:
		return decodeJSONLD(data, opts)
	}
	return nil, errors.Newf("unsupported format %q", format)
}

// decodeRDFXML guards the RDF/XML decoder, which yields an empty graph
// for any input it does not recognise.
func decodeRDFXML(data []byte) (*Graph, error) {
	rdfRoot, err := scanXMLRoot(data)
	if err != nil {
		return nil, err
	}
	g, err := decodeKnakk(data, krdf.RDFXML)
	if err != nil {
		return nil, err
	}
	if g.Len() == 0 && !rdfRoot {
		return nil, errors.New("XML document has no RDF content")
	}
	return g, nil
}

// scanXMLRoot checks that data is one well-formed XML element and
// reports whether that element is rdf:RDF.
func scanXMLRoot(data []byte) (rdfRoot bool, err error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *xml.Name
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, errors.Wrap(err, "malformed XML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if root != nil {
					return false, errors.New("more than one root element")
				}
				name := t.Name
				root = &name
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return false, errors.New("text outside the root element")
			}
		}
	}
	if root == nil {
		return false, errors.New("no root element")
	}
	return root.Space == NSRDF && root.Local == "RDF", nil
}

func decodeKnakk(data []byte, format krdf.Format) (g *Graph, err error) {
	// The decoders can panic on some malformed input
	defer func() {
		if r := recover(); r != nil {
			g, err = nil, errors.Newf("decoder panic: %v", r)
		}
	}()

	dec := krdf.NewTripleDecoder(bytes.NewReader(data), format)
	g = NewGraph()
	for {
		tr, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		g.Add(Triple{
			Subject:   fromKnakk(tr.Subj),
			Predicate: fromKnakk(tr.Pred),
			Object:    fromKnakk(tr.Obj),
		})
	}
	return g, nil
}

func fromKnakk(t krdf.Term) Term {
	switch v := t.(type) {
	case krdf.IRI:
		return NewIRI(v.String())
	case krdf.Blank:
		return NewBlank(v.String())
	case krdf.Literal:
		return NewTypedLiteral(v.String(), v.Lang(), v.DataType.String())
	}
	return NewLiteral(t.String())
}

// noRemoteLoader refuses to fetch remote JSON-LD contexts.
type noRemoteLoader struct{}

func (noRemoteLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, "remote contexts disabled: "+u)
}

func decodeJSONLD(data []byte, opts DecodeOptions) (*Graph, error) {
	doc, err := ld.DocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "invalid JSON")
	}

	options := ld.NewJsonLdOptions(opts.Base)
	if opts.HTTPClient != nil {
		options.DocumentLoader = ld.NewDefaultDocumentLoader(opts.HTTPClient)
	} else {
		options.DocumentLoader = noRemoteLoader{}
	}

	out, err := ld.NewJsonLdProcessor().ToRDF(doc, options)
	if err != nil {
		return nil, errors.Wrap(err, "JSON-LD to RDF")
	}
	dataset, ok := out.(*ld.RDFDataset)
	if !ok {
		return nil, errors.Newf("unexpected JSON-LD result %T", out)
	}

	// Named graphs are flattened; the default graph comes first
	names := make([]string, 0, len(dataset.Graphs))
	for name := range dataset.Graphs {
		if name != "@default" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	names = append([]string{"@default"}, names...)

	g := NewGraph()
	for _, name := range names {
		for _, q := range dataset.Graphs[name] {
			s, p, o := fromLD(q.Subject), fromLD(q.Predicate), fromLD(q.Object)
			if s.IsZero() || p.IsZero() || o.IsZero() {
				continue
			}
			g.Add(Triple{Subject: s, Predicate: p, Object: o})
		}
	}
	return g, nil
}

func fromLD(n ld.Node) Term {
	switch v := n.(type) {
	case *ld.IRI:
		return NewIRI(v.Value)
	case *ld.BlankNode:
		return NewBlank(v.Attribute)
	case *ld.Literal:
		return NewTypedLiteral(v.Value, v.Language, v.Datatype)
	}
	return Term{}
}
