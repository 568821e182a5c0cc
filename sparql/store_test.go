package sparql

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/icholy/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/rdf"
)

type recorded struct {
	contentType string
	accept      string
	body        string
}

type fakeStore struct {
	mu       sync.Mutex
	updates  []recorded
	queries  []recorded
	results  string
	status   int
	endpoint *httptest.Server
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	f := &fakeStore{status: http.StatusOK, results: `{"head":{"vars":[]},"results":{"bindings":[]}}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql-auth", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.updates = append(f.updates, recorded{contentType: r.Header.Get("Content-Type"), body: string(body)})
		status := f.status
		f.mu.Unlock()
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte("Virtuoso 37000 Error SP030: SPARQL compiler"))
		}
	})
	mux.HandleFunc("/sparql", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.queries = append(f.queries, recorded{
			contentType: r.Header.Get("Content-Type"),
			accept:      r.Header.Get("Accept"),
			body:        r.PostForm.Get("query"),
		})
		results := f.results
		f.mu.Unlock()
		w.Header().Set("Content-Type", MIMESparqlResults)
		w.Write([]byte(results))
	})
	f.endpoint = httptest.NewServer(mux)
	t.Cleanup(f.endpoint.Close)
	return f
}

func (f *fakeStore) open(t *testing.T, batch int) *Store {
	t.Helper()
	s, err := New(Options{
		QueryEndpoint:  f.endpoint.URL + "/sparql",
		UpdateEndpoint: f.endpoint.URL + "/sparql-auth",
		BatchSize:      batch,
		Client:         f.endpoint.Client(),
		Logger:         zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresEndpoints(t *testing.T) {
	_, err := New(Options{UpdateEndpoint: "http://virtuoso:8890/sparql-auth"})
	assert.True(t, errors.IsConfigurationError(err))

	_, err = New(Options{QueryEndpoint: "http://virtuoso:8890/sparql"})
	assert.True(t, errors.IsConfigurationError(err))

	_, err = FromConfig(am.SPARQLConfig{}, nil)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestModeToggleIsIdempotent(t *testing.T) {
	s, err := New(Options{QueryEndpoint: "http://localhost/sparql", UpdateEndpoint: "http://localhost/sparql-auth"})
	require.NoError(t, err)
	assert.Equal(t, ModeRead, s.Mode())
	assert.Empty(t, s.Header().Get("Content-Type"))

	s.EnterUpdate()
	s.EnterUpdate()
	assert.Equal(t, ModeUpdate, s.Mode())
	assert.Equal(t, []string{MIMESparqlUpdate}, s.Header().Values("Content-Type"))

	s.EnterRead()
	s.EnterRead()
	assert.Equal(t, ModeRead, s.Mode())
	assert.Empty(t, s.Header().Values("Content-Type"))
	assert.Equal(t, "read", s.Mode().String())
}

func TestNode(t *testing.T) {
	assert.Equal(t, "<bnode:bN42>", Node(rdf.NewBlank("_:N42")))
	assert.Equal(t, "<http://example.org/a>", Node(rdf.NewIRI("http://example.org/a")))
	assert.Equal(t, `"x"@en`, Node(rdf.NewLangLiteral("x", "en")))
}

func sampleTriples(n int) []rdf.Triple {
	out := make([]rdf.Triple, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rdf.Triple{
			Subject:   rdf.NewBlank("d" + string(rune('a'+i))),
			Predicate: rdf.NewIRI(rdf.RDFSLabel),
			Object:    rdf.NewLangLiteral("dataset", "en"),
		})
	}
	return out
}

func TestInsert(t *testing.T) {
	f := newFakeStore(t)
	s := f.open(t, 2)
	graph := "http://fundacionctic.org/breg-harvester"

	s.EnterUpdate()
	require.NoError(t, s.Insert(context.Background(), graph, sampleTriples(5)))

	require.Len(t, f.updates, 3)
	for _, u := range f.updates {
		assert.Equal(t, MIMESparqlUpdate, u.contentType)
		assert.True(t, strings.HasPrefix(u.body, "INSERT DATA { GRAPH <"+graph+"> {\n"), u.body)
	}
	assert.Contains(t, f.updates[0].body, `<bnode:bda> <http://www.w3.org/2000/01/rdf-schema#label> "dataset"@en .`)
	assert.Equal(t, 2, strings.Count(f.updates[1].body, " .\n"))
	assert.Equal(t, 1, strings.Count(f.updates[2].body, " .\n"))
}

func TestInsert_ReadModeSendsCurrentHeaders(t *testing.T) {
	f := newFakeStore(t)
	s := f.open(t, 0)

	require.NoError(t, s.Insert(context.Background(), "http://example.org/g", sampleTriples(1)))
	require.Len(t, f.updates, 1)
	assert.Empty(t, f.updates[0].contentType)
}

func TestInsert_RejectedUpdate(t *testing.T) {
	f := newFakeStore(t)
	f.status = http.StatusBadRequest
	s := f.open(t, 0)
	s.EnterUpdate()

	err := s.Insert(context.Background(), "http://example.org/g", sampleTriples(1))
	require.Error(t, err)
	assert.True(t, errors.IsStoreProtocolError(err))

	details := strings.Join(errors.GetAllDetails(err), "\n")
	assert.Contains(t, details, "status: 400")
	assert.Contains(t, details, "SP030")
}

func TestInsert_NothingToSend(t *testing.T) {
	f := newFakeStore(t)
	s := f.open(t, 0)

	require.NoError(t, s.Insert(context.Background(), "http://example.org/g", nil))
	assert.Empty(t, f.updates)
}

func TestCount(t *testing.T) {
	f := newFakeStore(t)
	f.results = `{"head":{"vars":["n"]},"results":{"bindings":[
		{"n":{"type":"typed-literal","datatype":"http://www.w3.org/2001/XMLSchema#integer","value":"1234"}}]}}`
	s := f.open(t, 0)

	n, err := s.Count(context.Background(), "http://example.org/g")
	require.NoError(t, err)
	assert.Equal(t, 1234, n)

	require.Len(t, f.queries, 1)
	assert.Equal(t, CountQuery("http://example.org/g"), f.queries[0].body)
	assert.Equal(t, "application/x-www-form-urlencoded", f.queries[0].contentType)
	assert.Equal(t, MIMESparqlResults, f.queries[0].accept)
}

func TestCount_BadBinding(t *testing.T) {
	f := newFakeStore(t)
	f.results = `{"head":{"vars":["n"]},"results":{"bindings":[{"n":{"type":"literal","value":"many"}}]}}`
	s := f.open(t, 0)

	_, err := s.Count(context.Background(), "http://example.org/g")
	assert.True(t, errors.IsStoreProtocolError(err))
}

func TestSelect(t *testing.T) {
	f := newFakeStore(t)
	f.results = `{"head":{"vars":["s","label","b","missing"]},"results":{"bindings":[
		{"s":{"type":"uri","value":"http://example.org/a"},
		 "label":{"type":"literal","xml:lang":"en","value":"A"},
		 "b":{"type":"bnode","value":"nodeID://b1"}},
		{"s":{"type":"uri","value":"http://example.org/b"},
		 "label":{"type":"literal","datatype":"http://www.w3.org/2001/XMLSchema#string","value":"B"}}]}}`
	s := f.open(t, 0)

	rows, err := s.Select(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, rdf.NewIRI("http://example.org/a"), rows[0]["s"])
	assert.Equal(t, rdf.NewLangLiteral("A", "en"), rows[0]["label"])
	assert.True(t, rows[0]["b"].IsBlank())
	assert.Equal(t, rdf.NewLiteral("B"), rows[1]["label"])
	_, bound := rows[1]["b"]
	assert.False(t, bound)
}

func TestSelect_UnknownBindingType(t *testing.T) {
	f := newFakeStore(t)
	f.results = `{"head":{"vars":["s"]},"results":{"bindings":[{"s":{"type":"triple","value":"x"}}]}}`
	s := f.open(t, 0)

	_, err := s.Select(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	assert.True(t, errors.IsStoreProtocolError(err))
}

func TestPing(t *testing.T) {
	f := newFakeStore(t)
	s := f.open(t, 0)
	require.NoError(t, s.Ping(context.Background(), time.Second))

	down, err := New(Options{
		QueryEndpoint:  "http://127.0.0.1:1/sparql",
		UpdateEndpoint: "http://127.0.0.1:1/sparql-auth",
		Client:         &http.Client{Timeout: 100 * time.Millisecond},
	})
	require.NoError(t, err)
	err = down.Ping(context.Background(), 300*time.Millisecond)
	assert.Error(t, err)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestDigestAuth(t *testing.T) {
	const realm, nonce, user, pass = "SPARQL", "dcd98b7102dd2f0e8b11d0f600bfb0c093", "dba", "secret"

	var mu sync.Mutex
	challenges, accepted := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") {
			challenges++
			w.Header().Set("WWW-Authenticate", `Digest realm="`+realm+`", nonce="`+nonce+`", qop="auth,auth-int", opaque="5ccc"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		cred, err := digest.ParseCredentials(auth)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ha1 := md5hex(user + ":" + realm + ":" + pass)
		ha2 := md5hex(r.Method + ":" + cred.URI)
		want := md5hex(ha1 + ":" + nonce + ":" + fmt.Sprintf("%08x", cred.Nc) + ":" + cred.Cnonce + ":auth:" + ha2)
		if cred.Username != user || cred.Response != want || cred.Opaque != "5ccc" || cred.URI != r.URL.RequestURI() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		accepted++
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := New(Options{
		QueryEndpoint:  srv.URL + "/sparql",
		UpdateEndpoint: srv.URL + "/sparql-auth?x=1",
		User:           user,
		Password:       pass,
		Client:         srv.Client(),
	})
	require.NoError(t, err)
	s.EnterUpdate()

	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "http://example.org/g", sampleTriples(1)))
	require.NoError(t, s.Insert(ctx, "http://example.org/g", sampleTriples(1)))

	assert.Equal(t, 1, challenges, "challenge is answered once and reused")
	assert.Equal(t, 2, accepted)
}

func TestBasicChallengeIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="store"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, err := New(Options{
		QueryEndpoint:  srv.URL,
		UpdateEndpoint: srv.URL,
		User:           "dba",
		Password:       "wrong",
		Client:         srv.Client(),
	})
	require.NoError(t, err)

	err = s.Update(context.Background(), "INSERT DATA {}")
	assert.True(t, errors.IsStoreProtocolError(err))
}
