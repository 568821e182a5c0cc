package httpclient

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/version"
)

func fastOptions() Options {
	opts := DefaultOptions(5 * time.Second)
	opts.RetryWaitMin = time.Millisecond
	opts.RetryWaitMax = 5 * time.Millisecond
	return opts
}

func TestNew_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := New(fastOptions()).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNew_ReturnsLastResponseWhenRetriesRunOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.RetryMax = 1
	resp, err := New(opts).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream down", string(body))
}

func TestNew_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := New(fastOptions()).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNew_BlocksLoopbackWhenPublic(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	opts := PublicOptions(5 * time.Second)
	opts.RetryWaitMin = time.Millisecond
	opts.RetryWaitMax = time.Millisecond

	_, err := New(opts).Get(srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked), "got %v", err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		blockPrivate bool
		wantErr      bool
	}{
		{"https", "https://example.com/path", true, false},
		{"http", "http://example.com", true, false},
		{"file scheme", "file:///etc/passwd", false, true},
		{"ftp scheme", "ftp://example.com", true, true},
		{"missing host", "http:///path", false, true},
		{"localhost blocked", "http://localhost/admin", true, true},
		{"localhost allowed", "http://localhost:8890/sparql", false, false},
		{"subdomain of localhost", "http://api.localhost/", true, true},
		{"loopback literal", "http://127.0.0.1/", true, true},
		{"private literal", "http://192.168.1.10/", true, true},
		{"ipv6 loopback", "http://[::1]/", true, true},
		{"userinfo", "http://example.com@localhost/", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateURL(tt.url, tt.blockPrivate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"8.8.8.8", false},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"2001:db8::1", true},
		{"2606:4700:4700::1111", false},
		{"::ffff:10.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			require.NotNil(t, ip)
			assert.Equal(t, tt.private, isPrivateIP(ip))
		})
	}
}

func TestNew_SetsUserAgent(t *testing.T) {
	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
	}))
	defer srv.Close()

	resp, err := New(fastOptions()).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, version.UserAgent(), <-agents)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom/1")
	resp, err = New(fastOptions()).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom/1", <-agents)
}

func TestWithDigestAuth_AnswersChallenge(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", `Digest realm="store", nonce="abc123", qop="auth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Contains(t, r.Header.Get("Authorization"), `username="dba"`)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	base := New(fastOptions())
	client := WithDigestAuth(base, "dba", "secret")
	assert.Equal(t, base.Timeout, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}
