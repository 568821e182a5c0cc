// Package httpclient builds the outbound HTTP clients: retrying through
// go-retryablehttp, with optional SSRF protection for fetches of
// arbitrary remote IRIs.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/icholy/digest"
	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/version"
)

// Options configures a client.
type Options struct {
	Timeout        time.Duration // Overall deadline per call, retries included
	RetryMax       int           // Retries after the first attempt
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	MaxRedirects   int
	BlockPrivateIP bool // Refuse loopback, private and link-local destinations
	Logger         *zap.SugaredLogger
}

// DefaultOptions returns options for talking to trusted infrastructure
// (the triple store, the validation service).
func DefaultOptions(timeout time.Duration) Options {
	return Options{
		Timeout:      timeout,
		RetryMax:     2,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		MaxRedirects: 10,
	}
}

// PublicOptions returns options for fetching documents named by
// untrusted input, such as term IRIs.
func PublicOptions(timeout time.Duration) Options {
	opts := DefaultOptions(timeout)
	opts.BlockPrivateIP = true
	return opts
}

// New returns a standard *http.Client that retries connection errors,
// 429 and 5xx responses. When retries run out the last response is
// returned as is so callers can report its status and body.
func New(opts Options) *http.Client {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = setUserAgent
	rc.CheckRetry = checkRetry
	if opts.Logger != nil {
		rc.Logger = leveledLogger{opts.Logger}
	} else {
		rc.Logger = nil
	}

	rc.HTTPClient.Transport = newTransport(opts.BlockPrivateIP)
	rc.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= opts.MaxRedirects {
			return errors.Newf("stopped after %d redirects", opts.MaxRedirects)
		}
		if err := validateURL(req.URL, opts.BlockPrivateIP); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	client := rc.StandardClient()
	client.Timeout = opts.Timeout
	return client
}

// WithDigestAuth returns a copy of c that answers Digest challenges with
// user and password. The challenge is cached and reused for later calls.
func WithDigestAuth(c *http.Client, user, password string) *http.Client {
	wrapped := *c
	wrapped.Transport = &digest.Transport{
		Username:  user,
		Password:  password,
		Transport: c.Transport,
	}
	return &wrapped
}

func setUserAgent(_ retryablehttp.Logger, req *http.Request, _ int) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}
}

// checkRetry never retries a request the SSRF guard refused.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err != nil && errors.Is(err, ErrBlocked) {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warnw(msg, kv...) }
