// Package termcache memoizes resolved term documents and failed
// resolutions in a key/value backend.
//
// Key layout, with the default prefix:
//
//	breg:harvester:cache:<n3>   N-Triples body of the term's document
//	breg:harvester:term:failed  set of <n3> whose resolution failed
//
// A term never has both a document and a failure marker; neither means
// it was never resolved.
package termcache

import (
	"context"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/rdf"
)

// DefaultPrefix namespaces every key
const DefaultPrefix = "breg:harvester"

// Backend is the key/value store a Cache sits on. Implementations must
// be safe for concurrent use; writes must be idempotent upserts.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	SAdd(ctx context.Context, set, member string) error
	SRem(ctx context.Context, set, member string) error
	SIsMember(ctx context.Context, set, member string) (bool, error)
	Close() error
}

// Cache stores documents and failure markers keyed by a term's N3 form.
type Cache struct {
	backend Backend
	prefix  string
}

// New wraps backend. An empty prefix selects DefaultPrefix.
func New(backend Backend, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{backend: backend, prefix: prefix}
}

// DocumentKey is the key holding term's cached document.
func (c *Cache) DocumentKey(term rdf.Term) string {
	return c.prefix + ":cache:" + term.N3()
}

// FailedKey is the set holding terms whose resolution failed.
func (c *Cache) FailedKey() string {
	return c.prefix + ":term:failed"
}

// Get returns the cached document for term. A stored body that no
// longer decodes is reported as an error, not a miss.
func (c *Cache) Get(ctx context.Context, term rdf.Term) (*rdf.Graph, bool, error) {
	key := c.DocumentKey(term)
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", key)
	}
	if !ok {
		return nil, false, nil
	}
	g, err := rdf.UnmarshalNTriples(data)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode cached document %s", key)
	}
	return g, true, nil
}

// Put stores g for term and clears any failure marker.
func (c *Cache) Put(ctx context.Context, term rdf.Term, g *rdf.Graph) error {
	key := c.DocumentKey(term)
	if err := c.backend.Set(ctx, key, rdf.MarshalNTriples(g)); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	if err := c.backend.SRem(ctx, c.FailedKey(), term.N3()); err != nil {
		return errors.Wrapf(err, "clear failure marker for %s", term.N3())
	}
	return nil
}

// MarkFailed records that term could not be resolved and drops any
// cached document for it.
func (c *Cache) MarkFailed(ctx context.Context, term rdf.Term) error {
	if err := c.backend.SAdd(ctx, c.FailedKey(), term.N3()); err != nil {
		return errors.Wrapf(err, "mark %s failed", term.N3())
	}
	if err := c.backend.Delete(ctx, c.DocumentKey(term)); err != nil {
		return errors.Wrapf(err, "delete %s", c.DocumentKey(term))
	}
	return nil
}

// HasFailedBefore reports whether term carries a failure marker.
func (c *Cache) HasFailedBefore(ctx context.Context, term rdf.Term) (bool, error) {
	ok, err := c.backend.SIsMember(ctx, c.FailedKey(), term.N3())
	if err != nil {
		return false, errors.Wrapf(err, "check failure marker for %s", term.N3())
	}
	return ok, nil
}

// Forget removes both the document and the failure marker for term.
func (c *Cache) Forget(ctx context.Context, term rdf.Term) error {
	if err := c.backend.Delete(ctx, c.DocumentKey(term)); err != nil {
		return errors.Wrapf(err, "delete %s", c.DocumentKey(term))
	}
	if err := c.backend.SRem(ctx, c.FailedKey(), term.N3()); err != nil {
		return errors.Wrapf(err, "clear failure marker for %s", term.N3())
	}
	return nil
}

func (c *Cache) Close() error {
	return c.backend.Close()
}
