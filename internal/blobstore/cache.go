package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-reports/pkg/circuitbreaker"
)

// CachingSigner reuses signed URLs for a TTL that must be shorter than the
// URL expiry of the wrapped signer.
type CachingSigner struct {
	next  Signer
	cache *cache.Cache
}

func NewCachingSigner(next Signer, ttl time.Duration) *CachingSigner {
	return &CachingSigner{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (s *CachingSigner) SignURL(ctx context.Context, bucket, path string) (string, error) {
	key := bucket + "\x00" + path
	if v, ok := s.cache.Get(key); ok {
		return v.(string), nil
	}

	url, err := s.next.SignURL(ctx, bucket, path)
	if err != nil {
		return "", err
	}
	s.cache.SetDefault(key, url)
	return url, nil
}

// BreakerFetcher fails fast while the wrapped store keeps failing. Missing
// objects and fetches abandoned by the caller's context do not count as
// store failures.
type BreakerFetcher struct {
	next Fetcher
	cb   *circuitbreaker.CircuitBreaker
}

func NewBreakerFetcher(next Fetcher, cb *circuitbreaker.CircuitBreaker) *BreakerFetcher {
	return &BreakerFetcher{next: next, cb: cb}
}

func (f *BreakerFetcher) Fetch(ctx context.Context, url string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		blob    *Blob
		skipErr error
	)
	err := f.cb.Execute(func() error {
		b, err := f.next.Fetch(ctx, url)
		switch {
		case err == nil:
			blob = b
			return nil
		case errors.Is(err, ErrNotFound):
			skipErr = ErrNotFound
			return nil
		case ctx.Err() != nil:
			skipErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if skipErr != nil {
		return nil, skipErr
	}
	return blob, nil
}
