package blobstore

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-reports/internal/config"
	"github.com/jwalitptl/clinic-reports/pkg/circuitbreaker"
)

// Stores is what FromConfig builds. Local is set only for the local driver,
// which also serves its own download route.
type Stores struct {
	BlobStore BlobStore
	Local     *LocalStore
	Memory    *MemoryStore
}

// FromConfig builds the store selected by cfg.Driver. baseURL prefixes local
// download URLs.
func FromConfig(ctx context.Context, cfg config.StorageConfig, baseURL string) (*Stores, error) {
	var (
		signer  Signer
		fetcher Fetcher
		out     = &Stores{}
	)

	switch cfg.Driver {
	case "s3":
		s3, err := NewS3Signer(ctx, S3Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			URLExpiry:       cfg.URLExpiry,
		})
		if err != nil {
			return nil, err
		}
		signer, fetcher = s3, NewHTTPFetcher(cfg.FetchTimeout, cfg.MaxAttachmentBytes)
	case "local":
		local, err := NewLocalStore(LocalConfig{
			Root:      cfg.Local.Root,
			BaseURL:   baseURL,
			Secret:    []byte(cfg.Local.Secret),
			URLExpiry: cfg.URLExpiry,
			MaxBytes:  cfg.MaxAttachmentBytes,
		})
		if err != nil {
			return nil, err
		}
		out.Local = local
		signer, fetcher = local, local
	case "memory":
		mem := NewMemoryStore()
		out.Memory = mem
		signer, fetcher = mem, mem
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if cfg.SignedURLCacheTTL > 0 {
		signer = NewCachingSigner(signer, cfg.SignedURLCacheTTL)
	}
	fetcher = NewBreakerFetcher(fetcher, circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:             "blobstore-" + cfg.Driver,
		MaxFailures:      cfg.BreakerFailures,
		Timeout:          cfg.BreakerTimeout,
		HalfOpenRequests: cfg.BreakerHalfOpenRequests,
	}))

	out.BlobStore = New(signer, fetcher)
	return out, nil
}
