// Package attachment resolves stored file references into classified bytes.
// Every failure degrades to an unavailable outcome; nothing is returned to
// the caller as an error.
package attachment

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/clinic-reports/internal/blobstore"
	"github.com/jwalitptl/clinic-reports/internal/model"
	"github.com/jwalitptl/clinic-reports/internal/report/section"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
	"github.com/jwalitptl/clinic-reports/pkg/metrics"
)

var errEmptyPath = errors.New("attachment reference has no path")

// Config tunes resolution. Budget caps the wall-clock time of a whole
// ResolveAll call; Concurrency bounds parallel fetches.
type Config struct {
	ProfileBucket string
	LabBucket     string
	Budget        time.Duration
	Concurrency   int
}

// Resolver fetches attachments through a BlobStore. It is safe for
// concurrent use.
type Resolver struct {
	store   blobstore.BlobStore
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewResolver(store blobstore.BlobStore, cfg Config, log *logger.Logger, m *metrics.Metrics) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ProfileBucket == "" {
		cfg.ProfileBucket = "profile-images"
	}
	if cfg.LabBucket == "" {
		cfg.LabBucket = "lab-files"
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Resolver{store: store, cfg: cfg, log: log, metrics: m}
}

// Bucket returns the bucket for an attachment: its hint, or the default
// for its kind.
func (r *Resolver) Bucket(att section.Attachment) string {
	if att.Ref.BucketHint != "" {
		return att.Ref.BucketHint
	}
	if att.Kind == model.AttachmentProfileImage {
		return r.cfg.ProfileBucket
	}
	return r.cfg.LabBucket
}

// Resolve makes a single attempt to sign, fetch and classify ref.
func (r *Resolver) Resolve(ctx context.Context, ref model.AttachmentReference, bucket string) model.ResolvedAttachment {
	start := time.Now()
	res := r.resolve(ctx, ref, bucket)
	r.metrics.AttachmentLatency.Observe(time.Since(start).Seconds())
	r.metrics.AttachmentResolutions.WithLabelValues(res.Classification.String()).Inc()
	return res
}

func (r *Resolver) resolve(ctx context.Context, ref model.AttachmentReference, bucket string) model.ResolvedAttachment {
	log := logger.FromContext(ctx, r.log)

	path, err := DerivePath(ref.URL, bucket)
	if err != nil {
		log.Warn(err, "attachment path could not be derived", "bucket", bucket)
		return model.Unavailable()
	}

	signed, err := r.store.SignURL(ctx, bucket, path)
	if err != nil {
		log.Warn(err, "attachment signing failed", "bucket", bucket, "path", path)
		return model.Unavailable()
	}

	blob, err := r.store.Fetch(ctx, signed)
	if err != nil {
		log.Warn(err, "attachment fetch failed", "bucket", bucket, "path", path)
		return model.Unavailable()
	}
	if len(blob.Data) == 0 {
		log.Warn(nil, "attachment is empty", "bucket", bucket, "path", path)
		return model.Unavailable()
	}

	class, mediaType := Classify(blob.ContentType, blob.Data)
	return model.ResolvedAttachment{Bytes: blob.Data, MIMEType: mediaType, Classification: class}
}

// ResolveAll resolves attachments concurrently and returns outcomes in
// input order. When the budget runs out, anything still in flight is
// reported unavailable.
func (r *Resolver) ResolveAll(ctx context.Context, atts []section.Attachment) []model.ResolvedAttachment {
	results := make([]model.ResolvedAttachment, len(atts))
	if len(atts) == 0 {
		return results
	}

	if r.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Budget)
		defer cancel()
	}

	var (
		mu     sync.Mutex
		closed bool
	)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, att := range atts {
			if ctx.Err() != nil {
				break
			}
			i, att := i, att
			g.Go(func() error {
				res := r.Resolve(ctx, att.Ref, r.Bucket(att))
				mu.Lock()
				if !closed {
					results[i] = res
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn(ctx.Err(), "attachment budget exhausted, using placeholders", "pending", pending(&mu, results))
	}

	mu.Lock()
	closed = true
	out := append([]model.ResolvedAttachment(nil), results...)
	mu.Unlock()
	return out
}

func pending(mu *sync.Mutex, results []model.ResolvedAttachment) int {
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for _, r := range results {
		if r.Classification == model.ClassificationUnavailable {
			n++
		}
	}
	return n
}

// DerivePath extracts the object path from a stored reference. Absolute
// URLs contribute their path; a leading "<bucket>/" segment, or everything
// up to and including a "/<bucket>/" segment, is stripped.
func DerivePath(ref, bucket string) (string, error) {
	p := strings.TrimSpace(ref)
	if u, err := url.Parse(p); err == nil && u.Scheme != "" && u.Host != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimLeft(p, "/")

	if bucket != "" {
		if rest, ok := strings.CutPrefix(p, bucket+"/"); ok {
			p = rest
		} else if i := strings.Index(p, "/"+bucket+"/"); i >= 0 {
			p = p[i+len(bucket)+2:]
		}
	}

	if p == "" {
		return "", errEmptyPath
	}
	return blobstore.CleanPath(p)
}

// Classify maps a media type to an attachment class. Missing or generic
// binary types are sniffed from content.
func Classify(contentType string, data []byte) (model.Classification, string) {
	mt := blobstore.MediaType(contentType)
	if mt == "" || mt == "application/octet-stream" || mt == "binary/octet-stream" {
		mt = blobstore.MediaType(mimetype.Detect(data).String())
	}

	switch {
	case strings.HasPrefix(mt, "image/"):
		return model.ClassificationImage, mt
	case mt == "application/pdf":
		return model.ClassificationEmbeddablePDF, mt
	default:
		return model.ClassificationUnsupported, mt
	}
}
