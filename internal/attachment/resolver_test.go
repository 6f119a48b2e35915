package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-reports/internal/blobstore"
	"github.com/jwalitptl/clinic-reports/internal/model"
	"github.com/jwalitptl/clinic-reports/internal/report/section"
	"github.com/jwalitptl/clinic-reports/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-reports/pkg/metrics"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdfHeader = []byte("%PDF-1.7\n")
)

func TestDerivePath(t *testing.T) {
	tests := []struct {
		ref, bucket, want string
	}{
		{"p1/cbc.pdf", "lab-files", "p1/cbc.pdf"},
		{"/lab-files/p1/cbc.pdf", "lab-files", "p1/cbc.pdf"},
		{"lab-files/p1/cbc.pdf?download=1", "lab-files", "p1/cbc.pdf"},
		{"https://abc.supabase.co/storage/v1/object/public/lab-files/p1/cbc.pdf?token=x", "lab-files", "p1/cbc.pdf"},
		{"https://lab-files.s3.amazonaws.com/p1/scan%201.png", "lab-files", "p1/scan 1.png"},
		{"https://cdn.example/avatars/p1.png", "profile-images", "avatars/p1.png"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := DerivePath(tt.ref, tt.bucket)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "lab-files/", "https://host.example/", "../../etc/passwd"} {
		_, err := DerivePath(bad, "lab-files")
		assert.Error(t, err, bad)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		data        []byte
		want        model.Classification
		wantType    string
	}{
		{"image/jpeg", nil, model.ClassificationImage, "image/jpeg"},
		{"application/pdf; qs=0.1", nil, model.ClassificationEmbeddablePDF, "application/pdf"},
		{"application/zip", nil, model.ClassificationUnsupported, "application/zip"},
		{"", pngHeader, model.ClassificationImage, "image/png"},
		{"application/octet-stream", pdfHeader, model.ClassificationEmbeddablePDF, "application/pdf"},
		{"", []byte("just text"), model.ClassificationUnsupported, "text/plain"},
	}
	for _, tt := range tests {
		got, mt := Classify(tt.contentType, tt.data)
		assert.Equal(t, tt.want, got, tt.contentType)
		assert.Equal(t, tt.wantType, mt, tt.contentType)
	}
}

func TestResolve(t *testing.T) {
	store := blobstore.NewMemoryStore()
	store.Put("lab-files", "p1/cbc.pdf", pdfHeader, "application/pdf")
	store.Put("lab-files", "p1/xray.png", pngHeader, "image/png")
	store.Put("lab-files", "p1/notes.docx", []byte("PK\x03\x04"), "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	store.Put("lab-files", "p1/empty.pdf", nil, "application/pdf")

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "test")
	r := NewResolver(blobstore.New(store, store), Config{}, nil, m)
	ctx := context.Background()

	res := r.Resolve(ctx, model.AttachmentReference{URL: "lab-files/p1/cbc.pdf"}, "lab-files")
	assert.Equal(t, model.ClassificationEmbeddablePDF, res.Classification)
	assert.Equal(t, pdfHeader, res.Bytes)

	res = r.Resolve(ctx, model.AttachmentReference{URL: "p1/xray.png"}, "lab-files")
	assert.Equal(t, model.ClassificationImage, res.Classification)

	res = r.Resolve(ctx, model.AttachmentReference{URL: "p1/notes.docx"}, "lab-files")
	assert.Equal(t, model.ClassificationUnsupported, res.Classification)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", res.MIMEType)

	for _, ref := range []string{"p1/missing.pdf", "p1/empty.pdf", ""} {
		res = r.Resolve(ctx, model.AttachmentReference{URL: ref}, "lab-files")
		assert.Equal(t, model.Unavailable(), res, ref)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(m.AttachmentResolutions.WithLabelValues("unavailable")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AttachmentResolutions.WithLabelValues("embeddable_pdf")))
}

func TestResolve_SigningFailureIsUnavailable(t *testing.T) {
	store := blobstore.NewMemoryStore()
	store.Put("lab-files", "a.pdf", pdfHeader, "application/pdf")
	store.SignErr = errors.New("signing service down")

	r := NewResolver(store, Config{}, nil, nil)
	res := r.Resolve(context.Background(), model.AttachmentReference{URL: "a.pdf"}, "lab-files")
	assert.Equal(t, model.ClassificationUnavailable, res.Classification)
	assert.Nil(t, res.Bytes)
}

func TestBucket(t *testing.T) {
	r := NewResolver(blobstore.NewMemoryStore(), Config{ProfileBucket: "avatars"}, nil, nil)

	assert.Equal(t, "avatars", r.Bucket(section.Attachment{Kind: model.AttachmentProfileImage}))
	assert.Equal(t, "lab-files", r.Bucket(section.Attachment{Kind: model.AttachmentLabFile}))
	assert.Equal(t, "custom", r.Bucket(section.Attachment{Kind: model.AttachmentLabFile, Ref: model.AttachmentReference{BucketHint: "custom"}}))
}

// delayedStore answers fetches after a per-path delay.
type delayedStore struct {
	*blobstore.MemoryStore
	delays map[string]time.Duration
}

func (s delayedStore) Fetch(ctx context.Context, url string) (*blobstore.Blob, error) {
	for suffix, d := range s.delays {
		if strings.HasSuffix(url, suffix) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return s.MemoryStore.Fetch(ctx, url)
}

func TestResolveAll_PreservesInputOrder(t *testing.T) {
	mem := blobstore.NewMemoryStore()
	var atts []section.Attachment
	delays := map[string]time.Duration{}
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("%d.pdf", i)
		mem.Put("lab-files", name, append(append([]byte{}, pdfHeader...), byte('0'+i)), "application/pdf")
		delays["/"+name] = time.Duration(6-i) * 10 * time.Millisecond
		atts = append(atts, section.Attachment{Ref: model.AttachmentReference{URL: name}, Kind: model.AttachmentLabFile})
	}

	r := NewResolver(delayedStore{mem, delays}, Config{Concurrency: 6}, nil, nil)
	results := r.ResolveAll(context.Background(), atts)

	require.Len(t, results, 6)
	for i, res := range results {
		require.Equal(t, model.ClassificationEmbeddablePDF, res.Classification)
		assert.Equal(t, byte('0'+i), res.Bytes[len(res.Bytes)-1])
	}
}

func TestResolveAll_BudgetFallsBackToPlaceholders(t *testing.T) {
	mem := blobstore.NewMemoryStore()
	mem.Put("lab-files", "fast.pdf", pdfHeader, "application/pdf")
	mem.Put("lab-files", "slow.pdf", pdfHeader, "application/pdf")
	store := delayedStore{mem, map[string]time.Duration{"/slow.pdf": 5 * time.Second}}

	r := NewResolver(store, Config{Budget: 100 * time.Millisecond}, nil, nil)
	atts := []section.Attachment{
		{Ref: model.AttachmentReference{URL: "fast.pdf"}, Kind: model.AttachmentLabFile},
		{Ref: model.AttachmentReference{URL: "slow.pdf"}, Kind: model.AttachmentLabFile},
	}

	start := time.Now()
	results := r.ResolveAll(context.Background(), atts)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, results, 2)
	assert.Equal(t, model.ClassificationEmbeddablePDF, results[0].Classification)
	assert.Equal(t, model.ClassificationUnavailable, results[1].Classification)
}

// stallingFetcher hangs until the request context ends unless healthy.
type stallingFetcher struct {
	*blobstore.MemoryStore
	healthy atomic.Bool
}

func (f *stallingFetcher) Fetch(ctx context.Context, url string) (*blobstore.Blob, error) {
	if f.healthy.Load() {
		return f.MemoryStore.Fetch(ctx, url)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveAll_BudgetExpiryDoesNotAffectOtherRequests(t *testing.T) {
	mem := blobstore.NewMemoryStore()
	mem.Put("lab-files", "scan.png", pngHeader, "image/png")
	fetcher := &stallingFetcher{MemoryStore: mem}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "blobstore", MaxFailures: 5, Timeout: time.Minute})
	store := blobstore.New(mem, blobstore.NewBreakerFetcher(fetcher, cb))

	var slow []section.Attachment
	for i := 0; i < 8; i++ {
		slow = append(slow, section.Attachment{Ref: model.AttachmentReference{URL: fmt.Sprintf("slow-%d.pdf", i)}, Kind: model.AttachmentLabFile})
	}
	results := NewResolver(store, Config{Budget: 50 * time.Millisecond, Concurrency: 4}, nil, nil).ResolveAll(context.Background(), slow)
	for _, res := range results {
		assert.Equal(t, model.ClassificationUnavailable, res.Classification)
	}
	assert.Equal(t, "closed", cb.State())

	fetcher.healthy.Store(true)
	results = NewResolver(store, Config{Budget: time.Second}, nil, nil).ResolveAll(context.Background(), []section.Attachment{
		{Ref: model.AttachmentReference{URL: "scan.png"}, Kind: model.AttachmentLabFile},
	})
	require.Len(t, results, 1)
	assert.Equal(t, model.ClassificationImage, results[0].Classification)
}

func TestResolveAll_Empty(t *testing.T) {
	r := NewResolver(blobstore.NewMemoryStore(), Config{}, nil, nil)
	assert.Empty(t, r.ResolveAll(context.Background(), nil))
}
