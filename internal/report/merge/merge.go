// Package merge appends embeddable PDF attachments to a composed report.
package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jwalitptl/clinic-reports/pkg/logger"
	"github.com/jwalitptl/clinic-reports/pkg/metrics"
)

// Result is the merged document. Appended and Dropped count the extras that
// made it in and those that were skipped; DroppedExtras lists the skipped
// positions in the extras slice, ascending.
type Result struct {
	Data          []byte
	Appended      int
	Dropped       int
	DroppedExtras []int
}

// Merger concatenates the primary document with extras in order.
type Merger interface {
	Merge(ctx context.Context, primary []byte, extras [][]byte) (*Result, error)
}

// ErrNotPDF is returned for data that does not start with a PDF header.
var ErrNotPDF = errors.New("not a pdf document")

// headerWindow is how far into the data the %PDF- marker may appear.
const headerWindow = 1024

var disableConfigDir sync.Once

func configuration() *pdfmodel.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

// PDFMerger merges with pdfcpu. Extras that fail validation are skipped; if
// the merge itself fails the primary document is returned unchanged.
type PDFMerger struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewPDFMerger(log *logger.Logger, m *metrics.Metrics) *PDFMerger {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &PDFMerger{log: log, metrics: m}
}

func (m *PDFMerger) Merge(ctx context.Context, primary []byte, extras [][]byte) (*Result, error) {
	if err := sniff(primary); err != nil {
		return nil, fmt.Errorf("primary document is invalid: %w", err)
	}
	if len(extras) == 0 {
		return &Result{Data: primary}, nil
	}
	log := logger.FromContext(ctx, m.log)

	if err := validate(primary); err != nil {
		return nil, fmt.Errorf("primary document is invalid: %w", err)
	}

	res := &Result{Data: primary}
	sources := []io.ReadSeeker{bytes.NewReader(primary)}
	var kept []int
	for i, extra := range extras {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := validate(extra); err != nil {
			log.Warn(err, "skipping unreadable pdf attachment", "position", i+1, "bytes", len(extra))
			m.metrics.SubDocumentsDropped.Inc()
			res.drop(i)
			continue
		}
		sources = append(sources, bytes.NewReader(extra))
		kept = append(kept, i)
	}
	if len(kept) == 0 {
		return res, nil
	}

	var buf bytes.Buffer
	if err := mergeRaw(sources, &buf); err != nil {
		log.Error(err, "pdf merge failed, returning report without attachments", "extras", len(kept))
		m.metrics.SubDocumentsDropped.Add(float64(len(kept)))
		for _, i := range kept {
			res.drop(i)
		}
		sort.Ints(res.DroppedExtras)
		return res, nil
	}

	res.Data = buf.Bytes()
	res.Appended = len(kept)
	return res, nil
}

func (r *Result) drop(i int) {
	r.Dropped++
	r.DroppedExtras = append(r.DroppedExtras, i)
}

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (n int, err error) {
	if err := sniff(data); err != nil {
		return 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page count: %v", r)
		}
	}()
	return api.PageCount(bytes.NewReader(data), configuration())
}

// sniff rejects data pdfcpu cannot start parsing. pdfcpu blocks on empty
// input, so this runs before every pdfcpu call.
func sniff(data []byte) error {
	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return ErrNotPDF
	}
	return nil
}

func validate(data []byte) (err error) {
	if err := sniff(data); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validate: %v", r)
		}
	}()
	return api.Validate(bytes.NewReader(data), configuration())
}

func mergeRaw(sources []io.ReadSeeker, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merge: %v", r)
		}
	}()
	return api.MergeRaw(sources, w, false, configuration())
}
