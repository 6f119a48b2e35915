package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-reports/internal/model"
	"github.com/jwalitptl/clinic-reports/internal/report/document"
	"github.com/jwalitptl/clinic-reports/internal/report/merge"
	"github.com/jwalitptl/clinic-reports/internal/report/section"
	"github.com/jwalitptl/clinic-reports/internal/report/tabular"
	"github.com/jwalitptl/clinic-reports/internal/repository"
	"github.com/jwalitptl/clinic-reports/pkg/errors"
	"github.com/jwalitptl/clinic-reports/pkg/httputil"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
	"github.com/jwalitptl/clinic-reports/pkg/metrics"
)

type (
	Resolver interface {
		ResolveAll(ctx context.Context, atts []section.Attachment) []model.ResolvedAttachment
	}

	Composer interface {
		Compose(title string, generatedAt time.Time, sections []section.Section, resolved []model.ResolvedAttachment) (*document.ComposedDocument, error)
	}
)

// Output is a finished report ready to be written to the client.
type Output struct {
	ReportID     uuid.UUID
	Body         []byte
	ContentType  string
	Filename     string
	Pages        int
	Placeholders int
	Appended     int
}

type Options struct {
	// Creator is written into PDF metadata.
	Creator string
	// Now is the generation clock. Reports are byte-stable for a fixed clock.
	Now func() time.Time
}

type Service struct {
	resolver Resolver
	composer Composer
	merger   merge.Merger
	outbox   repository.OutboxRepository
	log      *logger.Logger
	metrics  *metrics.Metrics
	creator  string
	now      func() time.Time
}

// NewService wires the engine. outbox may be nil, in which case no audit
// events are recorded.
func NewService(resolver Resolver, composer Composer, merger merge.Merger, outbox repository.OutboxRepository, log *logger.Logger, m *metrics.Metrics, opts Options) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Creator == "" {
		opts.Creator = "clinic-reports"
	}
	return &Service{
		resolver: resolver,
		composer: composer,
		merger:   merger,
		outbox:   outbox,
		log:      log,
		metrics:  m,
		creator:  opts.Creator,
		now:      opts.Now,
	}
}

// Validate reports missing required input as a bad request.
func Validate(req *model.ReportRequest) error {
	if req == nil {
		return errors.NewBadRequest("request body is required", nil)
	}
	if _, err := model.ParseReportKind(string(req.Kind)); err != nil {
		return errors.NewBadRequest("unknown report type", err)
	}
	if req.Subject == nil {
		return errors.NewBadRequest("subject is required", nil)
	}
	if req.ExportOptions == nil {
		return errors.NewBadRequest("exportOptions is required", nil)
	}
	switch req.Format {
	case "", model.FormatCSV, model.FormatPDF:
	default:
		return errors.NewBadRequest(fmt.Sprintf("unsupported export format %q", req.Format), nil)
	}
	return nil
}

// Generate renders req as CSV or PDF. Only bad input and unrecoverable
// layout failures are returned as errors; attachment problems degrade to
// placeholders inside the document.
func (s *Service) Generate(ctx context.Context, req *model.ReportRequest) (*Output, error) {
	if err := Validate(req); err != nil {
		if req != nil {
			s.metrics.ReportsGenerated.WithLabelValues(string(req.Kind), string(req.Format), "client_error").Inc()
		}
		return nil, err
	}
	format := req.Format
	if format == "" {
		format = model.FormatPDF
	}

	log := logger.FromContext(ctx, s.log).With("kind", string(req.Kind)).With("format", string(format))
	start := time.Now()
	generatedAt := s.now()
	sections := section.Build(req)

	var (
		out *Output
		err error
	)
	if format == model.FormatCSV {
		out, err = s.csv(req, sections)
	} else {
		out, err = s.pdf(ctx, req, sections, generatedAt)
	}
	if err != nil {
		s.metrics.ReportsGenerated.WithLabelValues(string(req.Kind), string(format), "error").Inc()
		log.Error(err, "report generation failed")
		return nil, errors.NewInternal(err)
	}

	out.ReportID = uuid.New()
	out.ContentType = format.ContentType()
	out.Filename = Filename(req.Kind, req.Subject, generatedAt, format)

	s.metrics.ReportsGenerated.WithLabelValues(string(req.Kind), string(format), "success").Inc()
	s.metrics.ReportLatency.WithLabelValues(string(req.Kind), string(format)).Observe(time.Since(start).Seconds())
	if format == model.FormatPDF {
		s.metrics.ReportPages.Observe(float64(out.Pages))
		s.metrics.ReportPlaceholders.Add(float64(out.Placeholders))
	}

	log.Info("report generated",
		"report_id", out.ReportID.String(),
		"sections", len(sections),
		"bytes", len(out.Body),
		"pages", out.Pages,
		"placeholders", out.Placeholders,
	)

	s.record(ctx, log, req, format, sections, out, generatedAt)
	return out, nil
}

func (s *Service) csv(req *model.ReportRequest, sections []section.Section) (*Output, error) {
	var buf bytes.Buffer
	if err := tabular.Write(&buf, req.Kind, sections); err != nil {
		return nil, fmt.Errorf("csv export: %w", err)
	}
	return &Output{Body: buf.Bytes()}, nil
}

// maxComposePasses bounds re-composition after the merger drops extras.
// The second pass only fails again if the merge itself breaks, and the third
// has no extras left.
const maxComposePasses = 3

func (s *Service) pdf(ctx context.Context, req *model.ReportRequest, sections []section.Section, generatedAt time.Time) (*Output, error) {
	resolved := s.resolver.ResolveAll(ctx, section.Attachments(sections))

	var (
		doc    *document.ComposedDocument
		merged *merge.Result
	)
	for pass := 0; pass < maxComposePasses; pass++ {
		var (
			primary []byte
			err     error
		)
		doc, primary, err = s.compose(req.Kind, generatedAt, sections, resolved)
		if err != nil {
			return nil, err
		}

		merged, err = s.merger.Merge(ctx, primary, doc.Extras)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		if len(merged.DroppedExtras) == 0 {
			break
		}
		resolved = withoutExtras(resolved, doc.ExtraSources, merged.DroppedExtras)
	}

	pages := len(doc.Pages)
	if merged.Appended > 0 {
		if n, err := merge.PageCount(merged.Data); err == nil {
			pages = n
		}
	}

	return &Output{
		Body:         merged.Data,
		Pages:        pages,
		Placeholders: doc.Placeholders + len(merged.DroppedExtras),
		Appended:     merged.Appended,
	}, nil
}

func (s *Service) compose(kind model.ReportKind, generatedAt time.Time, sections []section.Section, resolved []model.ResolvedAttachment) (*document.ComposedDocument, []byte, error) {
	doc, err := s.composer.Compose(kind.Entity()+" Report", generatedAt, sections, resolved)
	if err != nil {
		return nil, nil, err
	}
	primary, err := document.Render(doc, document.RenderOptions{
		Creator:   s.creator,
		CreatedAt: generatedAt,
	})
	if err != nil {
		return nil, nil, err
	}
	return doc, primary, nil
}

// withoutExtras marks the attachments behind dropped extras as unavailable so
// the next composition shows a placeholder instead of an appendix notice.
func withoutExtras(resolved []model.ResolvedAttachment, sources, dropped []int) []model.ResolvedAttachment {
	out := append([]model.ResolvedAttachment(nil), resolved...)
	for _, pos := range dropped {
		if pos < 0 || pos >= len(sources) {
			continue
		}
		if i := sources[pos]; i >= 0 && i < len(out) {
			out[i] = model.Unavailable()
		}
	}
	return out
}

// record appends a REPORT_GENERATED outbox event. Failures are logged and
// never fail the report.
func (s *Service) record(ctx context.Context, log *logger.Logger, req *model.ReportRequest, format model.Format, sections []section.Section, out *Output, generatedAt time.Time) {
	if s.outbox == nil {
		return
	}

	keys := make([]string, len(sections))
	for i, sec := range sections {
		keys[i] = string(sec.Key)
	}
	payload, err := json.Marshal(model.ReportGenerated{
		ReportID:     out.ReportID,
		RequestID:    logger.RequestID(ctx),
		Kind:         req.Kind,
		Format:       format,
		Sections:     keys,
		Pages:        out.Pages,
		Bytes:        len(out.Body),
		Placeholders: out.Placeholders,
		Appended:     out.Appended,
		GeneratedAt:  generatedAt.UTC(),
	})
	if err != nil {
		log.Warn(err, "failed to encode report event")
		return
	}

	evt := &model.OutboxEvent{
		EventType: model.EventTypeReportGenerated,
		Payload:   payload,
	}
	if err := s.outbox.Create(ctx, evt); err != nil {
		log.Warn(err, "failed to record report event", "report_id", out.ReportID.String())
	}
}

// Filename is "<Entity>_Report_<Name-or-Date>.<ext>". Appointment reports and
// subjects without a name use the generation date.
func Filename(kind model.ReportKind, subject model.Record, generatedAt time.Time, format model.Format) string {
	part := ""
	if kind != model.ReportKindAppointment {
		part = subject.FullName()
	}
	if part == "" {
		part = generatedAt.Format("2006-01-02")
	}
	return httputil.SanitizeFilename(fmt.Sprintf("%s_Report_%s", kind.Entity(), part)) + "." + string(format)
}
