package report

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-reports/internal/middleware"
	"github.com/jwalitptl/clinic-reports/internal/model"
	reportsvc "github.com/jwalitptl/clinic-reports/internal/service/report"
	"github.com/jwalitptl/clinic-reports/pkg/errors"
	"github.com/jwalitptl/clinic-reports/pkg/httputil"
)

const HeaderReportID = "X-Report-ID"

type Generator interface {
	Generate(ctx context.Context, req *model.ReportRequest) (*reportsvc.Output, error)
}

type Handler struct {
	service Generator
}

func NewHandler(service Generator) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts POST /reports/{patient,clinician,appointment}.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reports := r.Group("/reports")
	{
		reports.POST("/:kind", h.GenerateReport)
	}
}

func (h *Handler) GenerateReport(c *gin.Context) {
	kind, err := model.ParseReportKind(c.Param("kind"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewNotFound("report type", err))
		return
	}

	var payload model.ReportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		_ = c.Error(err)
		httputil.RespondWithError(c, errors.NewBadRequest(middleware.ValidationMessage(err), err))
		return
	}

	out, err := h.service.Generate(c.Request.Context(), payload.ToRequest(kind))
	if err != nil {
		_ = c.Error(err)
		httputil.RespondWithError(c, err)
		return
	}

	c.Header(HeaderReportID, out.ReportID.String())
	httputil.RespondWithFile(c, out.ContentType, out.Filename, out.Body)
}
