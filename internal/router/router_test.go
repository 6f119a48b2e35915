package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-reports/internal/attachment"
	"github.com/jwalitptl/clinic-reports/internal/blobstore"
	"github.com/jwalitptl/clinic-reports/internal/handler/health"
	promhandler "github.com/jwalitptl/clinic-reports/internal/handler/prometheus"
	reporthandler "github.com/jwalitptl/clinic-reports/internal/handler/report"
	"github.com/jwalitptl/clinic-reports/internal/middleware"
	"github.com/jwalitptl/clinic-reports/internal/report/document"
	"github.com/jwalitptl/clinic-reports/internal/report/merge"
	reportsvc "github.com/jwalitptl/clinic-reports/internal/service/report"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
)

func newTestRouter(t *testing.T, cfg RouterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := reportsvc.NewService(
		attachment.NewResolver(blobstore.NewMemoryStore(), attachment.Config{}, nil, nil),
		document.NewComposer(nil),
		merge.NewPDFMerger(nil, nil),
		nil, nil, nil, reportsvc.Options{},
	)
	r, err := NewRouter(
		logger.Nop(),
		promhandler.New(prometheus.NewRegistry(), "test"),
		health.NewHandler(nil),
		reporthandler.NewHandler(svc),
		nil,
		cfg,
	)
	require.NoError(t, err)
	r.Setup()
	return r.Engine()
}

func do(e *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.ServeHTTP(w, req)
	return w
}

const csvBody = `{"subject": {"first_name": "Jane"}, "exportOptions": {"basicInfo": true}, "exportFormat": "csv"}`

func TestRouter_ReportRouteWithMiddleware(t *testing.T) {
	e := newTestRouter(t, RouterConfig{CORSConfig: middleware.DefaultCORSConfig()})

	w := do(e, http.MethodPost, "/api/v1/reports/patient", csvBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(e, http.MethodGet, "/api/v1/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="POST",path="/api/v1/reports/:kind",status="200"} 1`)
}

func TestRouter_RequestIDIsPropagated(t *testing.T) {
	e := newTestRouter(t, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set(middleware.HeaderXRequestID, "abc-123")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(middleware.HeaderXRequestID))
}

func TestRouter_RateLimit(t *testing.T) {
	e := newTestRouter(t, RouterConfig{RateLimitEnabled: true, RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/v1/reports/patient", csvBody).Code)

	w := do(e, http.MethodPost, "/api/v1/reports/patient", csvBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	// Health is outside the limited group.
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/v1/health/live", "").Code)
}

func TestRouter_BodyLimit(t *testing.T) {
	e := newTestRouter(t, RouterConfig{MaxBodyBytes: 64, RequestTimeout: time.Second})

	body := `{"subject": {"notes": "` + strings.Repeat("x", 200) + `"}, "exportOptions": {}}`
	w := do(e, http.MethodPost, "/api/v1/reports/patient", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_PanicsAreRecovered(t *testing.T) {
	e := newTestRouter(t, RouterConfig{})
	e.GET("/boom", func(*gin.Context) { panic("boom") })

	w := do(e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}
