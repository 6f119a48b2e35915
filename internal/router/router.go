package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	promhandler "github.com/jwalitptl/clinic-reports/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-reports/internal/middleware"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	CORSConfig       middleware.CORSConfig
}

type Router struct {
	engine  *gin.Engine
	log     *logger.Logger
	metrics *promhandler.Handler
	healthH Handler
	reportH Handler
	// fileH serves local store downloads; nil for other storage drivers.
	fileH  Handler
	config RouterConfig
}

func NewRouter(
	log *logger.Logger,
	metrics *promhandler.Handler,
	healthH Handler,
	reportH Handler,
	fileH Handler,
	config RouterConfig,
) (*Router, error) {
	if err := middleware.RegisterValidation(middleware.DefaultValidationConfig()); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = middleware.DefaultTimeoutConfig().Duration
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = middleware.DefaultSizeLimitConfig().MaxBodySize
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(log),
		middleware.Recovery(log),
		middleware.Logger(log),
		metrics.Middleware(),
		middleware.ErrorHandler(log),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.Compress(middleware.DefaultCompressConfig()),
	)

	return &Router{
		engine:  engine,
		log:     log,
		metrics: metrics,
		healthH: healthH,
		reportH: reportH,
		fileH:   fileH,
		config:  config,
	}, nil
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")
	r.healthH.RegisterRoutes(api)
	if r.fileH != nil {
		r.fileH.RegisterRoutes(api)
	}

	reports := api.Group("")
	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		reports.Use(limiter.RateLimit())
	}
	sizeLimit := middleware.DefaultSizeLimitConfig()
	sizeLimit.MaxBodySize = r.config.MaxBodyBytes
	reports.Use(
		middleware.SizeLimit(sizeLimit),
		middleware.Timeout(middleware.TimeoutConfig{Duration: r.config.RequestTimeout}),
	)
	r.reportH.RegisterRoutes(reports)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
