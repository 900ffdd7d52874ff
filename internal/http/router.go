package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/marr05/RAG-TO-AWS/internal/http/handlers"
	httpMW "github.com/marr05/RAG-TO-AWS/internal/http/middleware"
	"github.com/marr05/RAG-TO-AWS/internal/observability"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	QueryHandler  *httpH.QueryHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/", cfg.HealthHandler.Index)
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Queries
	if cfg.QueryHandler != nil {
		r.POST("/submit_query", cfg.QueryHandler.SubmitQuery)
		r.GET("/get_query", cfg.QueryHandler.GetQuery)
		r.GET("/list_query", cfg.QueryHandler.ListQuery)
	}

	return r
}
