package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/marr05/RAG-TO-AWS/internal/platform/ctxutil"
)

func traceRouter(seen **ctxutil.TraceData) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		*seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})
	return r
}

func TestAttachTraceContextReplacesUnusableIDs(t *testing.T) {
	for name, value := range map[string]string{
		"too long":   strings.Repeat("r", maxInboundIDLen+1),
		"whitespace": "req 1",
		"control":    "req\x7f1",
	} {
		t.Run(name, func(t *testing.T) {
			var seen *ctxutil.TraceData
			r := traceRouter(&seen)
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set(RequestIDHeader, value)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got == value {
				t.Fatalf("request id should be regenerated, got=%q", got)
			}
			if seen == nil || seen.RequestID != got {
				t.Fatalf("context trace data: want request id %q got=%+v", got, seen)
			}
		})
	}
}

func TestAttachTraceContextTraceFallsBackToRequestID(t *testing.T) {
	var seen *ctxutil.TraceData
	r := traceRouter(&seen)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "  req-7  ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-7" {
		t.Fatalf("request id: want=%q got=%q", "req-7", got)
	}
	if got := rec.Header().Get(TraceIDHeader); got != "req-7" {
		t.Fatalf("trace id: want=%q got=%q", "req-7", got)
	}
	if seen == nil || seen.TraceID != "req-7" {
		t.Fatalf("context trace data: got=%+v", seen)
	}
}

func TestAttachTraceContextKeepsInboundTraceID(t *testing.T) {
	var seen *ctxutil.TraceData
	r := traceRouter(&seen)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(TraceIDHeader, "trace-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(TraceIDHeader); got != "trace-abc" {
		t.Fatalf("trace id: want=%q got=%q", "trace-abc", got)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("request id header missing")
	}
}
