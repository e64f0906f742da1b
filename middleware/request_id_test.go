package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
)

func newRequestIDRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		fromCtx, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c), "ctx": fromCtx})
	})
	return router
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated", incoming: ""},
		{name: "propagated", incoming: "existing-request-id-123", keep: true},
		{name: "oversized replaced", incoming: strings.Repeat("x", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			newRequestIDRouter().ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if got == "" {
				t.Fatal("Expected X-Request-ID header to be set")
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("Expected request ID '%s', got '%s'", tt.incoming, got)
			}
			if !tt.keep && got == tt.incoming {
				t.Errorf("Expected a fresh request ID, got '%s'", got)
			}
			if !strings.Contains(w.Body.String(), `"ctx":"`+got+`"`) {
				t.Errorf("Expected request ID on request context, body %s", w.Body.String())
			}
		})
	}
}

func TestGetRequestIDEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if requestID := GetRequestID(c); requestID != "" {
		t.Errorf("Expected empty string, got '%s'", requestID)
	}
}
