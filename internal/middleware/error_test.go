package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "pocketledger/internal/errors"
)

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/app", func(c *gin.Context) {
		_ = c.Error(apperrors.Storage(errors.New("connection reset")))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app", http.NoBody))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	errObj := parseBody(t, rec)["error"].(map[string]interface{})
	if errObj["code"] != "STORAGE_ERROR" || errObj["details"] != "connection reset" {
		t.Errorf("unexpected error body: %v", errObj)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plain", http.NoBody))
	errObj = parseBody(t, rec)["error"].(map[string]interface{})
	if errObj["code"] != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %v", errObj["code"])
	}
	if _, leaked := errObj["details"]; leaked {
		t.Error("unexpected details on a generic error")
	}
}

func TestRequestLogging_RequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogging())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))
	generated := rec.Header().Get("X-Request-ID")
	if generated == "" {
		t.Fatal("expected a generated request id")
	}

	const incoming = "0191d7a0-2222-7000-8000-000000000002"
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Header.Set("X-Request-ID", incoming)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != incoming {
		t.Errorf("expected incoming id to be reused, got %s", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Header.Set("X-Request-ID", "not a uuid")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == "not a uuid" {
		t.Error("expected an invalid incoming id to be replaced")
	}
}
