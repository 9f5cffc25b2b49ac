package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

func TestErrorHandler_NoErrors(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestErrorHandler_AppError(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(apperrors.NotFound("submission not found"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var env apperrors.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.OK {
		t.Error("ok = true, want false")
	}
	if env.Error == nil || env.Error.Type != apperrors.TypeNotFound {
		t.Errorf("error envelope = %+v, want type not_found", env.Error)
	}
	if len(env.Error.NextActions) == 0 {
		t.Error("error envelope should carry next actions")
	}
}

func TestErrorHandler_ExpiredMapsTo410(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/gone", func(c *gin.Context) {
		_ = c.Error(apperrors.Expired("submission expired"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gone", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want %d", w.Code, http.StatusGone)
	}
}

func TestErrorHandler_GenericError(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/err", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("something unexpected"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/err", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var env apperrors.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error == nil || env.Error.Type != apperrors.TypeInternalError {
		t.Errorf("error envelope = %+v, want type internal_error", env.Error)
	}
}

func TestTenantMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(Tenant())
	router.GET("/t", func(c *gin.Context) {
		c.String(http.StatusOK, GetTenantID(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(TenantHeader, "acme")
	router.ServeHTTP(w, req)
	if w.Body.String() != "acme" {
		t.Errorf("tenant = %q, want acme", w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/t", nil)
	router.ServeHTTP(w, req)
	if w.Body.String() != "" {
		t.Errorf("tenant = %q, want empty", w.Body.String())
	}
}
