package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voipbilling/pkg/response"

	"github.com/gin-gonic/gin"
)

func newMiddlewareEngine(allowOrigins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), AccessLogMiddleware(), RecoveryMiddleware(), CORSMiddleware(allowOrigins))
	r.GET("/boom", func(c *gin.Context) { panic("nil rate card") })
	r.GET("/ok", func(c *gin.Context) { response.Success(c, nil) })
	return r
}

func TestRecoveryKeepsRequestID(t *testing.T) {
	r := newMiddlewareEngine()

	req := httptest.NewRequest("GET", "/boom", nil)
	req.Header.Set(requestIDHeader, "rid-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("HTTP %d, want 500", w.Code)
	}
	if got := w.Header().Get(requestIDHeader); got != "rid-42" {
		t.Fatalf("%s = %q, want rid-42", requestIDHeader, got)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Code != response.CodeServerError || !strings.Contains(env.Message, "rid-42") {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	r := newMiddlewareEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("missing generated request id")
	}
}

func TestCORSAllowList(t *testing.T) {
	r := newMiddlewareEngine("https://console.example.com/")

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"白名单预检", "OPTIONS", "https://console.example.com", http.StatusNoContent, "https://console.example.com"},
		{"白名单请求", "GET", "https://console.example.com", http.StatusOK, "https://console.example.com"},
		{"非白名单预检", "OPTIONS", "https://evil.example.com", http.StatusForbidden, ""},
		{"非白名单请求", "GET", "https://evil.example.com", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/ok", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("HTTP %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" && w.Header().Get("Access-Control-Expose-Headers") != requestIDHeader {
				t.Fatal("request id header should be exposed")
			}
		})
	}
}

func TestCORSOpenByDefault(t *testing.T) {
	r := newMiddlewareEngine()

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q, want *", got)
	}
}
