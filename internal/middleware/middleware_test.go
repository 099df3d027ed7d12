package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/passpolicy/internal/handler"
	"github.com/jwalitptl/passpolicy/pkg/auth"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.Response {
	t.Helper()
	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewJWTService("secret", "passpolicy")
	m := NewAuthMiddleware(tokens)

	r := gin.New()
	r.GET("/admin", m.Authenticate(), m.RequireRole("admin"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(handler.ContextActor))
	})

	admin, err := tokens.GenerateAccessToken("root", "admin", time.Hour)
	require.NoError(t, err)
	viewer, err := tokens.GenerateAccessToken("guest", "viewer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "root", w.Body.String())
			}
		})
	}
}

func TestIdentifyAllowsAnonymousCallers(t *testing.T) {
	tokens := auth.NewJWTService("secret", "passpolicy")
	m := NewAuthMiddleware(tokens)

	r := gin.New()
	r.GET("/whoami", m.Identify(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(handler.ContextActor))
	})

	user, err := tokens.GenerateAccessToken("alice-1", "user", time.Hour)
	require.NoError(t, err)

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call("")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = call("Bearer " + user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call("Bearer forged").Code)
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.GET("/persistence", func(c *gin.Context) {
		_ = c.Error(errors.Persistence("failed to save password policy", assert.AnError))
	})
	r.GET("/policy", func(c *gin.Context) {
		_ = c.Error(&errors.PolicyValidationError{Violations: []string{"minLength > maxLength"}})
	})
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.String(http.StatusTeapot, "tea")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/persistence", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "failed to save password policy", resp.Message)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error(), "causes stay internal")
	assert.Equal(t, w.Header().Get(HeaderXRequestID), resp.TraceID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/policy", nil))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp = decode(t, w)
	assert.Equal(t, []interface{}{"minLength > maxLength"}, resp.Errors)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestValidationMiddleware(t *testing.T) {
	type request struct {
		Name  string `json:"name" binding:"required"`
		Count int    `json:"count" binding:"gte=0"`
	}

	r := gin.New()
	r.Use(ErrorHandler(), Validation(DefaultValidationConfig()))
	r.POST("/", func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.BindError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, post(`{"name":"x"}`).Code)

	w := post(`{"count":-1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Errors []handler.FieldError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []handler.FieldError{
		{Field: "name", Message: "field is required"},
		{Field: "count", Message: "value is too small"},
	}, body.Errors)

	w = post(`{"name":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "name", body.Errors[0].Field)

	w = post(`{`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "malformed request body", decode(t, w).Message)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})

	r := gin.New()
	r.GET("/", rl.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"), "limits are per client")
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.POST("/", SizeLimit(SizeLimitConfig{MaxBodySize: 8}), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(DefaultSecurityConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(HeaderXRequestID), 36)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w).Message)
}

func TestCORS(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowOrigins = []string{"https://admin.example.com"}

	r := gin.New()
	r.Use(CORS(config))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
