package password

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/passpolicy/internal/middleware"
	engine "github.com/jwalitptl/passpolicy/internal/password"
	"github.com/jwalitptl/passpolicy/internal/policy"
	"github.com/jwalitptl/passpolicy/internal/repository/memory"
	"github.com/jwalitptl/passpolicy/internal/service/password"
	"github.com/jwalitptl/passpolicy/pkg/auth"
	"github.com/jwalitptl/passpolicy/pkg/security"
)

const strongPassword = "Zebra!Quartz#77Lamp"

var tokens = auth.NewJWTService("secret", "passpolicy")

func token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := tokens.GenerateAccessToken(subject, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	validator := engine.NewValidator(nil)
	svc := password.NewService(
		policy.NewStore(),
		validator,
		engine.NewGenerator(validator, 0),
		engine.NewHistoryTracker(security.NewBcryptHasher(bcrypt.MinCost)),
		memory.NewHistoryRepository(0, 0),
		password.Config{DefaultLength: 16},
		nil,
		nil,
	)

	authn := middleware.NewAuthMiddleware(tokens)
	h := NewHandler(svc, "admin")

	r := gin.New()
	r.Use(middleware.ErrorHandler(), middleware.Validation(middleware.DefaultValidationConfig()))
	h.RegisterRoutes(r.Group("/api/v1", authn.Identify()))
	h.RegisterAccountRoutes(r.Group("/api/v1", authn.Authenticate()))
	return r
}

func do(t *testing.T, r http.Handler, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func data(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}

func TestValidate(t *testing.T) {
	r := setupRouter(t)

	w, resp := do(t, r, http.MethodPost, "/api/v1/passwords/validate", "", gin.H{
		"identity": gin.H{"first_name": "Alice"},
		"password": strongPassword,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(t, resp)["is_valid"])

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/validate", "", gin.H{"password": ""})
	require.Equal(t, http.StatusOK, w.Code, "an empty password is a failing verdict")
	assert.Equal(t, false, data(t, resp)["is_valid"])

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/validate", "", gin.H{
		"identity": gin.H{"email": "not-an-email"},
		"password": strongPassword,
	})
	require.Equal(t, http.StatusOK, w.Code, "identity fields are opaque strings")
	assert.Equal(t, true, data(t, resp)["is_valid"])
}

func TestValidateRejectsBadRequests(t *testing.T) {
	r := setupRouter(t)

	w, resp := do(t, r, http.MethodPost, "/api/v1/passwords/validate", "", gin.H{"identity": gin.H{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	errs, ok := resp["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "password", errs[0].(map[string]interface{})["field"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/passwords/validate", "", `{"password":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/passwords/validate", "forged", gin.H{"password": strongPassword})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a presented token must be valid")
}

func TestValidateChecksHistoryOnlyForItsOwner(t *testing.T) {
	r := setupRouter(t)
	alice := token(t, "alice-1", "user")

	w, _ := do(t, r, http.MethodPost, "/api/v1/passwords/change", alice, gin.H{
		"identity":         gin.H{"id": "alice-1"},
		"password":         strongPassword,
		"confirm_password": strongPassword,
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := gin.H{"identity": gin.H{"id": "alice-1"}, "password": strongPassword}

	w, resp := do(t, r, http.MethodPost, "/api/v1/passwords/validate", alice, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, data(t, resp)["issues"], "password_reused")

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/validate", "", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(t, resp)["is_valid"], "anonymous callers cannot query history")

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/validate", token(t, "mallory", "user"), body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(t, resp)["is_valid"])
}

func TestChangeAndInfo(t *testing.T) {
	r := setupRouter(t)
	alice := token(t, "alice-1", "user")
	body := gin.H{"identity": gin.H{"id": "alice-1"}, "password": strongPassword, "confirm_password": strongPassword}

	w, resp := do(t, r, http.MethodPost, "/api/v1/passwords/change", alice, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(t, resp)["is_valid"])

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/change", alice, body)
	require.Equal(t, http.StatusOK, w.Code)
	verdict := data(t, resp)
	assert.Equal(t, false, verdict["is_valid"])
	assert.Contains(t, verdict["issues"], "password_reused")

	w, resp = do(t, r, http.MethodGet, "/api/v1/passwords/alice-1/info", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := data(t, resp)
	assert.Equal(t, float64(1), info["change_count"])
	assert.NotEmpty(t, info["last_changed_at"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/passwords/change", alice, gin.H{"password": strongPassword, "confirm_password": strongPassword})
	assert.Equal(t, http.StatusBadRequest, w.Code, "recording needs an identity id")
}

func TestChangeRequiresMatchingConfirmation(t *testing.T) {
	r := setupRouter(t)
	alice := token(t, "alice-1", "user")

	w, resp := do(t, r, http.MethodPost, "/api/v1/passwords/change", alice, gin.H{
		"identity":         gin.H{"id": "alice-1"},
		"password":         strongPassword,
		"confirm_password": "Zebra!Quartz#77Lamb",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	errs, ok := resp["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "confirm_password", errs[0].(map[string]interface{})["field"])
	assert.Equal(t, "values do not match", errs[0].(map[string]interface{})["message"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/passwords/change", alice, gin.H{
		"identity": gin.H{"id": "alice-1"},
		"password": strongPassword,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/passwords/alice-1/info", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), data(t, resp)["change_count"])
}

func TestAccountRoutesRequireOwnerOrAdmin(t *testing.T) {
	r := setupRouter(t)
	alice := token(t, "alice-1", "user")
	mallory := token(t, "mallory", "user")
	admin := token(t, "root", "admin")
	change := gin.H{"identity": gin.H{"id": "alice-1"}, "password": strongPassword, "confirm_password": strongPassword}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"change", http.MethodPost, "/api/v1/passwords/change", change},
		{"expiry", http.MethodGet, "/api/v1/passwords/alice-1/expiry", nil},
		{"info", http.MethodGet, "/api/v1/passwords/alice-1/info", nil},
		{"init", http.MethodPost, "/api/v1/passwords/alice-1/init", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := do(t, r, tt.method, tt.path, "", tt.body)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			w, _ = do(t, r, tt.method, tt.path, mallory, tt.body)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}

	w, _ := do(t, r, http.MethodGet, "/api/v1/passwords/alice-1/info", alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/passwords/alice-1/info", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := do(t, r, http.MethodGet, "/api/v1/passwords/alice-1/info", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), data(t, resp)["change_count"], "rejected callers recorded nothing")
}

func TestExpiryAndInitialize(t *testing.T) {
	r := setupRouter(t)
	bob := token(t, "bob", "user")

	w, resp := do(t, r, http.MethodGet, "/api/v1/passwords/bob/expiry", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", data(t, resp)["state"])

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/bob/init", bob, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, data(t, resp)["created"])

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/bob/init", token(t, "root", "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, data(t, resp)["created"])
}

func TestGenerate(t *testing.T) {
	r := setupRouter(t)

	w, resp := do(t, r, http.MethodPost, "/api/v1/passwords/generate", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data(t, resp)["password"], 16)

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/generate", "", gin.H{"length": 24})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data(t, resp)["password"], 24)

	w, resp = do(t, r, http.MethodPost, "/api/v1/passwords/generate", "", gin.H{"length": 4})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", resp["status"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/passwords/generate", "", gin.H{"length": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
