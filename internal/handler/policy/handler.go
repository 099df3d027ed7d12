package policy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/passpolicy/internal/handler"
	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/service/audit"
	"github.com/jwalitptl/passpolicy/internal/service/policy"
)

type Handler struct {
	service policy.PolicyServicer
}

func NewHandler(service policy.PolicyServicer) *Handler {
	return &Handler{
		service: service,
	}
}

type TestPasswordRequest struct {
	Password *string `json:"password" binding:"required"`
}

// RegisterRoutes mounts the admin endpoints on r, which must already be
// behind admin authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/password-policy")
	{
		policies.GET("", h.Get)
		policies.PUT("", h.Update)
		policies.POST("/reset", h.Reset)
		policies.GET("/export", h.Export)
		policies.POST("/import", h.Import)
		policies.POST("/test", h.TestPassword)
		policies.GET("/statistics", h.Statistics)
	}
}

func (h *Handler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.GetPolicy()))
}

func (h *Handler) Update(c *gin.Context) {
	var candidate model.PasswordPolicy
	if err := decodeStrict(c, &candidate); err != nil {
		handler.BindError(c, err)
		return
	}

	applied, err := h.service.SetPolicy(c.Request.Context(), actor(c), candidate, logOptions(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(applied))
}

func (h *Handler) Reset(c *gin.Context) {
	applied, err := h.service.ResetPolicy(c.Request.Context(), actor(c), logOptions(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(applied))
}

func (h *Handler) Export(c *gin.Context) {
	export, err := h.service.ExportPolicy(c.Request.Context(), actor(c), logOptions(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(export))
}

// Import takes the raw export document; the service owns its decoding.
func (h *Handler) Import(c *gin.Context) {
	document, err := io.ReadAll(c.Request.Body)
	if err != nil {
		handler.BindError(c, err)
		return
	}

	applied, err := h.service.ImportPolicy(c.Request.Context(), actor(c), document, logOptions(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(applied))
}

func (h *Handler) TestPassword(c *gin.Context) {
	var req TestPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	result, err := h.service.TestPassword(c.Request.Context(), *req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Statistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

// decodeStrict rejects fields the policy does not define.
func decodeStrict(c *gin.Context, v interface{}) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func actor(c *gin.Context) string {
	return c.GetString(handler.ContextActor)
}

func logOptions(c *gin.Context) *audit.LogOptions {
	return &audit.LogOptions{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
