package password

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/passpolicy/internal/handler"
	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/service/password"
	"github.com/jwalitptl/passpolicy/pkg/errors"
)

type Handler struct {
	service   password.PasswordServicer
	adminRole string
}

// NewHandler builds the password routes. Callers holding adminRole may act
// for any identity; everyone else only for their own token subject.
func NewHandler(service password.PasswordServicer, adminRole string) *Handler {
	return &Handler{
		service:   service,
		adminRole: adminRole,
	}
}

// Password is a pointer so an empty string reaches the engine as a failing
// candidate instead of tripping "required".
type ValidateRequest struct {
	Identity model.IdentityInfo `json:"identity"`
	Password *string            `json:"password" binding:"required"`
}

type ChangeRequest struct {
	Identity        model.IdentityInfo `json:"identity"`
	Password        *string            `json:"password" binding:"required"`
	ConfirmPassword *string            `json:"confirm_password" binding:"required,eqfield=Password"`
}

type GenerateRequest struct {
	Length int `json:"length" binding:"gte=0"`
}

type GenerateResponse struct {
	Password string `json:"password"`
}

type InitializeResponse struct {
	*model.PasswordInfo
	Created bool `json:"created"`
}

// RegisterRoutes mounts the operations open to anonymous callers.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	passwords := r.Group("/passwords")
	{
		passwords.POST("/validate", h.Validate)
		passwords.POST("/generate", h.Generate)
	}
}

// RegisterAccountRoutes mounts the operations bound to one identity. r must
// authenticate the caller.
func (h *Handler) RegisterAccountRoutes(r *gin.RouterGroup) {
	passwords := r.Group("/passwords")
	{
		passwords.POST("/change", h.Change)
		passwords.GET("/:identity/expiry", h.Expiry)
		passwords.GET("/:identity/info", h.Info)
		passwords.POST("/:identity/init", h.Initialize)
	}
}

// authorize admits the identity itself or an admin.
func (h *Handler) authorize(c *gin.Context, identityID string) error {
	actor := c.GetString(handler.ContextActor)
	if actor == "" {
		return errors.Unauthorized(nil)
	}
	if actor == identityID {
		return nil
	}
	if h.adminRole != "" && c.GetString(handler.ContextRole) == h.adminRole {
		return nil
	}
	return errors.Forbidden("not allowed to act for this identity")
}

func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	// History is private to its owner; other callers get a verdict without
	// the reuse check.
	if req.Identity.ID != "" && h.authorize(c, req.Identity.ID) != nil {
		req.Identity.ID = ""
	}

	result, err := h.service.ValidatePassword(c.Request.Context(), req.Identity, *req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.BindError(c, err)
			return
		}
	}

	pw, err := h.service.GeneratePassword(c.Request.Context(), req.Length)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(GenerateResponse{Password: pw}))
}

// Change records the password when it passes. A failing verdict is still a
// 200 with is_valid=false.
func (h *Handler) Change(c *gin.Context) {
	var req ChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	if req.Identity.ID != "" {
		if err := h.authorize(c, req.Identity.ID); err != nil {
			_ = c.Error(err)
			return
		}
	}

	result, err := h.service.RecordPasswordChange(c.Request.Context(), req.Identity, *req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Expiry(c *gin.Context) {
	if err := h.authorize(c, c.Param("identity")); err != nil {
		_ = c.Error(err)
		return
	}

	status, err := h.service.GetExpiryStatus(c.Request.Context(), c.Param("identity"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(status))
}

func (h *Handler) Info(c *gin.Context) {
	if err := h.authorize(c, c.Param("identity")); err != nil {
		_ = c.Error(err)
		return
	}

	info, err := h.service.GetPasswordInfo(c.Request.Context(), c.Param("identity"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(info))
}

func (h *Handler) Initialize(c *gin.Context) {
	if err := h.authorize(c, c.Param("identity")); err != nil {
		_ = c.Error(err)
		return
	}

	info, created, err := h.service.InitializeIdentity(c.Request.Context(), c.Param("identity"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, handler.NewSuccessResponse(InitializeResponse{PasswordInfo: info, Created: created}))
}
