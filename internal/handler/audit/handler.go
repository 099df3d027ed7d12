package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/passpolicy/internal/handler"
	"github.com/jwalitptl/passpolicy/internal/model"
)

// MaxLimit caps a single page of audit entries.
const MaxLimit = 1000

type AuditLister interface {
	ListAuditLog(ctx context.Context, limit int) ([]*model.AuditLog, error)
}

type Handler struct {
	service AuditLister
}

func NewHandler(service AuditLister) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/password-policy/audit", h.ListLogs)
}

// ListLogs returns the latest admin actions, newest first. limit defaults
// to 100.
func (h *Handler) ListLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxLimit {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	logs, err := h.service.ListAuditLog(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}
