package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/passpolicy/pkg/errors"
)

// Context keys shared by middleware and handlers.
const (
	ContextActor = "actor"
	ContextRole  = "role"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// NewValidationErrorResponse carries per-field or per-rule problems.
func NewValidationErrorResponse(message string, errs interface{}) *Response {
	return &Response{
		Status:  "error",
		Message: message,
		Errors:  errs,
	}
}

// BindError records a request decoding failure for the validation middleware.
func BindError(c *gin.Context, err error) {
	_ = c.Error(errors.BadRequest("invalid request body", err)).SetType(gin.ErrorTypeBind)
}
