package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/passpolicy/internal/handler"
)

// ValidationConfig represents validation middleware configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomErrorMessages: map[string]string{
			"required": "field is required",
			"eqfield":  "values do not match",
			"min":      "value is too small",
			"max":      "value is too large",
			"gte":      "value is too small",
			"lte":      "value is too large",
		},
	}
}

// Validation reports request binding failures as 400 responses listing the
// offending fields. Handlers add the bind error to the context and return.
func Validation(config ValidationConfig) gin.HandlerFunc {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		for tag, fn := range config.CustomValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}

		// Report fields by their json names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	}

	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		var fieldErrors []handler.FieldError
		malformed := false
		for _, ginErr := range c.Errors.ByType(gin.ErrorTypeBind) {
			var errs validator.ValidationErrors
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			switch {
			case stderrors.As(ginErr.Err, &errs):
				for _, e := range errs {
					msg := config.CustomErrorMessages[e.Tag()]
					if msg == "" {
						msg = e.Error()
					}
					fieldErrors = append(fieldErrors, handler.FieldError{Field: e.Field(), Message: msg})
				}
			case stderrors.As(ginErr.Err, &typeErr):
				fieldErrors = append(fieldErrors, handler.FieldError{Field: typeErr.Field, Message: "wrong type, expected " + typeErr.Type.String()})
			case stderrors.As(ginErr.Err, &syntaxErr):
				malformed = true
			default:
				malformed = true
			}
		}

		switch {
		case len(fieldErrors) > 0:
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewValidationErrorResponse("request validation failed", fieldErrors))
		case malformed:
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewErrorResponse("malformed request body"))
		}
	}
}
