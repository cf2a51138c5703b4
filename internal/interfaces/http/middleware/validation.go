package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/shipfunnel/backend/internal/domain/settlement"
	"github.com/shipfunnel/backend/internal/interfaces/http/dto"
)

var (
	setupValidatorOnce sync.Once
	stripeAccountRe    = regexp.MustCompile(`^acct_[A-Za-z0-9]+$`)
)

// SetupValidator makes binding errors report JSON field names and registers
// the funnel tags: stripe_account, transfer_mode and weekday.
func SetupValidator() {
	setupValidatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("stripe_account", func(fl validator.FieldLevel) bool {
			return stripeAccountRe.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("transfer_mode", func(fl validator.FieldLevel) bool {
			return settlement.DispatchMode(fl.Field().String()).IsValid()
		})
		_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, err := settlement.ParseWeekday(fl.Field().String())
			return err == nil
		})
	})
}

// FormatValidationErrors converts binding errors into the standard error body.
// Anything that is not a validator error is reported as malformed JSON.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return dto.NewErrorResponseWithRequestID(dto.ErrCodeInvalidJSON, "Request body is not valid JSON", requestID)
	}

	details := make([]dto.ValidationDetail, 0, len(validationErrors))
	for _, e := range validationErrors {
		details = append(details, dto.ValidationDetail{
			Field:   e.Field(),
			Message: getValidationMessage(e),
		})
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 response for a failed bind
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, c.GetString(RequestIDKey)))
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "required_without":
		return "Required when " + e.Param() + " is absent"
	case "email":
		return "Invalid email format"
	case "startswith":
		return "Must start with " + e.Param()
	case "stripe_account":
		return "Must be a connected account id (acct_...)"
	case "transfer_mode":
		return "Must be one of: auto manual scheduled_weekly scheduled_monthly disabled"
	case "weekday":
		return "Must be a weekday name"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	default:
		return "Invalid value"
	}
}
