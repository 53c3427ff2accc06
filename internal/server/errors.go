package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/listingboost/internal/catalog/domain"
	entitlementdomain "github.com/smallbiznis/listingboost/internal/entitlement/domain"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
	orderdomain "github.com/smallbiznis/listingboost/internal/order/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Errors     []ValidationError `json:"errors,omitempty"`
	ResetAt    *time.Time        `json:"reset_at,omitempty"`
	RetryAfter int64             `json:"retry_after_seconds,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if payload.RetryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(payload.RetryAfter, 10))
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var rateErr *orderdomain.RateLimitError
	var quotaErr *listingdomain.QuotaError

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, entitlementdomain.ErrInvalidUser),
		errors.Is(err, orderdomain.ErrInvalidBuyer):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.As(err, &quotaErr):
		return http.StatusForbidden, errorPayload{
			Type:    "quota_exceeded",
			Message: quotaErr.Decision.Reason,
			ResetAt: quotaErr.ResetAt(),
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, listingdomain.ErrNotOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, orderdomain.ErrPromotionActive):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "listing already has an active promotion",
		}
	case errors.Is(err, entitlementdomain.ErrConcurrentUpdate):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "concurrent update, retry the request",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests, errorPayload{
			Type:       "rate_limited",
			Message:    "too many payment attempts",
			RetryAfter: retryAfterSeconds(rateErr.RetryAfter),
		}
	case errors.Is(err, orderdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many payment attempts",
		}
	case errors.Is(err, orderdomain.ErrGatewayUnavailable),
		errors.Is(err, orderdomain.ErrOrderCodeExhausted):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "payment gateway unavailable, please retry",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and a low-cardinality code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if err == nil {
		return payload.Type, ""
	}
	code, _, _ := strings.Cut(err.Error(), ":")
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderdomain.ErrPackageInactive),
		errors.Is(err, orderdomain.ErrListingRequired),
		errors.Is(err, listingdomain.ErrInvalidTitle),
		errors.Is(err, catalogdomain.ErrInvalidPackageType):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrPackageNotFound),
		errors.Is(err, listingdomain.ErrListingNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, orderdomain.ErrPackageInactive):
		return "package_inactive"
	case errors.Is(err, orderdomain.ErrListingRequired):
		return "listing_required"
	case errors.Is(err, listingdomain.ErrInvalidTitle):
		return "invalid_title"
	case errors.Is(err, catalogdomain.ErrInvalidPackageType):
		return "invalid_package_type"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "package_inactive", "invalid_package_type":
		return "package_id"
	case "listing_required":
		return "listing_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "package_inactive":
		return "package is not available for purchase"
	case "listing_required":
		return "this package needs a listing you own"
	default:
		return "invalid value"
	}
}

func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64(math.Ceil(d.Seconds()))
}
