package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	clientdomain "github.com/smallbiznis/quoteflow/internal/client/domain"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/smallbiznis/quoteflow/internal/lineitem"
	"github.com/smallbiznis/quoteflow/internal/numbering"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/totals"
	"gorm.io/gorm"
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

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string            `json:"error"`
	Type    string            `json:"type"`
	Details []ValidationError `json:"details,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
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
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
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

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Type: "internal_error", Error: "internal server error"}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorResponse{
			Type:    "validation_error",
			Error:   "validation error",
			Details: vErr.Errors,
		}
	}

	var lineErr *lineitem.ValidationError
	if errors.As(err, &lineErr) && lineErr != nil {
		details := make([]ValidationError, 0, len(lineErr.Issues))
		for _, issue := range lineErr.Issues {
			details = append(details, ValidationError(issue))
		}
		return http.StatusBadRequest, errorResponse{
			Type:    "validation_error",
			Error:   "invalid line items",
			Details: details,
		}
	}

	if code, field, ok := lookupValidation(err); ok {
		return http.StatusBadRequest, errorResponse{
			Type:  "validation_error",
			Error: "validation error",
			Details: []ValidationError{{
				Field:   field,
				Code:    code,
				Message: err.Error(),
			}},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, identitydomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorResponse{Type: "unauthorized", Error: "unauthorized"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidBusiness),
		errors.Is(err, identitydomain.ErrNoBusiness):
		return http.StatusForbidden, errorResponse{Type: "forbidden", Error: "forbidden"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorResponse{Type: "not_found", Error: notFoundMessage(err)}
	case errors.Is(err, quotedomain.ErrInvalidState),
		errors.Is(err, invoicedomain.ErrInvalidState):
		return http.StatusBadRequest, errorResponse{Type: "invalid_state", Error: err.Error()}
	case errors.Is(err, quotedomain.ErrNoSnapshotFound):
		return http.StatusBadRequest, errorResponse{Type: "invalid_state", Error: "quote has no acceptance snapshot"}
	case errors.Is(err, invoicedomain.ErrEmptyInvoice):
		return http.StatusBadRequest, errorResponse{Type: "empty_invoice", Error: "invoice has no items"}
	case errors.Is(err, quotedomain.ErrEmptyQuote):
		return http.StatusBadRequest, errorResponse{Type: "invalid_state", Error: "quote has no items"}
	case errors.Is(err, invoicedomain.ErrStatusChangeViaUpdate):
		return http.StatusBadRequest, errorResponse{
			Type:  "status_change_not_allowed",
			Error: "status cannot be changed by update; use POST /api/invoices/{id}/status",
		}
	case errors.Is(err, quotedomain.ErrAlreadyInvoiced):
		return http.StatusConflict, errorResponse{Type: "conflict", Error: "quote has already been invoiced"}
	case errors.Is(err, invoicedomain.ErrInvoiceNumberTaken):
		return http.StatusConflict, errorResponse{Type: "conflict", Error: "invoice number already in use"}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorResponse{Type: "conflict", Error: "conflict"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Type: "rate_limited", Error: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Type: "service_unavailable", Error: "service unavailable"}
	case errors.Is(err, numbering.ErrNumberGenerationFailed):
		return http.StatusInternalServerError, errorResponse{Type: "number_generation_failed", Error: "could not allocate a document number"}
	case errors.Is(err, invoicedomain.ErrPersistenceFailed):
		return http.StatusInternalServerError, errorResponse{Type: "persistence_failed", Error: "invoice could not be saved"}
	default:
		return http.StatusInternalServerError, errorResponse{Type: "internal_error", Error: "internal server error"}
	}
}

// classifyErrorForLog returns the error type and code recorded on the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "internal", payload.Type
	}
	return "client", payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []struct {
	err   error
	field string
}{
	{ErrInvalidRequest, "request"},
	{totals.ErrInvalidLineItem, "items"},
	{clientdomain.ErrInvalidName, "name"},
	{clientdomain.ErrInvalidEmail, "email"},
	{clientdomain.ErrInvalidID, "id"},
	{quotedomain.ErrInvalidID, "id"},
	{quotedomain.ErrInvalidClient, "client_id"},
	{quotedomain.ErrInvalidCurrency, "currency"},
	{quotedomain.ErrInvalidVATRate, "vat_rate"},
	{invoicedomain.ErrInvalidID, "id"},
	{invoicedomain.ErrInvalidClient, "client_id"},
	{invoicedomain.ErrInvalidQuote, "quote_id"},
	{invoicedomain.ErrInvalidCurrency, "currency"},
	{invoicedomain.ErrInvalidDate, "date"},
	{invoicedomain.ErrDueBeforeIssue, "due_date"},
	{invoicedomain.ErrInvalidVATRate, "vat_rate"},
	{invoicedomain.ErrInvalidInvoiceNumber, "invoice_number"},
	{invoicedomain.ErrInvalidStatus, "status"},
	{invoicedomain.ErrInvalidPageToken, "page_token"},
	{auditdomain.ErrInvalidPageToken, "page_token"},
}

func lookupValidation(err error) (string, string, bool) {
	for _, candidate := range validationSentinels {
		if errors.Is(err, candidate.err) {
			return candidate.err.Error(), candidate.field, true
		}
	}
	return "", "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, clientdomain.ErrNotFound),
		errors.Is(err, quotedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, clientdomain.ErrNotFound):
		return "client not found"
	case errors.Is(err, quotedomain.ErrNotFound):
		return "quote not found"
	case errors.Is(err, invoicedomain.ErrNotFound):
		return "invoice not found"
	default:
		return "not found"
	}
}
