// Package handlers implements the HTTP transport for the API.
//
// This file holds the stable error codes and the single table that maps
// service errors onto (status, code, message). Messages are fixed strings;
// wrapped cause text from downstream services is logged, never returned.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "insufficient_credit",
//	  "message": "insufficient credits"
//	}
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dogblood-backend/internal/http/middleware"
	"github.com/tbourn/dogblood-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	ErrCodeInvalidInput       = "invalid_input"
	ErrCodeInsufficientCredit = "insufficient_credit"
	ErrCodeExtractionFailed   = "extraction_failed"
	ErrCodeAnalysisFailed     = "analysis_failed"
	ErrCodeRenderFailed       = "render_failed"
	ErrCodePaymentGateway     = "payment_gateway_error"
	ErrCodeInvalidWebhook     = "invalid_webhook"
)

type errorMapping struct {
	target error
	status int
	code   string
	msg    string
}

// Order matters only where errors wrap more than one sentinel; the first
// match wins.
var errorTable = []errorMapping{
	{services.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized, "could not validate credentials"},
	{services.ErrInsufficientCredit, http.StatusBadRequest, ErrCodeInsufficientCredit, "insufficient credits"},
	{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeInvalidInput, "invalid input"},
	{services.ErrExtraction, http.StatusBadRequest, ErrCodeExtractionFailed, "no text could be extracted from the PDF"},
	{services.ErrAnalysisService, http.StatusInternalServerError, ErrCodeAnalysisFailed, "analysis service failed"},
	{services.ErrRender, http.StatusInternalServerError, ErrCodeRenderFailed, "report generation failed"},
	{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "not found"},
	{services.ErrInvalidWebhook, http.StatusBadRequest, ErrCodeInvalidWebhook, "invalid webhook"},
	{services.ErrPaymentGateway, http.StatusInternalServerError, ErrCodePaymentGateway, "payment gateway error"},
	{services.ErrConflict, http.StatusBadRequest, ErrCodeConflict, "conflict"},
}

// statusFor resolves err to its response triple.
func statusFor(err error) (int, string, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code, m.msg
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
}

// writeServiceError writes the mapped envelope for err. msg overrides the
// table message when non-empty.
func writeServiceError(c *gin.Context, err error, msg string) {
	status, code, def := statusFor(err)
	if msg == "" {
		msg = inputDetail(err, def)
	}
	if status < http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Debug().Err(err).Str("code", code).Msg("request rejected")
	}
	failWithCause(c, status, code, msg, err)
}

// inputDetail surfaces the service's own validation text for ErrInvalidInput
// ("invalid input: <detail>"); every other error uses def.
func inputDetail(err error, def string) string {
	if !errors.Is(err, services.ErrInvalidInput) {
		return def
	}
	prefix := services.ErrInvalidInput.Error() + ": "
	if s := err.Error(); strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
		return s[len(prefix):]
	}
	return def
}
