// Package services defines the business logic for accounts, the credit-metered
// analysis workflow, follow-up conversations, and payment reconciliation.
// This file centralizes the service-level error taxonomy so that handlers can
// translate failures into HTTP responses through a single table.
//
// Downstream failures are wrapped as fmt.Errorf("%w: %w", Sentinel, cause):
// errors.Is matches the sentinel for status mapping while the cause stays
// available for logs. Cause text is never meant for clients.
package services

import "errors"

var (
	// ErrUnauthorized covers bad credentials, invalid or expired tokens,
	// unknown users and inactive accounts.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientCredit is returned when the user's balance is below the
	// cost of an analysis, either at the pre-check or at commit time.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrInvalidInput covers wrong file types and malformed request values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtraction is returned when a PDF cannot be read or holds no text.
	ErrExtraction = errors.New("text extraction failed")

	// ErrAnalysisService wraps failures and timeouts of the reasoning service.
	ErrAnalysisService = errors.New("analysis service failed")

	// ErrRender wraps report generation failures.
	ErrRender = errors.New("report generation failed")

	// ErrNotFound means the record does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrPaymentGateway wraps checkout, status and webhook failures.
	ErrPaymentGateway = errors.New("payment gateway failed")

	// ErrInvalidWebhook is returned when a webhook delivery fails signature
	// verification or cannot be decoded.
	ErrInvalidWebhook = errors.New("invalid webhook")

	// ErrConflict is returned for duplicate registrations and for concurrent
	// uploads racing on the same idempotency key.
	ErrConflict = errors.New("conflict")
)
