// Package errors provides the standardized error type shared by the HTTP layer and the job stages.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Category groups codes by who has to act on them.
type Category string

const (
	CategoryClient   Category = "client"
	CategoryConfig   Category = "config"
	CategoryRender   Category = "render"
	CategoryDelivery Category = "delivery"
	CategoryInternal Category = "internal"
)

// Client input errors
const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMalformedBody    ErrorCode = "MALFORMED_BODY"
	ErrCodeBodyTooLarge     ErrorCode = "BODY_TOO_LARGE"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeTokenMissing     ErrorCode = "TOKEN_MISSING"
	ErrCodeTokenInvalid     ErrorCode = "TOKEN_INVALID"
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
)

// Configuration errors
const (
	ErrCodeAPIKeyNotConfigured ErrorCode = "API_KEY_NOT_CONFIGURED"
	ErrCodeSMTPNotConfigured   ErrorCode = "SMTP_NOT_CONFIGURED"
	ErrCodeSecretNotConfigured ErrorCode = "SECRET_NOT_CONFIGURED"
)

// Rendering errors
const (
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodePDFRenderFailed  ErrorCode = "PDF_RENDER_FAILED"
	ErrCodeStorageFailed    ErrorCode = "STORAGE_FAILED"
)

// Delivery errors
const (
	ErrCodeSMTPError       ErrorCode = "SMTP_ERROR"
	ErrCodeSESError        ErrorCode = "SES_ERROR"
	ErrCodeInvalidAddress  ErrorCode = "INVALID_ADDRESS"
	ErrCodeDeliveryTimeout ErrorCode = "DELIVERY_TIMEOUT"
)

// Internal errors
const (
	ErrCodeQueueFull      ErrorCode = "QUEUE_FULL"
	ErrCodeStoreFailed    ErrorCode = "STORE_FAILED"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeJobPanic       ErrorCode = "JOB_PANIC"
	ErrCodeServiceStopped ErrorCode = "SERVICE_STOPPED"
)

var categories = map[ErrorCode]Category{
	ErrCodeValidationFailed:    CategoryClient,
	ErrCodeMalformedBody:       CategoryClient,
	ErrCodeBodyTooLarge:        CategoryClient,
	ErrCodeUnauthorized:        CategoryClient,
	ErrCodeTokenMissing:        CategoryClient,
	ErrCodeTokenInvalid:        CategoryClient,
	ErrCodeFileNotFound:        CategoryClient,
	ErrCodeAPIKeyNotConfigured: CategoryConfig,
	ErrCodeSMTPNotConfigured:   CategoryConfig,
	ErrCodeSecretNotConfigured: CategoryConfig,
	ErrCodeTemplateNotFound:    CategoryRender,
	ErrCodePDFRenderFailed:     CategoryRender,
	ErrCodeStorageFailed:       CategoryRender,
	ErrCodeSMTPError:           CategoryDelivery,
	ErrCodeSESError:            CategoryDelivery,
	ErrCodeInvalidAddress:      CategoryDelivery,
	ErrCodeDeliveryTimeout:     CategoryDelivery,
}

var httpStatuses = map[ErrorCode]int{
	ErrCodeValidationFailed:    http.StatusBadRequest,
	ErrCodeMalformedBody:       http.StatusBadRequest,
	ErrCodeBodyTooLarge:        http.StatusRequestEntityTooLarge,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeTokenMissing:        http.StatusUnauthorized,
	ErrCodeTokenInvalid:        http.StatusForbidden,
	ErrCodeFileNotFound:        http.StatusNotFound,
	ErrCodeAPIKeyNotConfigured: http.StatusInternalServerError,
	ErrCodeQueueFull:           http.StatusServiceUnavailable,
	ErrCodeServiceStopped:      http.StatusServiceUnavailable,
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// HTTPStatus is the status an HTTP handler answers with for this error.
func (e *StandardError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// WithMetadata returns e after attaching a metadata key.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// HTTPStatus maps a code to an HTTP status, defaulting to 500.
func HTTPStatus(code ErrorCode) int {
	if s, ok := httpStatuses[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// CategoryOf returns the category for code, CategoryInternal when unknown.
func CategoryOf(code ErrorCode) Category {
	if c, ok := categories[code]; ok {
		return c
	}
	return CategoryInternal
}

// ==========================
// 2. Constructors
// ==========================

// New creates a StandardError for code.
func New(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Category:  CategoryOf(code),
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// Wrap creates a StandardError that unwraps to err.
func Wrap(code ErrorCode, message string, err error) *StandardError {
	e := New(code, message, "")
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

func NewValidationError(details string) *StandardError {
	return New(ErrCodeValidationFailed, "Champs requis manquants ou invalides", details)
}

func NewMalformedBodyError(err error) *StandardError {
	return Wrap(ErrCodeMalformedBody, "Corps de requête JSON invalide", err)
}

func NewBodyTooLargeError(limit int64) *StandardError {
	return New(ErrCodeBodyTooLarge, "Corps de requête trop volumineux", fmt.Sprintf("limit: %d bytes", limit))
}

func NewUnauthorizedError() *StandardError {
	return New(ErrCodeUnauthorized, "Unauthorized", "")
}

func NewAPIKeyNotConfiguredError() *StandardError {
	return New(ErrCodeAPIKeyNotConfigured, "Server misconfiguration", "API_KEY is not set")
}

func NewTokenMissingError() *StandardError {
	return New(ErrCodeTokenMissing, "Token manquant", "")
}

func NewTokenInvalidError(err error) *StandardError {
	return Wrap(ErrCodeTokenInvalid, "Token invalide ou expiré", err)
}

func NewFileNotFoundError(name string) *StandardError {
	return New(ErrCodeFileNotFound, "Fichier introuvable", fmt.Sprintf("name: %s", name))
}

func NewSMTPNotConfiguredError() *StandardError {
	return New(ErrCodeSMTPNotConfigured, "Mail transport not configured", "SMTP_HOST, SMTP_USER and SMTP_PASS are required")
}

func NewTemplateNotFoundError(candidates []string) *StandardError {
	return New(ErrCodeTemplateNotFound, "Quote template not found", fmt.Sprintf("candidates: %v", candidates))
}

func NewPDFRenderFailedError(err error) *StandardError {
	e := Wrap(ErrCodePDFRenderFailed, "PDF rendering failed", err)
	e.Retryable = true
	return e
}

func NewStorageFailedError(err error) *StandardError {
	return Wrap(ErrCodeStorageFailed, "PDF storage failed", err)
}

func NewSMTPError(err error) *StandardError {
	e := Wrap(ErrCodeSMTPError, "Failed to send email via SMTP", err)
	e.Retryable = true
	return e
}

func NewSESError(err error) *StandardError {
	e := Wrap(ErrCodeSESError, "Failed to send email via SES", err)
	e.Retryable = true
	return e
}

func NewInvalidAddressError(details string) *StandardError {
	return New(ErrCodeInvalidAddress, "Email validation failed", details)
}

func NewQueueFullError(depth int) *StandardError {
	e := New(ErrCodeQueueFull, "Service surchargé, réessayez plus tard", fmt.Sprintf("depth: %d", depth))
	e.Retryable = true
	return e
}

func NewStoreFailedError(err error) *StandardError {
	e := Wrap(ErrCodeStoreFailed, "Duplicate store unavailable", err)
	e.Retryable = true
	return e
}

func NewInternalError(err error) *StandardError {
	return Wrap(ErrCodeInternal, "Erreur interne du serveur", err)
}

// ==========================
// 3. Helpers
// ==========================

// Normalize converts any error to a StandardError, keeping an existing one as is.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// IsCode reports whether err is a StandardError carrying code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}
