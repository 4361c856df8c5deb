package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Gateway error codes. Authority-originated 4xx responses keep whatever
// code the authority reported; everything else uses one of these.
type Code string

const (
	CodeAuthTokenMissing       Code = "AUTH_TOKEN_MISSING"
	CodeAuthTokenInvalid       Code = "AUTH_TOKEN_INVALID"
	CodeAuthTokenExpired       Code = "AUTH_TOKEN_EXPIRED"
	CodeAuthTokenRevoked       Code = "AUTH_TOKEN_REVOKED"
	CodeAuthServiceUnavailable Code = "AUTH_SERVICE_UNAVAILABLE"
	CodeAuthServiceTimeout     Code = "AUTH_SERVICE_TIMEOUT"
	CodeAuthServiceError       Code = "AUTH_SERVICE_ERROR"
	CodeRateLimitExceeded      Code = "RATE_LIMIT_EXCEEDED"
	CodeTenantConnectionFailed Code = "TENANT_CONNECTION_FAILED"
	CodeInternalError          Code = "INTERNAL_ERROR"
)

// Error carries the HTTP status, stable code and client-safe message for
// a failure. Details are optional and must never contain internals.
type Error struct {
	Status  int
	Code    Code
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func TokenMissing() *Error {
	return New(http.StatusUnauthorized, CodeAuthTokenMissing, "Authorization header required")
}

func TokenInvalid() *Error {
	return New(http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid authorization header format. Use: Bearer <token>")
}

func ServiceUnavailable() *Error {
	return New(http.StatusServiceUnavailable, CodeAuthServiceUnavailable, "Tenant authority is unreachable")
}

func ServiceTimeout() *Error {
	return New(http.StatusGatewayTimeout, CodeAuthServiceTimeout, "Tenant authority did not respond in time")
}

func AuthServiceError() *Error {
	return New(http.StatusInternalServerError, CodeAuthServiceError, "Token validation failed")
}

func RateLimitExceeded() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Rate limit exceeded")
}

func TenantConnectionFailed() *Error {
	return New(http.StatusInternalServerError, CodeTenantConnectionFailed, "Could not reach tenant database")
}

func Internal() *Error {
	return New(http.StatusInternalServerError, CodeInternalError, "Internal Server Error")
}

type envelope struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Error   envelopeError `json:"error"`
}

type envelopeError struct {
	Code    Code `json:"code"`
	Details any  `json:"details,omitempty"`
}

// Writes the uniform error envelope and stops the middleware chain.
// Non-*Error values are masked as a generic internal error.
func Abort(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal()
	}

	c.AbortWithStatusJSON(e.Status, envelope{
		Success: false,
		Message: e.Message,
		Error:   envelopeError{Code: e.Code, Details: e.Details},
	})
}
