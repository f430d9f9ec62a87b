package router

import (
	"io"
	"net/http"

	"github.com/gatewayflow/gatewayflow/types"
)

// maxErrorBodyBytes bounds how much of an upstream error body is surfaced,
// per spec §4.7 ("first 2KB of the response body").
const maxErrorBodyBytes = 2048

// ReadErrorBody reads up to maxErrorBodyBytes of body, for inclusion in a
// mapped upstream Error. Grounded on llm/providers/common.go's
// ReadErrorMessage, narrowed to the fixed 2KB cap spec §4.7 requires.
func ReadErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	return string(data)
}

// MapHTTPError maps an upstream HTTP status + truncated body to a
// types.Error, grounded on llm/providers/common.go's MapHTTPError. It is
// exported so provider implementations outside this package (anthropic)
// can share the same status-to-code mapping.
func MapHTTPError(status int, body string, provider types.Provider) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, body).WithHTTPStatus(status).WithProvider(string(provider))
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, body).WithHTTPStatus(status).WithProvider(string(provider))
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, body).WithHTTPStatus(status).WithRetryable(true).WithProvider(string(provider))
	case http.StatusBadRequest:
		return types.NewError(types.ErrValidation, body).WithHTTPStatus(status).WithProvider(string(provider))
	default:
		retryable := status >= 500
		return types.NewError(types.ErrUpstreamError, body).WithHTTPStatus(status).WithRetryable(retryable).WithProvider(string(provider))
	}
}
