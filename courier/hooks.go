package courier

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestHook runs before each attempt's transport invocation, in the
// order hooks were added. A hook error propagates as if the attempt
// itself failed: the remaining attempt sequence is aborted without a
// retry. Hooks are deliberately not error-isolated.
//
// Common use cases:
//   - Adding authentication headers (Bearer tokens, API keys)
//   - Injecting correlation IDs
//   - Request logging
type RequestHook func(req *http.Request) error

// ResponseHook runs after each attempt that produced a response, in the
// order hooks were added, before the retry decision is made. A hook
// error aborts the sequence without a retry.
//
// Common use cases:
//   - Response logging
//   - Token refresh on 401
//   - Custom error handling
type ResponseHook func(resp *http.Response, req *http.Request) error

// hookChain holds the configured request and response hooks.
type hookChain struct {
	request  []RequestHook
	response []ResponseHook
}

// applyRequestHooks runs all request hooks in order.
func (c *hookChain) applyRequestHooks(req *http.Request) error {
	for _, h := range c.request {
		if err := h(req); err != nil {
			return err
		}
	}
	return nil
}

// applyResponseHooks runs all response hooks in order.
func (c *hookChain) applyResponseHooks(resp *http.Response, req *http.Request) error {
	for _, h := range c.response {
		if err := h(resp, req); err != nil {
			return err
		}
	}
	return nil
}

// Common hook helpers

// BearerAuthHook creates a hook that adds a Bearer token.
func BearerAuthHook(token string) RequestHook {
	return func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// BearerAuthFuncHook creates a hook that adds a Bearer token from a
// function (useful for dynamic/refreshable tokens).
func BearerAuthFuncHook(tokenFunc func() (string, error)) RequestHook {
	return func(req *http.Request) error {
		token, err := tokenFunc()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// APIKeyHook creates a hook that adds an API key header.
func APIKeyHook(headerName, apiKey string) RequestHook {
	return func(req *http.Request) error {
		req.Header.Set(headerName, apiKey)
		return nil
	}
}

// CorrelationIDHook creates a hook that adds a fresh UUID correlation ID
// to every attempt. Pass a custom idFunc to control ID generation; nil
// uses uuid.NewString.
func CorrelationIDHook(headerName string, idFunc func() string) RequestHook {
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return func(req *http.Request) error {
		req.Header.Set(headerName, idFunc())
		return nil
	}
}

// UserAgentHook creates a hook that sets the User-Agent header.
func UserAgentHook(userAgent string) RequestHook {
	return func(req *http.Request) error {
		req.Header.Set("User-Agent", userAgent)
		return nil
	}
}
