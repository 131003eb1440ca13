package courier

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Response wraps http.Response with convenience methods for body handling,
// automatic decoding, and status classification.
//
// A non-2xx status is a valid terminal outcome, not an error: the verb
// methods return (resp, nil) for any status the server produced. Use
// IsSuccess/IsError to branch, or Err() to convert an error status into
// an *HTTPError when the call site wants error-return semantics.
//
// The body is read fully and cached before the Response is returned, so
// Body() and String() never touch the network and never fail after a
// timeout fires.
//
// Example usage:
//
//	var users []User
//	resp, err := client.Request("GetUsers").
//	    Decode(&users).
//	    Get(ctx, "/users")
//
//	if err != nil {
//	    return err
//	}
//
//	if resp.IsSuccess() {
//	    fmt.Printf("Got %d users\n", len(users))
//	} else {
//	    fmt.Printf("Error: %s\n", resp.String())
//	}
type Response struct {
	// Response embeds the standard http.Response.
	// All http.Response fields and methods are accessible directly.
	//
	// Example: resp.StatusCode, resp.Header.Get("Content-Type")
	*http.Response

	// request is the original HTTP request that produced this response.
	request *http.Request

	// body is the cached response body, populated by readBody before
	// the Response is handed to the caller.
	body []byte

	// bodyRead tracks whether the body stream has been drained into
	// the cache.
	bodyRead bool

	// result holds the decoded success response.
	// Populated when Decode() is used and response is 2xx.
	result any

	// errorResult holds the decoded error response.
	// Populated when DecodeError() is used and response is non-2xx.
	errorResult any
}

// readBody drains the response body into the cache and closes the
// stream. Safe to call more than once.
func (r *Response) readBody() error {
	if r.bodyRead {
		return nil
	}

	defer r.Response.Body.Close()
	body, err := io.ReadAll(r.Response.Body)
	if err != nil {
		return err
	}

	r.body = body
	r.bodyRead = true
	return nil
}

// Body returns the cached response body.
func (r *Response) Body() []byte {
	return r.body
}

// String returns the response body as a string.
func (r *Response) String() string {
	return string(r.body)
}

// Result returns the decoded success response.
//
// This is only populated if Decode() was called on the RequestBuilder
// and the response was successful (2xx).
func (r *Response) Result() any {
	return r.result
}

// ErrorResult returns the decoded error response.
//
// This is only populated if DecodeError() was called on the RequestBuilder
// and the response was not successful (non-2xx).
func (r *Response) ErrorResult() any {
	return r.errorResult
}

// IsSuccess returns true if the response status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the response status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Err converts an unsuccessful response into an *HTTPError carrying the
// status, method, URL, and cached body. It returns nil for 2xx and 3xx
// responses.
//
// Example:
//
//	resp, err := client.Request("GetUser").Get(ctx, "/users/1")
//	if err != nil {
//	    return err
//	}
//	if err := resp.Err(); err != nil {
//	    return err // *HTTPError
//	}
func (r *Response) Err() error {
	if !r.IsError() {
		return nil
	}

	httpErr := &HTTPError{
		StatusCode: r.StatusCode,
		Status:     r.Status,
		Body:       r.body,
	}
	if r.request != nil {
		httpErr.Method = r.request.Method
		if r.request.URL != nil {
			httpErr.URL = r.request.URL.String()
		}
	}
	return httpErr
}

// decode decodes the cached body into the result or errorResult.
func (r *Response) decode() error {
	if err := r.readBody(); err != nil {
		return err
	}

	if len(r.body) == 0 {
		return nil
	}

	// Determine content type
	contentType := r.Header.Get("Content-Type")

	if r.IsSuccess() && r.result != nil {
		return decodeBody(r.body, contentType, r.result)
	}

	if r.IsError() && r.errorResult != nil {
		return decodeBody(r.body, contentType, r.errorResult)
	}

	return nil
}

// decodeBody decodes the body based on content type.
func decodeBody(body []byte, contentType string, target any) error {
	if strings.Contains(contentType, "application/json") {
		return json.Unmarshal(body, target)
	}
	isXML := strings.Contains(contentType, "application/xml") ||
		strings.Contains(contentType, "text/xml")
	if isXML {
		return xml.Unmarshal(body, target)
	}
	// Default to JSON
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
