package courier

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// GenerateCoalesceKey creates a unique key for request deduplication.
// Key = SHA256(method + normalized URL + sorted query params)
func GenerateCoalesceKey(method, rawURL string) string {
	// Parse URL to normalize and sort query params
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		// Fallback to raw URL if parsing fails
		return hashString(method + rawURL)
	}

	// Sort query parameters for consistent key generation
	queryParams := parsedURL.Query()
	var sortedParams []string
	for key := range queryParams {
		values := queryParams[key]
		sort.Strings(values)
		for _, v := range values {
			sortedParams = append(sortedParams, key+"="+v)
		}
	}
	sort.Strings(sortedParams)

	normalizedURL := fmt.Sprintf("%s://%s%s", parsedURL.Scheme, parsedURL.Host, parsedURL.Path)

	keyParts := []string{
		method,
		normalizedURL,
		strings.Join(sortedParams, "&"),
	}

	return hashString(strings.Join(keyParts, "|"))
}

// hashString creates a SHA256 hash of the input string.
func hashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// coalescedResult is the shared outcome of a deduplicated round trip.
type coalescedResult struct {
	resp *http.Response
	body []byte
}

// coalesceTransport deduplicates identical in-flight GET and HEAD
// requests: concurrent duplicates share one round trip through the
// inner chain and each caller receives an independent response whose
// body is a fresh reader over the shared bytes.
//
// The winning caller's context drives the shared round trip, so a
// duplicate can fail with the winner's cancellation. Requests with
// bodies or non-idempotent methods pass through untouched.
type coalesceTransport struct {
	next  http.RoundTripper
	group singleflight.Group
}

// newCoalesceTransport creates a coalescing wrapper, or returns next
// unchanged when coalescing is not enabled.
func newCoalesceTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.CoalesceRequests {
		return next
	}
	return &coalesceTransport{next: next}
}

// RoundTrip implements http.RoundTripper.
func (t *coalesceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !coalescable(req) {
		return t.next.RoundTrip(req)
	}

	key := GenerateCoalesceKey(req.Method, req.URL.String())

	v, err, _ := t.group.Do(key, func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		// Buffer the body once so every waiter can read it.
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		return &coalescedResult{resp: resp, body: body}, nil
	})
	if err != nil {
		return nil, err
	}

	result := v.(*coalescedResult)

	// Shallow-copy the response and give this caller its own reader.
	resp := new(http.Response)
	*resp = *result.resp
	resp.Body = io.NopCloser(bytes.NewReader(result.body))
	return resp, nil
}

// coalescable reports whether a request is safe to deduplicate.
func coalescable(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody
}
