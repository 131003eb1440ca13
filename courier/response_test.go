package courier

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponse(statusCode int, contentType, body string) *Response {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &Response{
		Response: &http.Response{
			StatusCode: statusCode,
			Status:     http.StatusText(statusCode),
			Header:     header,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		},
	}
}

func TestResponse_BodyCaching(t *testing.T) {
	resp := newTestResponse(200, "text/plain", "hello")

	require.NoError(t, resp.readBody())
	require.NoError(t, resp.readBody(), "second read must be a no-op")

	assert.Equal(t, []byte("hello"), resp.Body())
	assert.Equal(t, "hello", resp.String())
}

func TestResponse_StatusHelpers(t *testing.T) {
	tests := []struct {
		code    int
		success bool
		isErr   bool
	}{
		{200, true, false},
		{204, true, false},
		{301, false, false},
		{404, false, true},
		{500, false, true},
	}

	for _, tt := range tests {
		resp := newTestResponse(tt.code, "", "")
		assert.Equal(t, tt.success, resp.IsSuccess(), "code %d", tt.code)
		assert.Equal(t, tt.isErr, resp.IsError(), "code %d", tt.code)
	}
}

func TestResponse_Err(t *testing.T) {
	t.Run("success yields nil", func(t *testing.T) {
		resp := newTestResponse(200, "", "ok")
		require.NoError(t, resp.readBody())
		assert.NoError(t, resp.Err())
	})

	t.Run("redirect yields nil", func(t *testing.T) {
		resp := newTestResponse(302, "", "")
		require.NoError(t, resp.readBody())
		assert.NoError(t, resp.Err())
	})

	t.Run("error status yields typed error with request info", func(t *testing.T) {
		resp := newTestResponse(429, "", "slow down")
		resp.request = &http.Request{
			Method: http.MethodPost,
			URL:    &url.URL{Scheme: "https", Host: "api.example.com", Path: "/orders"},
		}
		require.NoError(t, resp.readBody())

		err := resp.Err()
		require.Error(t, err)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 429, httpErr.StatusCode)
		assert.Equal(t, http.MethodPost, httpErr.Method)
		assert.Equal(t, "https://api.example.com/orders", httpErr.URL)
		assert.Equal(t, []byte("slow down"), httpErr.Body)
		assert.Contains(t, httpErr.Error(), "POST")
	})
}

func TestResponse_Decode(t *testing.T) {
	type payload struct {
		Name string `json:"name" xml:"name"`
	}

	t.Run("JSON success body into result", func(t *testing.T) {
		var out payload
		resp := newTestResponse(200, "application/json", `{"name":"ada"}`)
		resp.result = &out

		require.NoError(t, resp.decode())
		assert.Equal(t, "ada", out.Name)
	})

	t.Run("error body into errorResult only", func(t *testing.T) {
		var ok, bad payload
		resp := newTestResponse(422, "application/json", `{"name":"invalid"}`)
		resp.result = &ok
		resp.errorResult = &bad

		require.NoError(t, resp.decode())
		assert.Empty(t, ok.Name)
		assert.Equal(t, "invalid", bad.Name)
	})

	t.Run("XML content type", func(t *testing.T) {
		var out payload
		resp := newTestResponse(200, "application/xml", `<payload><name>ada</name></payload>`)
		resp.result = &out

		require.NoError(t, resp.decode())
		assert.Equal(t, "ada", out.Name)
	})

	t.Run("missing content type defaults to JSON", func(t *testing.T) {
		var out payload
		resp := newTestResponse(200, "", `{"name":"ada"}`)
		resp.result = &out

		require.NoError(t, resp.decode())
		assert.Equal(t, "ada", out.Name)
	})

	t.Run("empty body is not an error", func(t *testing.T) {
		var out payload
		resp := newTestResponse(204, "application/json", "")
		resp.result = &out

		require.NoError(t, resp.decode())
	})

	t.Run("malformed JSON surfaces a decode error", func(t *testing.T) {
		var out payload
		resp := newTestResponse(200, "", `{"name":`)
		resp.result = &out

		assert.Error(t, resp.decode())
	})
}
