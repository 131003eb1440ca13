package courier

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// debugLogger is the package-level zerolog logger for debug output.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// logRequest logs the request details using zerolog.
func logRequest(logger zerolog.Logger, operation string, req *http.Request) {
	logger.Debug().
		Str("operation", operation).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("host", req.Host).
		Msg("HTTP request")
}

// logResponse logs the response details using zerolog.
func logResponse(logger zerolog.Logger, operation string, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Str("operation", operation).
		Int("status", resp.StatusCode).
		Str("status_text", resp.Status).
		Dur("duration_ms", duration).
		Int64("content_length", resp.ContentLength).
		Msg("HTTP response")
}

// retryReason describes the outcome that triggered a retry.
func retryReason(resp *http.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return resp.Status
	}
	return ""
}

// logRetry logs a retry decision using zerolog.
func logRetry(logger zerolog.Logger, req *http.Request, attempt int, delay time.Duration, reason string) {
	logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("attempt", attempt).
		Dur("delay_ms", delay).
		Str("reason", reason).
		Msg("HTTP retry")
}
