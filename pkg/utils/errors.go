package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrEmptyResult         = errors.New("query returned no results")            // Valid terminal state, not a failure
	ErrTransientNavigation = errors.New("transient navigation error")           // Timeout/network/browser-automation error
	ErrStageFailure        = errors.New("pipeline stage failed")                // Retries exhausted for a whole stage
	ErrExtraction          = errors.New("profile extraction failed")            // Per-item parse failure
	ErrContextTeardown     = errors.New("browsing context torn down mid-fetch") // Invalidates all in-flight siblings
	ErrRetryFailed         = errors.New("operation failed after all retries")   // Wraps the last underlying error
	ErrClientHTTPError     = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError     = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError      = errors.New("other HTTP error (non-2xx)")
	ErrRobotsDisallowed    = errors.New("disallowed by robots.txt")
	ErrParsing             = errors.New("parsing error")    // Wraps specific parsing error (HTML, URL, JSON, CSV)
	ErrFilesystem          = errors.New("filesystem error") // Wraps os errors
	ErrDatabase            = errors.New("database error")   // Wraps badger/postgres/redis errors
	ErrObjectStorage       = errors.New("object storage error")
	ErrRequestCreation     = errors.New("failed to create HTTP request")
	ErrResponseBodyRead    = errors.New("failed to read response body")
	ErrConfigValidation    = errors.New("configuration validation error")
)

// CategorizeError maps an error to a predefined category string for logging and run stats.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrEmptyResult):
		return "Result_Empty"
	case errors.Is(err, ErrContextTeardown):
		return "Browser_ContextTeardown"
	case errors.Is(err, ErrRetryFailed):
		// Retry joins the sentinel and the last error, so the chain is inspected as a whole
		if err == ErrRetryFailed {
			return "RetryFailed_Unknown"
		}
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		if errors.Is(err, ErrTransientNavigation) {
			return "RetryFailed_Navigation"
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "RetryFailed_NetworkTimeout"
		}
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return "RetryFailed_NetworkTimeout"
		}
		return "RetryFailed_Other"
	case errors.Is(err, ErrStageFailure):
		return "Stage_Failure"
	case errors.Is(err, ErrTransientNavigation):
		return "Navigation_Transient"
	case errors.Is(err, ErrExtraction):
		return "Content_Extraction"
	case errors.Is(err, ErrClientHTTPError):
		msg := err.Error()
		switch {
		case strings.Contains(msg, " 404 "):
			return "HTTP_404"
		case strings.Contains(msg, " 403 "):
			return "HTTP_403"
		case strings.Contains(msg, " 429 "):
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrParsing):
		msg := err.Error()
		switch {
		case strings.Contains(msg, "URL"):
			return "Content_ParsingURL"
		case strings.Contains(msg, "HTML"):
			return "Content_ParsingHTML"
		case strings.Contains(msg, "JSON"):
			return "Content_ParsingJSON"
		case strings.Contains(msg, "CSV"):
			return "Content_ParsingCSV"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrObjectStorage):
		return "ObjectStorage_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}

	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
