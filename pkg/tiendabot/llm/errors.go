package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies upstream failures for logging.
type ErrorKind int

const (
	ErrorNetwork    ErrorKind = iota // transport failure before a response
	ErrorRateLimit                   // 429 or rate-limit body
	ErrorAuth                        // 401, 403
	ErrorBilling                     // 402 or quota exhausted
	ErrorBadRequest                  // 400 or invalid request built locally
	ErrorServer                      // 5xx
	ErrorMalformed                   // unparseable or empty response body
	ErrorFatal                       // everything else
)

// String returns a label for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorAuth:
		return "auth"
	case ErrorBilling:
		return "billing"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorServer:
		return "server"
	case ErrorMalformed:
		return "malformed"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// UpstreamError is returned by every failed gateway call.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Model      string
	Body       string
	Cause      error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("upstream ")
	b.WriteString(e.Kind.String())
	if e.Model != "" {
		b.WriteString(" (" + e.Model + ")")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": API returned %d", e.StatusCode)
	}
	if e.Body != "" {
		b.WriteString(": " + truncate(e.Body, 200))
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error { return e.Cause }

// classifyStatus determines the error kind from status code and response body.
func classifyStatus(statusCode int, body string) ErrorKind {
	bodyLower := strings.ToLower(body)

	if statusCode == 402 ||
		strings.Contains(bodyLower, "insufficient_quota") ||
		strings.Contains(bodyLower, "billing") {
		return ErrorBilling
	}
	if statusCode == 429 ||
		strings.Contains(bodyLower, "rate_limit") ||
		strings.Contains(bodyLower, "rate limit") {
		return ErrorRateLimit
	}

	switch {
	case statusCode == 400:
		return ErrorBadRequest
	case statusCode == 401 || statusCode == 403:
		return ErrorAuth
	case statusCode >= 500:
		return ErrorServer
	default:
		return ErrorFatal
	}
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
