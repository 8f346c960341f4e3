// Package resilience wraps calls to an unreliable, rate-limited remote.
//
// This package contains:
//   - Classify: maps a failure to one ErrorKind
//   - Breaker: three-state circuit breaker
//   - Executor: retry loop with backoff and rate-limit waits
//   - Metrics: monotonic counters shared by concurrent callers
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/vietddude/runpurge/internal/core/domain"
)

// ErrorKind is the retry class of a failure.
type ErrorKind int

const (
	KindServerError  ErrorKind = iota // transient, bounded retry
	KindNetworkError                  // no response, bounded retry
	KindRateLimited                   // remote asked to wait, unbounded retry
	KindClientError                   // deterministic, never retried
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindNetworkError:
		return "network_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable reports whether the executor may try again after this kind.
func (k ErrorKind) Retryable() bool {
	return k != KindClientError
}

// ParseErrorKind accepts the names produced by String.
func ParseErrorKind(s string) (ErrorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server_error", "server":
		return KindServerError, nil
	case "network_error", "network":
		return KindNetworkError, nil
	case "client_error", "client":
		return KindClientError, nil
	case "rate_limited":
		return KindRateLimited, nil
	}
	return 0, fmt.Errorf("unknown error kind %q", s)
}

// Classification is the result of Classify.
type Classification struct {
	Kind ErrorKind
	// RetryAfter is the remote's wait hint. Only set for KindRateLimited.
	RetryAfter time.Duration
	StatusCode int
}

// ClassifierConfig holds classification policy.
type ClassifierConfig struct {
	// Unknown is the bucket for failures with no status code and no
	// recognizable message.
	Unknown ErrorKind
}

// DefaultClassifierConfig treats unrecognized failures as retryable server errors.
var DefaultClassifierConfig = ClassifierConfig{
	Unknown: KindServerError,
}

var rateLimitPatterns = []string{
	"rate limit",
	"too many requests",
	"secondary rate",
	"abuse detection",
}

var networkPatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"no such host",
	"eof",
}

// Classify determines the retry class for err using the default policy.
func Classify(err error) Classification {
	return DefaultClassifierConfig.Classify(err)
}

// Classify determines the retry class for err.
func (c ClassifierConfig) Classify(err error) Classification {
	var re *domain.RemoteError
	if errors.As(err, &re) && re.StatusCode != 0 {
		return classifyStatus(re)
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, rateLimitPatterns) {
		out := Classification{Kind: KindRateLimited}
		if re != nil {
			out.RetryAfter = re.RetryAfter
		}
		return out
	}

	if isNetworkError(err) || containsAny(msg, networkPatterns) {
		return Classification{Kind: KindNetworkError}
	}

	return Classification{Kind: c.Unknown}
}

func classifyStatus(re *domain.RemoteError) Classification {
	code := re.StatusCode
	out := Classification{StatusCode: code}

	switch {
	case code == 429,
		code == 403 && (re.RateLimited || IsRateLimitMessage(re.Message)):
		out.Kind = KindRateLimited
		out.RetryAfter = re.RetryAfter
	case code >= 400 && code < 500:
		out.Kind = KindClientError
	case code >= 500 && code < 600:
		out.Kind = KindServerError
	default:
		// 1xx/3xx reaching here is a protocol surprise; retry it
		out.Kind = KindServerError
	}
	return out
}

// IsRateLimitMessage reports whether a remote message signals throttling.
func IsRateLimitMessage(msg string) bool {
	return containsAny(strings.ToLower(msg), rateLimitPatterns)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
