package model

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingAPIKey is returned by provider constructors when no API key is
// configured.
var ErrMissingAPIKey = errors.New("API key is required")

// IsTransient reports whether err looks like a temporary provider failure
// (rate limit, timeout, 5xx, connection reset) that is worth retrying.
// Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"429",
		"rate limit",
		"too many requests",
		"overloaded",
		"timeout",
		"connection",
		"temporary",
		"500",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
