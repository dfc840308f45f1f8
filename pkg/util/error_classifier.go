package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// coder is implemented by errors that carry a store error code.
type coder interface {
	ErrorCode() string
}

// ClassifyError maps err to a short label for logs and metrics and reports
// whether retrying the same operation could succeed.
func ClassifyError(err error) (retryable bool, kind string) {
	if err == nil {
		return false, ""
	}

	var c coder
	if errors.As(err, &c) {
		switch code := c.ErrorCode(); code {
		case "unavailable":
			return true, code
		default:
			return false, code
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "duplicate key") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") {
		return true, "db_connection_error"
	}

	return false, "unknown_error"
}
