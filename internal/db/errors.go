package db

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a database error for retry decisions.
//
// Transient errors (dropped connections, timeouts, DNS hiccups) are expected
// to resolve on their own and are worth retrying with backoff. Permanent
// errors (bad credentials, missing database, malformed SQL) will fail the
// same way every time, so retrying only delays the inevitable.
type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify assigns a retry class to err.
//
// Unknown errors default to transient: that matches how the pool itself
// behaves (it will happily retry a fresh connection), and a mis-labelled
// transient costs a few wasted attempts while a mis-labelled permanent
// costs availability.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}

	// The caller gave up; retrying on their behalf is wrong.
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyCode(pgErr.Code)
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return KindTransient
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	// pgconn wraps some dial failures without a typed cause.
	msg := err.Error()
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "failed to connect") {
		return KindTransient
	}

	return KindTransient
}

func classifyCode(code string) Kind {
	switch {
	// Class 08: connection exceptions.
	case strings.HasPrefix(code, "08"):
		return KindTransient
	// Server shutting down or not yet accepting connections.
	case code == "57P01" || code == "57P02" || code == "57P03":
		return KindTransient
	// Resource exhaustion clears up as load drains.
	case code == "53300" || code == "53200" || code == "53100":
		return KindTransient
	// Class 28: authentication/authorization. Never retry with the same
	// credentials.
	case strings.HasPrefix(code, "28"):
		return KindPermanent
	// Missing database.
	case code == "3D000":
		return KindPermanent
	// Class 42: syntax errors, undefined objects, duplicate objects.
	case strings.HasPrefix(code, "42"):
		return KindPermanent
	// Class 23: integrity constraint violations.
	case strings.HasPrefix(code, "23"):
		return KindPermanent
	default:
		return KindTransient
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}
