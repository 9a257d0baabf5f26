package db

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyPostgresCodes(t *testing.T) {
	tests := []struct {
		name string
		code string
		want Kind
	}{
		{"connection failure", "08006", KindTransient},
		{"connection does not exist", "08003", KindTransient},
		{"admin shutdown", "57P01", KindTransient},
		{"cannot connect now", "57P03", KindTransient},
		{"too many connections", "53300", KindTransient},
		{"invalid password", "28P01", KindPermanent},
		{"invalid authorization", "28000", KindPermanent},
		{"database does not exist", "3D000", KindPermanent},
		{"syntax error", "42601", KindPermanent},
		{"undefined table", "42P01", KindPermanent},
		{"duplicate column", "42701", KindPermanent},
		{"unique violation", "23505", KindPermanent},
		{"not null violation", "23502", KindPermanent},
		{"unrecognized code", "XX000", KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &pgconn.PgError{Code: tt.code}
			if got := Classify(err); got != tt.want {
				t.Errorf("Classify(code=%s) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

func TestClassifyNetworkErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"connection reset", syscall.ECONNRESET, KindTransient},
		{"connection refused", syscall.ECONNREFUSED, KindTransient},
		{"broken pipe", syscall.EPIPE, KindTransient},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "db.internal"}, KindTransient},
		{"dial timeout", &net.OpError{Op: "dial", Err: errors.New("i/o timeout")}, KindTransient},
		{"deadline exceeded", context.DeadlineExceeded, KindTransient},
		{"context canceled", context.Canceled, KindPermanent},
		{"plain unknown error", errors.New("something odd"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyWrappedErrors(t *testing.T) {
	err := errors.Join(errors.New("acquire"), syscall.ECONNREFUSED)
	if got := Classify(err); got != KindTransient {
		t.Errorf("Classify(wrapped ECONNREFUSED) = %s, want transient", got)
	}

	authErr := &pgconn.PgError{Code: "28P01"}
	if IsTransient(authErr) {
		t.Error("IsTransient(auth error) = true, want false")
	}
}
