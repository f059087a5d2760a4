// Package observability wires optional Sentry error reporting. Disabled
// entirely when no DSN is configured.
package observability

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Init starts the Sentry SDK when dsn is non-empty. It returns a flush
// function safe to call even when Sentry was never initialized.
func Init(dsn, serviceName, release string) (flush func(), err error) {
	noop := func() {}

	if dsn == "" {
		return noop, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		ServerName:       serviceName,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return noop, err
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}

// Recover reports a panic value to Sentry and re-panics, for use in a
// deferred call at the top of request handling. No-op if Sentry was never
// initialized.
func Recover(logger *slog.Logger) {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(2 * time.Second)
		if logger != nil {
			logger.Error("recovered panic", "panic", r)
		}
		panic(r)
	}
}
