package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty DSN disables
// reporting and returns a no-op flush.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// Enabled reports whether a Sentry client is bound.
func Enabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureErr reports err when Sentry is configured.
func CaptureErr(err error) {
	if err != nil && Enabled() {
		sentry.CaptureException(err)
	}
}
