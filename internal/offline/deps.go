package offline

import (
	"time"

	"github.com/juggajay/siteproof-v2-sub005/pkg/uid"
)

// Clock abstracts time retrieval so sync bookkeeping is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator mints identifiers for records created on the device.
type IDGenerator interface {
	New() string
}

// OfflineIDGenerator produces "offline_"-prefixed UUIDs.
type OfflineIDGenerator struct{}

func (OfflineIDGenerator) New() string { return uid.NewOffline() }

// Logger provides structured logging. The args follow slog conventions:
// alternating key/value pairs. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards all output.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
