package assemble

import (
	"io"
	"log/slog"
	"time"
)

// RetryPolicy bounds one assembly. A zero field means no bound on that axis;
// the zero RetryPolicy never gives up on its own.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of chapters drawn.
	MaxAttempts int
	// Budget is the wall-clock limit measured from the first draw.
	Budget time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4096}

// Option configures an Assembler.
type Option func(*Assembler)

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(a *Assembler) { a.policy = p }
}

// WithLogger sets the logger used for assembly traces. Chapters drawn and
// the cluster list after each draw are logged at Debug.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClusterLimit caps how many disjoint clusters one assembly may track.
// Reaching the cap fails the assembly with mem.ErrOutOfMemory. Zero means
// no cap.
func WithClusterLimit(n int) Option {
	return func(a *Assembler) { a.clusterLimit = n }
}

// withClock overrides time.Now for budget tests.
func withClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
