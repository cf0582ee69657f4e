package lock

import (
	"context"
	"errors"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/circuitbreaker"
	"github.com/drivetheory/theory-hub/pkg/logger"
)

// FallbackLocker takes the distributed lock through a circuit breaker and
// falls back to a process-local lock while the primary is failing. In
// fallback mode submissions are serialized per process only.
type FallbackLocker struct {
	primary port.StudentLocker
	local   *LocalLocker
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

var _ port.StudentLocker = (*FallbackLocker)(nil)

// NewFallbackLocker wraps primary. The breaker should classify errors with
// IsPrimaryFailure so lock contention never opens it.
func NewFallbackLocker(primary port.StudentLocker, local *LocalLocker, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) *FallbackLocker {
	if log == nil {
		log = logger.Nop()
	}
	if breaker == nil {
		breaker = circuitbreaker.RedisBreaker(IsPrimaryFailure, nil)
	}
	return &FallbackLocker{
		primary: primary,
		local:   local,
		breaker: breaker,
		log:     log.With(logger.Component("student_lock")),
	}
}

// IsPrimaryFailure classifies errors that should trip the breaker.
func IsPrimaryFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, shared.ErrLockTimeout) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Acquire tries the primary lock first.
func (f *FallbackLocker) Acquire(ctx context.Context, studentID shared.StudentID) (port.Unlock, error) {
	var unlock port.Unlock
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		u, err := f.primary.Acquire(ctx, studentID)
		unlock = u
		return err
	})
	if err == nil {
		return unlock, nil
	}
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) && !IsPrimaryFailure(err) {
		return nil, err
	}

	f.log.Warn("distributed lock unavailable, using local lock",
		logger.StudentID(studentID.String()),
		logger.String("breaker_state", f.breaker.State().String()),
		logger.Err(err),
	)
	return f.local.Acquire(ctx, studentID)
}
