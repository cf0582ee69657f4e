// Package eventhandler contains subscribers for the practice domain events.
package eventhandler

import (
	"context"
	"time"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SESSION COMPLETED HANDLER
// Drops the cached progress view of the student so the next progress read
// reflects the committed submission.
// ═══════════════════════════════════════════════════════════════════════════

// OnSessionCompletedHandler invalidates the progress cache.
type OnSessionCompletedHandler struct {
	cache   port.ProgressCache
	log     *logger.Logger
	timeout time.Duration
}

// NewOnSessionCompletedHandler creates the handler.
func NewOnSessionCompletedHandler(cache port.ProgressCache, log *logger.Logger) *OnSessionCompletedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnSessionCompletedHandler{
		cache:   cache,
		log:     log.With(logger.String("handler", "on_session_completed")),
		timeout: 2 * time.Second,
	}
}

// Handle implements shared.EventHandler.
func (h *OnSessionCompletedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.PracticeSessionCompletedEvent)
	if !ok {
		h.log.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx, shared.StudentID(e.StudentID)); err != nil {
		h.log.Warn("progress cache invalidation failed",
			logger.StudentID(e.StudentID),
			logger.SessionID(e.SessionID),
			logger.Err(err),
		)
		return err
	}
	h.log.Debug("progress cache invalidated", logger.StudentID(e.StudentID))
	return nil
}
