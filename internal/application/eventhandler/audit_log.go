package eventhandler

import (
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/logger"
)

// AuditLogHandler writes one structured line per domain event.
type AuditLogHandler struct {
	log *logger.Logger
}

// NewAuditLogHandler creates the handler.
func NewAuditLogHandler(log *logger.Logger) *AuditLogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditLogHandler{log: log.Named("audit")}
}

// Handle implements shared.EventHandler.
func (h *AuditLogHandler) Handle(event shared.Event) error {
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	if c, ok := correlationID(event); ok {
		fields = append(fields, logger.String("correlation_id", c))
	}
	for k, v := range event.Payload() {
		fields = append(fields, logger.Any(k, v))
	}
	h.log.Info("domain event", fields...)
	return nil
}

func correlationID(event shared.Event) (string, bool) {
	var base shared.BaseEvent
	switch e := event.(type) {
	case shared.PracticeSessionCompletedEvent:
		base = e.BaseEvent
	case shared.StreakUpdatedEvent:
		base = e.BaseEvent
	case shared.AchievementUnlockedEvent:
		base = e.BaseEvent
	default:
		return "", false
	}
	return base.CorrelationID, base.CorrelationID != ""
}

// Register subscribes the engine's handlers. cache may be nil when no
// progress cache is configured.
func Register(bus shared.EventSubscriber, cache *OnSessionCompletedHandler, audit *AuditLogHandler) error {
	if cache != nil {
		if err := bus.Subscribe(shared.EventPracticeSessionCompleted, cache.Handle); err != nil {
			return err
		}
	}
	if audit != nil {
		if err := bus.SubscribeAll(audit.Handle); err != nil {
			return err
		}
	}
	return nil
}
