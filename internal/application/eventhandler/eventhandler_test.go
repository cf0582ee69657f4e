package eventhandler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/internal/infrastructure/messaging"
	"github.com/drivetheory/theory-hub/pkg/logger"
)

type recordingCache struct {
	invalidated []shared.StudentID
	err         error
}

func (c *recordingCache) Get(context.Context, shared.StudentID, any) (bool, error) { return false, nil }
func (c *recordingCache) Set(context.Context, shared.StudentID, any, time.Duration) error {
	return nil
}
func (c *recordingCache) Invalidate(_ context.Context, sid shared.StudentID) error {
	c.invalidated = append(c.invalidated, sid)
	return c.err
}

func completed(studentID, correlation string) shared.PracticeSessionCompletedEvent {
	return shared.PracticeSessionCompletedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPracticeSessionCompleted, studentID, time.Now()).
			WithCorrelationID(correlation),
		StudentID:      studentID,
		SessionID:      "sess-1",
		TotalQuestions: 10,
		CorrectAnswers: 9,
	}
}

func TestOnSessionCompleted_Invalidates(t *testing.T) {
	cache := &recordingCache{}
	h := NewOnSessionCompletedHandler(cache, nil)

	require.NoError(t, h.Handle(completed("42", "")))
	assert.Equal(t, []shared.StudentID{"42"}, cache.invalidated)
}

func TestOnSessionCompleted_IgnoresOtherEvents(t *testing.T) {
	cache := &recordingCache{}
	h := NewOnSessionCompletedHandler(cache, nil)

	require.NoError(t, h.Handle(shared.StreakUpdatedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventStreakUpdated, "42", time.Now()),
	}))
	assert.Empty(t, cache.invalidated)
}

func TestOnSessionCompleted_ReportsCacheError(t *testing.T) {
	cache := &recordingCache{err: errors.New("redis down")}
	h := NewOnSessionCompletedHandler(cache, nil)

	assert.Error(t, h.Handle(completed("42", "")))
}

func TestAuditLog_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, Level: logger.LevelInfo, Format: "json"})
	h := NewAuditLogHandler(log)

	require.NoError(t, h.Handle(completed("42", "req-7")))

	out := buf.String()
	assert.Contains(t, out, `"event_type":"practice.session_completed"`)
	assert.Contains(t, out, `"correlation_id":"req-7"`)
	assert.Contains(t, out, `"session_id":"sess-1"`)
}

func TestRegister_WiresBus(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	defer bus.Close()

	cache := &recordingCache{}
	var buf bytes.Buffer
	audit := NewAuditLogHandler(logger.New(logger.Options{Output: &buf, Format: "json"}))

	require.NoError(t, Register(bus, NewOnSessionCompletedHandler(cache, nil), audit))
	require.NoError(t, bus.Publish(completed("7", "")))
	require.NoError(t, bus.Publish(shared.AchievementUnlockedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventAchievementUnlocked, "7", time.Now()),
		StudentID: "7",
		Code:      "excellence",
	}))

	assert.Equal(t, []shared.StudentID{"7"}, cache.invalidated)
	assert.Contains(t, buf.String(), "achievement.unlocked")
}
