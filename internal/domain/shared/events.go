package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types published after a submission commits.
const (
	EventPracticeSessionCompleted EventType = "practice.session_completed"
	EventStreakUpdated            EventType = "progress.streak_updated"
	EventAchievementUnlocked      EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Practice Events
// ═══════════════════════════════════════════════════════════════════════════

// PracticeSessionCompletedEvent is emitted once a submission has been fully applied.
type PracticeSessionCompletedEvent struct {
	BaseEvent
	StudentID      string  `json:"student_id"`
	SessionID      string  `json:"session_id"`
	CategoryID     int64   `json:"category_id,omitempty"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	Accuracy       float64 `json:"accuracy_percentage"`
	PointsEarned   int     `json:"points_earned"`
	Passed         bool    `json:"passed"`
}

// Payload implements Event interface.
func (e PracticeSessionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":          e.StudentID,
		"session_id":          e.SessionID,
		"category_id":         e.CategoryID,
		"total_questions":     e.TotalQuestions,
		"correct_answers":     e.CorrectAnswers,
		"accuracy_percentage": e.Accuracy,
		"points_earned":       e.PointsEarned,
		"passed":              e.Passed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted after the points and streak counters change.
type StreakUpdatedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	TotalPoints   int    `json:"total_points"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
		"total_points":   e.TotalPoints,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted for every achievement reported as new.
type AchievementUnlockedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"code":       e.Code,
		"name":       e.Name,
		"points":     e.Points,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
