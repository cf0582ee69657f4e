// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/practice"
	"github.com/drivetheory/theory-hub/internal/domain/progress"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/logger"
	"github.com/drivetheory/theory-hub/pkg/timeutil"
)

const tracerName = "github.com/drivetheory/theory-hub/internal/application/command"

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT PRACTICE COMMAND
// Turns one answered batch into question telemetry, category mastery, the
// points/streak ledger, achievement unlocks and a session record.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitPracticeCommand carries one inbound submission.
type SubmitPracticeCommand struct {
	Submission practice.Submission

	// CorrelationID ties events and logs to the inbound request.
	CorrelationID string
}

// SubmitPracticeResult is the assembled response plus diagnostics.
type SubmitPracticeResult struct {
	practice.Outcome

	// Points is the post-update ledger. Nil for replayed submissions.
	Points *progress.UserPoints

	// Category is the post-update mastery row. Nil for mixed or replayed submissions.
	Category *progress.CategoryProgress

	// StatsFailure lists telemetry rows that could not be updated.
	StatsFailure *shared.PartialStatisticsFailure
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitPracticeHandlerConfig contains configuration for the handler.
type SubmitPracticeHandlerConfig struct {
	// Timeout bounds the whole submission including lock wait.
	Timeout time.Duration

	// StatsConcurrency bounds in-flight question statistics upserts.
	StatsConcurrency int
}

// DefaultSubmitPracticeHandlerConfig returns default configuration.
func DefaultSubmitPracticeHandlerConfig() SubmitPracticeHandlerConfig {
	return SubmitPracticeHandlerConfig{
		Timeout:          10 * time.Second,
		StatsConcurrency: 8,
	}
}

// SubmitPracticeHandler handles the SubmitPracticeCommand.
type SubmitPracticeHandler struct {
	store     port.Store
	locker    port.StudentLocker
	evaluator *achievement.Evaluator
	calendar  *timeutil.Calendar
	features  port.Features
	publisher shared.EventPublisher
	log       *logger.Logger
	tracer    trace.Tracer
	newID     func() string
	config    SubmitPracticeHandlerConfig
}

// NewSubmitPracticeHandler creates a new SubmitPracticeHandler.
// The publisher and features may be nil.
func NewSubmitPracticeHandler(
	store port.Store,
	locker port.StudentLocker,
	evaluator *achievement.Evaluator,
	calendar *timeutil.Calendar,
	features port.Features,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config SubmitPracticeHandlerConfig,
) *SubmitPracticeHandler {
	defaults := DefaultSubmitPracticeHandlerConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StatsConcurrency <= 0 {
		config.StatsConcurrency = defaults.StatsConcurrency
	}
	if features == nil {
		features = port.AllFeatures{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if calendar == nil {
		calendar = timeutil.NewCalendar(nil, nil)
	}

	return &SubmitPracticeHandler{
		store:     store,
		locker:    locker,
		evaluator: evaluator,
		calendar:  calendar,
		features:  features,
		publisher: publisher,
		log:       log.With(logger.Component("submit_practice")),
		tracer:    otel.Tracer(tracerName),
		newID:     uuid.NewString,
		config:    config,
	}
}

// Handle executes the submit practice command. Validation errors are returned
// before any storage access; every later failure in a correctness-critical
// stage is reported as a storage failure.
func (h *SubmitPracticeHandler) Handle(ctx context.Context, cmd SubmitPracticeCommand) (*SubmitPracticeResult, error) {
	batch, err := practice.Validate(cmd.Submission)
	if err != nil {
		h.log.Debug("submission rejected", logger.Err(err))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "practice.submit", trace.WithAttributes(
		attribute.String("student.id", batch.StudentID.String()),
		attribute.Int("batch.size", batch.Total()),
		attribute.String("batch.category", batch.Category.String()),
	))
	defer span.End()

	log := h.log.With(logger.StudentID(batch.StudentID.String()))
	if cmd.CorrelationID != "" {
		log = log.WithRequestID(cmd.CorrelationID)
	}

	result, err := h.handle(ctx, batch, cmd.CorrelationID, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("outcome.points", result.PointsEarned),
		attribute.Bool("outcome.replayed", result.Replayed),
	)
	return result, nil
}

func (h *SubmitPracticeHandler) handle(ctx context.Context, batch practice.Batch, correlationID string, log *logger.Logger) (*SubmitPracticeResult, error) {
	// 1. Serialize per student
	unlock, err := h.acquire(ctx, batch.StudentID)
	if err != nil {
		log.Warn("student lock not acquired", logger.Err(err), logger.Bool("retryable", true))
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn("student lock release failed", logger.Err(err))
		}
	}()

	// 2. Replay of an already recorded client session
	if batch.ClientSessionID != "" {
		replayed, err := h.replay(ctx, batch)
		if err != nil {
			log.Error("replay lookup failed", logger.Stage("replay"), logger.Err(err))
			return nil, h.storageFailure(ctx, "Replay", err)
		}
		if replayed != nil {
			log.Info("submission replayed", logger.SessionID(batch.ClientSessionID))
			return replayed, nil
		}
	}

	now := h.calendar.Now()

	// 3. Question statistics, best effort per row
	statsFailure := h.updateQuestionStats(ctx, batch, now, log)

	// 4. Scoring
	score := practice.Evaluate(batch, practice.ScoringOptions{
		SpeedBonus: h.features.SpeedBonus(batch.StudentID.String()),
	})

	// 5. Mastery, points, unlocks and session record in one transaction
	applied, err := h.apply(ctx, batch, score, now, log)
	if errors.Is(err, shared.ErrDuplicateSession) {
		// Another process recorded this client session first. Statistics from
		// step 3 stay applied; they are at-least-once.
		replayed, rerr := h.replay(ctx, batch)
		if rerr == nil && replayed != nil {
			log.Info("concurrent duplicate submission replayed", logger.SessionID(batch.ClientSessionID))
			return replayed, nil
		}
		if rerr != nil {
			err = rerr
		}
	}
	if err != nil {
		log.Error("submission not applied", logger.Stage("apply"), logger.Err(err))
		return nil, h.storageFailure(ctx, "Apply", err)
	}
	applied.StatsFailure = statsFailure

	// 6. Events
	h.publish(batch, applied, now, correlationID, log)

	log.Info("practice session submitted",
		logger.SessionID(applied.SessionID),
		logger.Int("correct", applied.Score),
		logger.Int("total", applied.TotalQuestions),
		logger.Float64("accuracy", applied.Accuracy),
		logger.Points(applied.PointsEarned),
		logger.Int("new_achievements", len(applied.NewAchievements)),
	)
	return applied, nil
}

func (h *SubmitPracticeHandler) acquire(ctx context.Context, studentID shared.StudentID) (port.Unlock, error) {
	ctx, span := h.tracer.Start(ctx, "practice.lock")
	defer span.End()

	unlock, err := h.locker.Acquire(ctx, studentID)
	if err == nil {
		return unlock, nil
	}
	span.RecordError(err)
	if errors.Is(err, shared.ErrLockTimeout) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, shared.WrapError("practice", "Lock", shared.ErrTimeout, "student is busy with another submission", err)
	}
	return nil, shared.StorageFailure("Lock", err)
}

func (h *SubmitPracticeHandler) replay(ctx context.Context, batch practice.Batch) (*SubmitPracticeResult, error) {
	recorded, err := h.store.Sessions().FindByClientSessionID(ctx, batch.StudentID, batch.ClientSessionID)
	if errors.Is(err, practice.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := recorded.Outcome()
	out.Replayed = true
	return &SubmitPracticeResult{Outcome: out}, nil
}

// updateQuestionStats applies every exposure independently. A failed row is
// collected and logged; it never aborts the other rows or the submission.
func (h *SubmitPracticeHandler) updateQuestionStats(ctx context.Context, batch practice.Batch, now time.Time, log *logger.Logger) *shared.PartialStatisticsFailure {
	ctx, span := h.tracer.Start(ctx, "practice.question_stats")
	defer span.End()

	repo := h.store.QuestionStats()
	var (
		mu       sync.Mutex
		failures []shared.QuestionFailure
	)
	record := func(r practice.Result) {
		err := repo.RecordExposure(ctx, progress.Exposure{
			QuestionID:       r.QuestionID,
			Correct:          r.Correct,
			TimeSpentSeconds: r.TimeSpentSeconds,
			At:               now,
		})
		if err != nil {
			log.Warn("question statistics update failed",
				logger.Stage("question_stats"),
				logger.QuestionID(r.QuestionID.Int64()),
				logger.Err(err),
			)
			mu.Lock()
			failures = append(failures, shared.QuestionFailure{QuestionID: r.QuestionID, Err: err})
			mu.Unlock()
		}
	}

	if h.features.ConcurrentStats(batch.StudentID.String()) && len(batch.Results) > 1 {
		var g errgroup.Group
		g.SetLimit(h.config.StatsConcurrency)
		for _, r := range batch.Results {
			g.Go(func() error {
				record(r)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, r := range batch.Results {
			record(r)
		}
	}

	if len(failures) == 0 {
		return nil
	}
	pf := &shared.PartialStatisticsFailure{Failures: failures}
	span.SetAttributes(attribute.Int("stats.failed", len(failures)))
	span.RecordError(pf)
	return pf
}

func (h *SubmitPracticeHandler) apply(ctx context.Context, batch practice.Batch, score practice.Score, now time.Time, log *logger.Logger) (*SubmitPracticeResult, error) {
	ctx, span := h.tracer.Start(ctx, "practice.apply")
	defer span.End()

	studentID := batch.StudentID
	dedupe := h.features.DedupeAchievements(studentID.String())
	var result *SubmitPracticeResult

	err := h.store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		var category *progress.CategoryProgress
		if batch.HasCategory() {
			cp, err := repos.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
				StudentID:        studentID,
				CategoryID:       batch.Category,
				Attempted:        int64(score.Total),
				Correct:          int64(score.Correct),
				TimeSpentSeconds: progress.WholeSeconds(batch.TimeSpentSeconds),
				PracticedAt:      now,
			})
			if err != nil {
				return fmt.Errorf("category mastery: %w", err)
			}
			category = cp
		}

		points, err := repos.Points().ApplyPointsDelta(ctx, progress.NewPointsDelta(studentID, score.Points(), h.calendar, now))
		if err != nil {
			return fmt.Errorf("points and streak: %w", err)
		}

		triggered := h.evaluator.Evaluate(achievement.Snapshot{
			Accuracy:      score.Accuracy,
			CurrentStreak: points.CurrentStreak,
		})
		awarded := make([]practice.AwardedAchievement, 0, len(triggered))
		for _, def := range triggered {
			created, err := repos.Unlocks().Grant(ctx, studentID, def.Code, now)
			if err != nil {
				return fmt.Errorf("achievement %s: %w", def.Code, err)
			}
			if dedupe && !created {
				log.Debug("achievement already unlocked", logger.AchievementCode(def.Code))
				continue
			}
			awarded = append(awarded, practice.AwardedAchievement{
				Code:        def.Code,
				Name:        def.Name,
				Description: def.Description,
				Points:      def.Points,
			})
		}

		session := practice.NewSession(h.newID(), batch, score, awarded, now, h.calendar.Location())
		if err := repos.Sessions().Record(ctx, session); err != nil {
			return err
		}

		result = &SubmitPracticeResult{
			Outcome:  session.Outcome(),
			Points:   points,
			Category: category,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction rolled back")
		return nil, err
	}
	return result, nil
}

func (h *SubmitPracticeHandler) storageFailure(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return shared.StorageFailure(stage, fmt.Errorf("%w: %v", shared.ErrTimeout, err))
	}
	return shared.StorageFailure(stage, err)
}

func (h *SubmitPracticeHandler) publish(batch practice.Batch, r *SubmitPracticeResult, now time.Time, correlationID string, log *logger.Logger) {
	if h.publisher == nil {
		return
	}
	studentID := batch.StudentID.String()

	events := []shared.Event{
		shared.PracticeSessionCompletedEvent{
			BaseEvent:      shared.NewBaseEvent(shared.EventPracticeSessionCompleted, studentID, now).WithCorrelationID(correlationID),
			StudentID:      studentID,
			SessionID:      r.SessionID,
			CategoryID:     batch.Category.Int64(),
			TotalQuestions: r.TotalQuestions,
			CorrectAnswers: r.Score,
			Accuracy:       r.Accuracy,
			PointsEarned:   r.PointsEarned,
			Passed:         r.Verdict == practice.VerdictPass,
		},
	}
	if r.Points != nil {
		events = append(events, shared.StreakUpdatedEvent{
			BaseEvent:     shared.NewBaseEvent(shared.EventStreakUpdated, studentID, now).WithCorrelationID(correlationID),
			StudentID:     studentID,
			CurrentStreak: r.Points.CurrentStreak,
			LongestStreak: r.Points.LongestStreak,
			TotalPoints:   int(r.Points.TotalPoints),
		})
	}
	for _, a := range r.NewAchievements {
		events = append(events, shared.AchievementUnlockedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventAchievementUnlocked, studentID, now).WithCorrelationID(correlationID),
			StudentID: studentID,
			Code:      a.Code,
			Name:      a.Name,
			Points:    a.Points,
		})
	}

	for _, e := range events {
		if err := h.publisher.Publish(e); err != nil {
			log.Warn("event publish failed", logger.String("event_type", string(e.EventType())), logger.Err(err))
		}
	}
}
