// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/progress"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/logger"
	"github.com/drivetheory/theory-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT PROGRESS QUERY
// Points ledger, streak, per-category mastery and unlocked achievements of one
// student, served read-through from the progress cache.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultRecentSessions = 5
	maxRecentSessions     = 50
)

// GetStudentProgressQuery contains the parameters of a progress lookup.
type GetStudentProgressQuery struct {
	StudentID string

	// RecentSessions limits the session history. Zero uses the default;
	// a negative value omits the history.
	RecentSessions int
}

// Validate normalizes and checks the query.
func (q *GetStudentProgressQuery) Validate() (shared.StudentID, error) {
	sid, err := shared.NewStudentID(q.StudentID)
	if err != nil {
		return "", err
	}
	if q.RecentSessions == 0 {
		q.RecentSessions = defaultRecentSessions
	}
	if q.RecentSessions > maxRecentSessions {
		q.RecentSessions = maxRecentSessions
	}
	return sid, nil
}

// CategoryProgressDTO is the mastery of one category.
type CategoryProgressDTO struct {
	CategoryID               int64   `json:"categoryId"`
	QuestionsAttempted       int64   `json:"questionsAttempted"`
	QuestionsCorrect         int64   `json:"questionsCorrect"`
	AccuracyPercentage       float64 `json:"accuracyPercentage"`
	IsReadyForTest           bool    `json:"isReadyForTest"`
	LastPracticeDate         string  `json:"lastPracticeDate"`
	TotalPracticeTimeSeconds int64   `json:"totalPracticeTimeSeconds"`
}

// AchievementDTO is an unlocked achievement joined with its catalog entry.
type AchievementDTO struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Points      int       `json:"points"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

// SessionSummaryDTO is one recorded practice session.
type SessionSummaryDTO struct {
	SessionID          string    `json:"sessionId"`
	Title              string    `json:"title"`
	CategoryID         *int64    `json:"categoryId"`
	TotalQuestions     int       `json:"totalQuestions"`
	CorrectAnswers     int       `json:"correctAnswers"`
	AccuracyPercentage float64   `json:"accuracyPercentage"`
	PointsEarned       int       `json:"pointsEarned"`
	Result             string    `json:"result"`
	DurationMinutes    int       `json:"durationMinutes"`
	CompletedAt        time.Time `json:"completedAt"`
}

// StudentProgressDTO is the progress read model.
type StudentProgressDTO struct {
	TotalPoints      int64                 `json:"totalPoints"`
	TheoryPoints     int64                 `json:"theoryPoints"`
	CurrentStreak    int                   `json:"currentStreak"`
	LongestStreak    int                   `json:"longestStreak"`
	LastActivityDate *string               `json:"lastActivityDate"`
	Categories       []CategoryProgressDTO `json:"categories"`
	Achievements     []AchievementDTO      `json:"achievements"`
	RecentSessions   []SessionSummaryDTO   `json:"recentSessions,omitempty"`
}

// GetStudentProgressResult wraps the read model with cache diagnostics.
type GetStudentProgressResult struct {
	Progress  StudentProgressDTO
	FromCache bool
}

// GetStudentProgressHandler handles GetStudentProgressQuery.
type GetStudentProgressHandler struct {
	store    port.Store
	catalog  *achievement.Catalog
	cache    port.ProgressCache
	cacheTTL time.Duration
	features port.Features
	log      *logger.Logger
}

// NewGetStudentProgressHandler creates a new handler. cache and features may be nil.
func NewGetStudentProgressHandler(
	store port.Store,
	catalog *achievement.Catalog,
	cache port.ProgressCache,
	cacheTTL time.Duration,
	features port.Features,
	log *logger.Logger,
) *GetStudentProgressHandler {
	if features == nil {
		features = port.AllFeatures{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &GetStudentProgressHandler{
		store:    store,
		catalog:  catalog,
		cache:    cache,
		cacheTTL: cacheTTL,
		features: features,
		log:      log.With(logger.Component("student_progress")),
	}
}

// Handle returns the student's progress. A student with no submissions gets
// a zero-valued view. Cache failures degrade to a store read.
func (h *GetStudentProgressHandler) Handle(ctx context.Context, q GetStudentProgressQuery) (*GetStudentProgressResult, error) {
	sid, err := q.Validate()
	if err != nil {
		return nil, shared.WrapError("query", "GetStudentProgress", shared.ErrValidation, "invalid student id", err)
	}

	useCache := h.cache != nil && h.features.ProgressCache(sid.String())
	if useCache {
		var cached StudentProgressDTO
		hit, err := h.cache.Get(ctx, sid, &cached)
		switch {
		case err != nil:
			h.log.Warn("progress cache read failed", logger.StudentID(sid.String()), logger.Err(err))
		case hit:
			return &GetStudentProgressResult{Progress: trimSessions(cached, q.RecentSessions), FromCache: true}, nil
		}
	}

	view, err := h.load(ctx, sid)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := h.cache.Set(ctx, sid, view, h.cacheTTL); err != nil {
			h.log.Warn("progress cache write failed", logger.StudentID(sid.String()), logger.Err(err))
		}
	}
	return &GetStudentProgressResult{Progress: trimSessions(view, q.RecentSessions)}, nil
}

// load builds the full view with the maximum session history; trimming
// happens per request so one cache entry serves every limit.
func (h *GetStudentProgressHandler) load(ctx context.Context, sid shared.StudentID) (StudentProgressDTO, error) {
	view := StudentProgressDTO{
		Categories:   []CategoryProgressDTO{},
		Achievements: []AchievementDTO{},
	}

	points, err := h.store.Points().GetUserPoints(ctx, sid)
	switch {
	case errors.Is(err, progress.ErrPointsNotFound):
	case err != nil:
		return view, shared.StorageFailure("load_points", err)
	default:
		view.TotalPoints = points.TotalPoints
		view.TheoryPoints = points.TheoryPoints
		view.CurrentStreak = points.CurrentStreak
		view.LongestStreak = points.LongestStreak
		if points.LastActivityDate != nil {
			d := timeutil.FormatDate(*points.LastActivityDate)
			view.LastActivityDate = &d
		}
	}

	categories, err := h.store.Categories().ListCategoryProgress(ctx, sid)
	if err != nil {
		return view, shared.StorageFailure("load_categories", err)
	}
	for _, c := range categories {
		view.Categories = append(view.Categories, CategoryProgressDTO{
			CategoryID:               c.CategoryID.Int64(),
			QuestionsAttempted:       c.QuestionsAttempted,
			QuestionsCorrect:         c.QuestionsCorrect,
			AccuracyPercentage:       c.AccuracyPercentage,
			IsReadyForTest:           c.IsReadyForTest,
			LastPracticeDate:         timeutil.FormatDate(c.LastPracticeDate),
			TotalPracticeTimeSeconds: c.TotalPracticeTimeSeconds,
		})
	}

	unlocks, err := h.store.Unlocks().ListUnlocks(ctx, sid)
	if err != nil {
		return view, shared.StorageFailure("load_achievements", err)
	}
	for _, u := range unlocks {
		dto := AchievementDTO{Code: u.Code, Name: u.Code, UnlockedAt: u.UnlockedAt}
		if h.catalog != nil {
			if def, ok := h.catalog.ByCode(u.Code); ok {
				dto.Name = def.Name
				dto.Description = def.Description
				dto.Points = def.Points
			}
		}
		view.Achievements = append(view.Achievements, dto)
	}

	sessions, err := h.store.Sessions().ListRecent(ctx, sid, maxRecentSessions)
	if err != nil {
		return view, shared.StorageFailure("load_sessions", err)
	}
	for _, s := range sessions {
		dto := SessionSummaryDTO{
			SessionID:          s.ID,
			Title:              s.Title,
			TotalQuestions:     s.TotalQuestions,
			CorrectAnswers:     s.CorrectAnswers,
			AccuracyPercentage: s.Accuracy,
			PointsEarned:       s.PointsEarned,
			Result:             string(s.Verdict),
			DurationMinutes:    s.DurationMinutes,
			CompletedAt:        s.CompletedAt,
		}
		if !s.Category.IsMixed() {
			id := s.Category.Int64()
			dto.CategoryID = &id
		}
		view.RecentSessions = append(view.RecentSessions, dto)
	}

	return view, nil
}

func trimSessions(v StudentProgressDTO, limit int) StudentProgressDTO {
	switch {
	case limit < 0:
		v.RecentSessions = nil
	case len(v.RecentSessions) > limit:
		v.RecentSessions = v.RecentSessions[:limit]
	}
	return v
}
