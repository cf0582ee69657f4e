package practice

import (
	"math"
	"time"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/timeutil"
)

// StatusCompleted is the only status a recorded session can have.
const StatusCompleted = "completed"

// AwardedAchievement is the descriptor of an achievement reported with a session.
type AwardedAchievement struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Points      int    `json:"points"`
}

// Session is the write-once record of an accepted submission.
type Session struct {
	ID               string
	StudentID        shared.StudentID
	ClientSessionID  string
	Title            string
	SessionType      string
	Category         shared.CategoryID
	TotalQuestions   int
	CorrectAnswers   int
	Accuracy         float64
	TimeSpentSeconds float64
	DurationMinutes  int
	Status           string
	Verdict          Verdict
	PointsEarned     int
	Feedback         string
	Results          []Result
	Achievements     []AwardedAchievement
	StartedAt        time.Time
	CompletedAt      time.Time
}

// NewSession builds the record for a scored batch. StartedAt is derived by
// subtracting the session time from completedAt.
func NewSession(id string, b Batch, s Score, awarded []AwardedAchievement, completedAt time.Time, loc *time.Location) *Session {
	if awarded == nil {
		awarded = []AwardedAchievement{}
	}
	spent := time.Duration(b.TimeSpentSeconds * float64(time.Second))
	return &Session{
		ID:               id,
		StudentID:        b.StudentID,
		ClientSessionID:  b.ClientSessionID,
		Title:            "Theory Practice - " + timeutil.HumanDate(completedAt, loc),
		SessionType:      b.SessionType,
		Category:         b.Category,
		TotalQuestions:   s.Total,
		CorrectAnswers:   s.Correct,
		Accuracy:         s.Accuracy,
		TimeSpentSeconds: b.TimeSpentSeconds,
		DurationMinutes:  DurationMinutes(b.TimeSpentSeconds),
		Status:           StatusCompleted,
		Verdict:          s.Verdict,
		PointsEarned:     s.Points(),
		Feedback:         s.Feedback,
		Results:          b.Results,
		Achievements:     awarded,
		StartedAt:        completedAt.Add(-spent),
		CompletedAt:      completedAt,
	}
}

// DurationMinutes converts seconds to whole minutes, rounding up.
func DurationMinutes(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds / 60))
}

// Outcome is the caller-facing result of a submission.
type Outcome struct {
	SessionID       string
	Score           int
	TotalQuestions  int
	Accuracy        float64
	PointsEarned    int
	Verdict         Verdict
	NewAchievements []AwardedAchievement
	Feedback        string
	Replayed        bool
}

// Outcome reassembles the response recorded with the session.
func (s *Session) Outcome() Outcome {
	achievements := s.Achievements
	if achievements == nil {
		achievements = []AwardedAchievement{}
	}
	return Outcome{
		SessionID:       s.ID,
		Score:           s.CorrectAnswers,
		TotalQuestions:  s.TotalQuestions,
		Accuracy:        s.Accuracy,
		PointsEarned:    s.PointsEarned,
		Verdict:         s.Verdict,
		NewAchievements: achievements,
		Feedback:        s.Feedback,
	}
}
