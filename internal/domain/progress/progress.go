// Package progress holds the per-question, per-category and per-student
// aggregates the practice engine maintains. The Apply methods are the
// reference semantics of the atomic storage upserts.
package progress

import (
	"math"
	"time"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/timeutil"
)

// ReadyThreshold is the accuracy at which a category counts as test-ready.
const ReadyThreshold = 80.0

// ═══════════════════════════════════════════════════════════════════════════
// Question statistics
// ═══════════════════════════════════════════════════════════════════════════

// QuestionStat is the rolling telemetry of a single question.
// Invariant: TimesShown == TimesCorrect + TimesIncorrect.
type QuestionStat struct {
	QuestionID              shared.QuestionID
	TimesShown              int64
	TimesCorrect            int64
	TimesIncorrect          int64
	AverageTimeSpentSeconds float64
	UpdatedAt               time.Time
}

// Exposure is one answered occurrence of a question.
type Exposure struct {
	QuestionID       shared.QuestionID
	Correct          bool
	TimeSpentSeconds float64
	At               time.Time
}

// Apply folds one exposure into the statistic using the incremental mean.
func (s QuestionStat) Apply(e Exposure) QuestionStat {
	s.QuestionID = e.QuestionID
	s.AverageTimeSpentSeconds = (s.AverageTimeSpentSeconds*float64(s.TimesShown) + e.TimeSpentSeconds) / float64(s.TimesShown+1)
	s.TimesShown++
	if e.Correct {
		s.TimesCorrect++
	} else {
		s.TimesIncorrect++
	}
	s.UpdatedAt = e.At
	return s
}

// CorrectRate returns the share of correct answers in percent.
func (s QuestionStat) CorrectRate() float64 {
	if s.TimesShown == 0 {
		return 0
	}
	return round2(float64(s.TimesCorrect) * 100 / float64(s.TimesShown))
}

// ═══════════════════════════════════════════════════════════════════════════
// Category mastery
// ═══════════════════════════════════════════════════════════════════════════

// CategoryProgress is a student's cumulative mastery of one category.
// Invariant: AccuracyPercentage == round(QuestionsCorrect/QuestionsAttempted*100, 2).
type CategoryProgress struct {
	StudentID                shared.StudentID
	CategoryID               shared.CategoryID
	QuestionsAttempted       int64
	QuestionsCorrect         int64
	AccuracyPercentage       float64
	IsReadyForTest           bool
	LastPracticeDate         time.Time
	TotalPracticeTimeSeconds int64
}

// CategoryDelta is one submission's contribution to a category.
type CategoryDelta struct {
	StudentID        shared.StudentID
	CategoryID       shared.CategoryID
	Attempted        int64
	Correct          int64
	TimeSpentSeconds int64
	PracticedAt      time.Time
}

// Apply combines totals first and derives accuracy from the new totals.
func (p CategoryProgress) Apply(d CategoryDelta) CategoryProgress {
	p.StudentID = d.StudentID
	p.CategoryID = d.CategoryID
	p.QuestionsAttempted += d.Attempted
	p.QuestionsCorrect += d.Correct
	p.AccuracyPercentage = AccuracyOf(p.QuestionsCorrect, p.QuestionsAttempted)
	p.IsReadyForTest = p.AccuracyPercentage >= ReadyThreshold
	p.LastPracticeDate = d.PracticedAt
	p.TotalPracticeTimeSeconds += d.TimeSpentSeconds
	return p
}

// AccuracyOf returns round(correct/attempted*100, 2), or 0 with no attempts.
func AccuracyOf(correct, attempted int64) float64 {
	if attempted <= 0 {
		return 0
	}
	return round2(float64(correct) * 100 / float64(attempted))
}

// WholeSeconds rounds a session duration for the practice time total.
func WholeSeconds(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ═══════════════════════════════════════════════════════════════════════════
// Points and streak
// ═══════════════════════════════════════════════════════════════════════════

// UserPoints is the per-student points ledger and day streak.
// Invariant: LongestStreak >= CurrentStreak.
type UserPoints struct {
	StudentID        shared.StudentID
	TotalPoints      int64
	TheoryPoints     int64
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate *time.Time // calendar date, nil before the first submission
}

// PointsDelta is one submission's contribution to the ledger. Today and
// Yesterday are calendar dates in the configured timezone.
type PointsDelta struct {
	StudentID shared.StudentID
	Points    int64
	Today     time.Time
	Yesterday time.Time
	At        time.Time
}

// NewPointsDelta derives the calendar dates for a submission made at `at`.
func NewPointsDelta(studentID shared.StudentID, points int, cal *timeutil.Calendar, at time.Time) PointsDelta {
	today := cal.DateOf(at)
	return PointsDelta{
		StudentID: studentID,
		Points:    int64(points),
		Today:     today,
		Yesterday: today.AddDate(0, 0, -1),
		At:        at,
	}
}

// NextStreak returns the streak after activity on `today` given the last activity date.
func NextStreak(current int, lastActivity *time.Time, today time.Time) int {
	if lastActivity == nil {
		return 1
	}
	switch timeutil.DaysBetween(*lastActivity, today) {
	case 0:
		if current < 1 {
			return 1
		}
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}

// Apply is the streak and points transition for one submission.
func (u UserPoints) Apply(d PointsDelta) UserPoints {
	u.StudentID = d.StudentID
	u.TotalPoints += d.Points
	u.TheoryPoints += d.Points
	u.CurrentStreak = NextStreak(u.CurrentStreak, u.LastActivityDate, d.Today)
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	today := d.Today
	u.LastActivityDate = &today
	return u
}
