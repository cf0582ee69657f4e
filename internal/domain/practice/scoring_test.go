package practice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drivetheory/theory-hub/internal/domain/progress"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

func batchOf(correct, total int, timeSpent float64) Batch {
	results := make([]Result, total)
	for i := range results {
		results[i] = Result{QuestionID: shared.QuestionID(i + 1), Correct: i < correct}
	}
	return Batch{StudentID: "42", Results: results, TimeSpentSeconds: timeSpent, SessionType: DefaultSessionType}
}

func TestEvaluate_ReferenceScenarios(t *testing.T) {
	tests := []struct {
		name      string
		correct   int
		total     int
		timeSpent float64
		accuracy  float64
		points    int
		verdict   Verdict
		feedback  string
	}{
		{"perfect and fast", 10, 10, 300, 100, 195, VerdictPass, FeedbackExcellent},
		{"passing and slow", 8, 10, 700, 80, 105, VerdictPass, FeedbackPassing},
		{"half right", 5, 10, 0, 50, 50, VerdictFail, FeedbackFoundation},
		{"progressing band", 7, 10, 0, 70, 70, VerdictFail, FeedbackProgressing},
		{"excellence without speed", 9, 10, 600, 90, 165, VerdictPass, FeedbackExcellent},
		{"speed bonus on failing run", 1, 3, 30, 33.33, 30, VerdictFail, FeedbackFoundation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate(batchOf(tt.correct, tt.total, tt.timeSpent), DefaultScoringOptions())
			assert.Equal(t, tt.correct, s.Correct)
			assert.Equal(t, tt.total, s.Total)
			assert.Equal(t, tt.accuracy, s.Accuracy)
			assert.Equal(t, tt.points, s.Points())
			assert.Equal(t, tt.verdict, s.Verdict)
			assert.Equal(t, tt.feedback, s.Feedback)
			assert.GreaterOrEqual(t, s.Points(), tt.correct*PointsPerCorrect)
		})
	}
}

func TestAccuracy_RoundsToTwoDecimals(t *testing.T) {
	assert.Equal(t, 66.67, Accuracy(2, 3))
	assert.Equal(t, 33.33, Accuracy(1, 3))
	assert.Equal(t, 12.5, Accuracy(1, 8))
	assert.Equal(t, 0.0, Accuracy(0, 0))

	for total := 1; total <= 60; total++ {
		for correct := 0; correct <= total; correct++ {
			acc := Accuracy(correct, total)
			assert.GreaterOrEqual(t, acc, 0.0)
			assert.LessOrEqual(t, acc, 100.0)
			assert.Equal(t, progress.AccuracyOf(int64(correct), int64(total)), acc, "%d/%d", correct, total)
		}
	}
}

func TestCalculatePoints_SpeedBonusBoundaries(t *testing.T) {
	opts := DefaultScoringOptions()

	assert.Equal(t, 0, CalculatePoints(0, 10, 0, 0, opts).Speed, "missing time never earns the bonus")
	assert.Equal(t, 0, CalculatePoints(0, 10, 0, 600, opts).Speed, "exactly one minute per question is not under")
	assert.Equal(t, SpeedBonus, CalculatePoints(0, 10, 0, 599, opts).Speed)
	assert.Equal(t, 0, CalculatePoints(0, 10, 0, 10, ScoringOptions{SpeedBonus: false}).Speed)
}

func TestFeedbackFor_InclusiveLowerBounds(t *testing.T) {
	assert.Equal(t, FeedbackExcellent, FeedbackFor(90))
	assert.Equal(t, FeedbackPassing, FeedbackFor(89.99))
	assert.Equal(t, FeedbackPassing, FeedbackFor(80))
	assert.Equal(t, FeedbackProgressing, FeedbackFor(79.99))
	assert.Equal(t, FeedbackProgressing, FeedbackFor(70))
	assert.Equal(t, FeedbackFoundation, FeedbackFor(69.99))
}

func TestVerdictFor(t *testing.T) {
	assert.Equal(t, VerdictPass, VerdictFor(80))
	assert.Equal(t, VerdictFail, VerdictFor(79.99))
}
