package practice

import "github.com/drivetheory/theory-hub/internal/domain/progress"

// Scoring constants.
const (
	PointsPerCorrect        = 10
	ExcellenceThreshold     = 90.0
	ExcellenceBonus         = 50
	PassThreshold           = 80.0
	PassBonus               = 25
	SpeedBonus              = 20
	SpeedSecondsPerQuestion = 60
	ProgressingThreshold    = 70.0
)

// Verdict is the pass/fail outcome of a session.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Feedback messages, one per accuracy band.
const (
	FeedbackExcellent   = "Excellent work! You're ready for your theory test. Keep practicing to maintain this level."
	FeedbackPassing     = "Good job! You're passing. Focus on your weak areas to improve further."
	FeedbackProgressing = "You're making progress. Review the explanations for the questions you got wrong."
	FeedbackFoundation  = "Keep practicing! Focus on understanding the fundamentals of each topic."
)

// Accuracy returns round(correct/total*100, 2). A zero total yields 0.
// Session and category accuracy share one rounding rule.
func Accuracy(correct, total int) float64 {
	return progress.AccuracyOf(int64(correct), int64(total))
}

// PointsBreakdown itemizes the points earned by one session.
type PointsBreakdown struct {
	Base       int `json:"base"`
	Excellence int `json:"excellence"`
	Passing    int `json:"passing"`
	Speed      int `json:"speed"`
}

// Total sums the breakdown.
func (p PointsBreakdown) Total() int {
	return p.Base + p.Excellence + p.Passing + p.Speed
}

// ScoringOptions toggles optional scoring rules.
type ScoringOptions struct {
	SpeedBonus bool
}

// DefaultScoringOptions enables every rule.
func DefaultScoringOptions() ScoringOptions {
	return ScoringOptions{SpeedBonus: true}
}

// CalculatePoints applies the points formula. The excellence and passing
// bonuses stack. The speed bonus needs a non-zero time under one minute per question.
func CalculatePoints(correct, total int, accuracy, timeSpentSeconds float64, opts ScoringOptions) PointsBreakdown {
	p := PointsBreakdown{Base: correct * PointsPerCorrect}
	if accuracy >= ExcellenceThreshold {
		p.Excellence = ExcellenceBonus
	}
	if accuracy >= PassThreshold {
		p.Passing = PassBonus
	}
	if opts.SpeedBonus && timeSpentSeconds > 0 && timeSpentSeconds < float64(total*SpeedSecondsPerQuestion) {
		p.Speed = SpeedBonus
	}
	return p
}

// VerdictFor returns pass iff accuracy >= 80.
func VerdictFor(accuracy float64) Verdict {
	if accuracy >= PassThreshold {
		return VerdictPass
	}
	return VerdictFail
}

// FeedbackFor selects the feedback band, top-down, inclusive lower bounds.
func FeedbackFor(accuracy float64) string {
	switch {
	case accuracy >= ExcellenceThreshold:
		return FeedbackExcellent
	case accuracy >= PassThreshold:
		return FeedbackPassing
	case accuracy >= ProgressingThreshold:
		return FeedbackProgressing
	default:
		return FeedbackFoundation
	}
}

// Score is the derived outcome of a batch before any aggregate is touched.
type Score struct {
	Correct   int
	Total     int
	Accuracy  float64
	Breakdown PointsBreakdown
	Verdict   Verdict
	Feedback  string
}

// Points returns the points earned.
func (s Score) Points() int { return s.Breakdown.Total() }

// Evaluate scores a validated batch.
func Evaluate(b Batch, opts ScoringOptions) Score {
	correct, total := b.Correct(), b.Total()
	acc := Accuracy(correct, total)
	return Score{
		Correct:   correct,
		Total:     total,
		Accuracy:  acc,
		Breakdown: CalculatePoints(correct, total, acc, b.TimeSpentSeconds, opts),
		Verdict:   VerdictFor(acc),
		Feedback:  FeedbackFor(acc),
	}
}
