package practice

import (
	"fmt"
	"math"
	"strings"

	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// DefaultSessionType is used when the caller does not name one.
const DefaultSessionType = "practice"

// MaxResultsPerSubmission bounds a single batch.
const MaxResultsPerSubmission = 500

// MaxTimeSpentSeconds bounds both the session time and each per-question time.
const MaxTimeSpentSeconds = 24 * 60 * 60

// Submission is the unvalidated inbound envelope.
type Submission struct {
	StudentID        string
	SessionID        string
	CategoryID       *int64 // nil for mixed sessions
	Results          []ResultInput
	TimeSpentSeconds float64
	SessionType      string
}

// ResultInput is one answered question as received.
type ResultInput struct {
	QuestionID       int64
	IsCorrect        *bool
	TimeSpentSeconds *float64
}

// Result is one validated answered question.
type Result struct {
	QuestionID       shared.QuestionID `json:"questionId"`
	Correct          bool              `json:"isCorrect"`
	TimeSpentSeconds float64           `json:"timeSpent"`
}

// Batch is a validated submission. Only a Batch reaches the storage layer.
type Batch struct {
	StudentID        shared.StudentID
	ClientSessionID  string
	Category         shared.CategoryID
	Results          []Result
	TimeSpentSeconds float64
	SessionType      string
}

// Total returns N, the number of answered questions.
func (b Batch) Total() int { return len(b.Results) }

// Correct returns C, the number of correct answers.
func (b Batch) Correct() int {
	c := 0
	for _, r := range b.Results {
		if r.Correct {
			c++
		}
	}
	return c
}

// HasCategory reports whether the batch is aggregated by category.
func (b Batch) HasCategory() bool { return !b.Category.IsMixed() }

// Validate checks the envelope and returns a Batch. It performs no I/O.
func Validate(s Submission) (Batch, error) {
	studentID, err := shared.NewStudentID(s.StudentID)
	if err != nil {
		return Batch{}, shared.InvalidSubmission("studentId is required")
	}
	if len(s.Results) == 0 {
		return Batch{}, shared.InvalidSubmission("results must not be empty")
	}
	if len(s.Results) > MaxResultsPerSubmission {
		return Batch{}, shared.InvalidSubmission(fmt.Sprintf("at most %d results per submission", MaxResultsPerSubmission))
	}
	if !validSeconds(s.TimeSpentSeconds) {
		return Batch{}, shared.InvalidSubmission(fmt.Sprintf("timeSpent must be between 0 and %d seconds", MaxTimeSpentSeconds))
	}

	category := shared.MixedCategory
	if s.CategoryID != nil {
		if *s.CategoryID <= 0 {
			return Batch{}, shared.InvalidSubmission("categoryId must be positive or \"all\"")
		}
		category = shared.CategoryID(*s.CategoryID)
	}

	results := make([]Result, 0, len(s.Results))
	for i, in := range s.Results {
		if in.IsCorrect == nil {
			return Batch{}, shared.InvalidSubmission(fmt.Sprintf("results[%d].isCorrect must be a boolean", i))
		}
		qid := shared.QuestionID(in.QuestionID)
		if !qid.IsValid() {
			return Batch{}, shared.InvalidSubmission(fmt.Sprintf("results[%d].questionId must be positive", i))
		}
		var spent float64
		if in.TimeSpentSeconds != nil {
			if !validSeconds(*in.TimeSpentSeconds) {
				return Batch{}, shared.InvalidSubmission(fmt.Sprintf("results[%d].timeSpent must be between 0 and %d seconds", i, MaxTimeSpentSeconds))
			}
			spent = *in.TimeSpentSeconds
		}
		results = append(results, Result{QuestionID: qid, Correct: *in.IsCorrect, TimeSpentSeconds: spent})
	}

	sessionType := strings.TrimSpace(s.SessionType)
	if sessionType == "" {
		sessionType = DefaultSessionType
	}

	return Batch{
		StudentID:        studentID,
		ClientSessionID:  strings.TrimSpace(s.SessionID),
		Category:         category,
		Results:          results,
		TimeSpentSeconds: s.TimeSpentSeconds,
		SessionType:      sessionType,
	}, nil
}

func validSeconds(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= MaxTimeSpentSeconds
}
