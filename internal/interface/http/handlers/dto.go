package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/drivetheory/theory-hub/internal/application/command"
	"github.com/drivetheory/theory-hub/internal/domain/practice"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT REQUEST
// ══════════════════════════════════════════════════════════════════════════════

// SubmitRequest is the body of POST /theory/submit. userId and categoryId
// accept more than one JSON type and are decoded by hand.
type SubmitRequest struct {
	UserID      json.RawMessage `json:"userId"`
	SessionID   string          `json:"sessionId"`
	CategoryID  json.RawMessage `json:"categoryId"`
	Results     []ResultRequest `json:"results" binding:"required,dive"`
	TimeSpent   *float64        `json:"timeSpent" binding:"omitempty,gte=0,lte=86400"`
	SessionType string          `json:"sessionType"`
}

// ResultRequest is one answered question.
type ResultRequest struct {
	QuestionID int64    `json:"questionId" binding:"required,gt=0"`
	IsCorrect  *bool    `json:"isCorrect" binding:"required"`
	TimeSpent  *float64 `json:"timeSpent" binding:"omitempty,gte=0,lte=86400"`
}

var (
	errUserIDType     = errors.New("userId must be a string or an integer")
	errCategoryIDType = errors.New(`categoryId must be an integer, "all" or null`)
)

// Submission converts the body into the engine's input. Field-level rules
// (required results, positive ids) are left to practice.Validate.
func (r SubmitRequest) Submission() (practice.Submission, error) {
	userID, err := decodeUserID(r.UserID)
	if err != nil {
		return practice.Submission{}, err
	}
	category, err := decodeCategoryID(r.CategoryID)
	if err != nil {
		return practice.Submission{}, err
	}

	results := make([]practice.ResultInput, 0, len(r.Results))
	for _, res := range r.Results {
		results = append(results, practice.ResultInput{
			QuestionID:       res.QuestionID,
			IsCorrect:        res.IsCorrect,
			TimeSpentSeconds: res.TimeSpent,
		})
	}

	var spent float64
	if r.TimeSpent != nil {
		spent = *r.TimeSpent
	}

	return practice.Submission{
		StudentID:        userID,
		SessionID:        r.SessionID,
		CategoryID:       category,
		Results:          results,
		TimeSpentSeconds: spent,
		SessionType:      r.SessionType,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeUserID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errUserIDType
	}
	id, err := n.Int64()
	if err != nil {
		return "", errUserIDType
	}
	return strconv.FormatInt(id, 10), nil
}

// decodeCategoryID returns nil for a mixed session.
func decodeCategoryID(raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "all") {
			return nil, nil
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errCategoryIDType
		}
		return &id, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, errCategoryIDType
	}
	id, err := n.Int64()
	if err != nil {
		return nil, errCategoryIDType
	}
	return &id, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the body shape shared by the theory endpoints.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AchievementResponse describes one newly unlocked achievement.
type AchievementResponse struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Points      int    `json:"points"`
}

// SubmitResponse is the data of a successful submission.
type SubmitResponse struct {
	SessionID          string                `json:"sessionId"`
	Score              int                   `json:"score"`
	TotalQuestions     int                   `json:"totalQuestions"`
	AccuracyPercentage float64               `json:"accuracyPercentage"`
	PointsEarned       int                   `json:"pointsEarned"`
	Result             string                `json:"result"`
	NewAchievements    []AchievementResponse `json:"newAchievements"`
	Feedback           string                `json:"feedback"`
}

// NewSubmitResponse renders a handler result.
func NewSubmitResponse(r *command.SubmitPracticeResult) SubmitResponse {
	achievements := make([]AchievementResponse, 0, len(r.NewAchievements))
	for _, a := range r.NewAchievements {
		achievements = append(achievements, AchievementResponse{
			Code:        a.Code,
			Name:        a.Name,
			Description: a.Description,
			Points:      a.Points,
		})
	}
	return SubmitResponse{
		SessionID:          r.SessionID,
		Score:              r.Score,
		TotalQuestions:     r.TotalQuestions,
		AccuracyPercentage: r.Accuracy,
		PointsEarned:       r.PointsEarned,
		Result:             string(r.Verdict),
		NewAchievements:    achievements,
		Feedback:           r.Feedback,
	}
}
