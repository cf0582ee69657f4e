package shared

import (
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Identifiers
// ═══════════════════════════════════════════════════════════════════════════

// StudentID identifies a student. It is supplied by the authentication
// collaborator and may be numeric or opaque, so it is kept as text.
type StudentID string

// IsValid checks that the id is non-empty.
func (s StudentID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// NewStudentID creates a StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.TrimSpace(id))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "student id is required")
	}
	return sid, nil
}

// QuestionID identifies a theory question from the content catalog.
type QuestionID int64

// IsValid checks that the id is positive.
func (q QuestionID) IsValid() bool { return q > 0 }

// Int64 returns the raw value.
func (q QuestionID) Int64() int64 { return int64(q) }

// CategoryID identifies a question category. The zero value means a mixed
// session that is not aggregated by category.
type CategoryID int64

// MixedCategory is the sentinel for sessions spanning all categories.
const MixedCategory CategoryID = 0

// IsMixed reports whether the session is not tied to a single category.
func (c CategoryID) IsMixed() bool { return c <= 0 }

// Int64 returns the raw value.
func (c CategoryID) Int64() int64 { return int64(c) }

// String returns the decimal form, or "all" for mixed sessions.
func (c CategoryID) String() string {
	if c.IsMixed() {
		return "all"
	}
	return strconv.FormatInt(int64(c), 10)
}

// ═══════════════════════════════════════════════════════════════════════════
// Points
// ═══════════════════════════════════════════════════════════════════════════

// Points is an amount of reward points. It never goes negative.
type Points int

// Int returns the raw value.
func (p Points) Int() int { return int(p) }

// Add returns p + amount, ignoring negative amounts.
func (p Points) Add(amount Points) Points {
	if amount < 0 {
		return p
	}
	return p + amount
}
