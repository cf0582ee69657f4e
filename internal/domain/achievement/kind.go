// Package achievement defines the closed set of practice achievements, their
// trigger predicates and the catalog that names and prices them.
package achievement

import "fmt"

// Kind is one of the closed set of achievement variants.
type Kind int

const (
	PerfectScore Kind = iota + 1
	Excellence
	WeekStreak
	MonthStreak
)

// Kinds lists every kind. The catalog must define each exactly once.
func Kinds() []Kind {
	return []Kind{PerfectScore, Excellence, WeekStreak, MonthStreak}
}

// String returns the catalog spelling of the kind.
func (k Kind) String() string {
	switch k {
	case PerfectScore:
		return "perfect_score"
	case Excellence:
		return "excellence"
	case WeekStreak:
		return "week_streak"
	case MonthStreak:
		return "month_streak"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind resolves the catalog spelling of a kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("achievement: unknown kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Snapshot is what predicates observe: the session accuracy and the
// post-update streak.
type Snapshot struct {
	Accuracy      float64
	CurrentStreak int
}

// Predicate decides whether a kind triggers for a snapshot.
type Predicate func(Snapshot) bool

// rule binds a kind to its predicate and its place in a tier group.
// Within a group only the highest qualifying tier fires.
type rule struct {
	predicate Predicate
	group     string
	tier      int
}

var registry = map[Kind]rule{
	PerfectScore: {
		predicate: func(s Snapshot) bool { return s.Accuracy >= 100 },
		group:     "accuracy",
		tier:      2,
	},
	Excellence: {
		predicate: func(s Snapshot) bool { return s.Accuracy >= 90 },
		group:     "accuracy",
		tier:      1,
	},
	WeekStreak: {
		predicate: func(s Snapshot) bool { return s.CurrentStreak >= 7 },
		group:     "week_streak",
		tier:      1,
	},
	MonthStreak: {
		predicate: func(s Snapshot) bool { return s.CurrentStreak >= 30 },
		group:     "month_streak",
		tier:      1,
	},
}

// Triggers reports whether the kind's predicate holds.
func (k Kind) Triggers(s Snapshot) bool {
	r, ok := registry[k]
	return ok && r.predicate(s)
}
