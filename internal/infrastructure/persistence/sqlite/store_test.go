package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/achievement"
	"github.com/drivetheory/theory-hub/internal/domain/practice"
	"github.com/drivetheory/theory-hub/internal/domain/progress"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	catalog, err := achievement.DefaultCatalog()
	require.NoError(t, err)

	store, err := OpenMemory(context.Background(), catalog)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pointsDelta(sid shared.StudentID, points int64, today time.Time) progress.PointsDelta {
	return progress.PointsDelta{
		StudentID: sid,
		Points:    points,
		Today:     today,
		Yesterday: today.AddDate(0, 0, -1),
		At:        today.Add(9 * time.Hour),
	}
}

func TestMigrator_UpDownStatus(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db)
	n, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(Migrations()), n)

	n, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	for _, mig := range status {
		assert.True(t, mig.IsApplied, mig.Name)
	}

	rolled, err := m.Rollback(ctx)
	require.NoError(t, err)
	assert.True(t, rolled)

	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status[len(status)-1].IsApplied)
}

func TestQuestionStats_IncrementalMean(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := store.QuestionStats()
	now := time.Now()

	for _, e := range []progress.Exposure{
		{QuestionID: 7, Correct: true, TimeSpentSeconds: 10, At: now},
		{QuestionID: 7, Correct: false, TimeSpentSeconds: 20, At: now},
		{QuestionID: 7, Correct: true, TimeSpentSeconds: 30, At: now},
	} {
		require.NoError(t, repo.RecordExposure(ctx, e))
	}

	stat, err := repo.GetQuestionStat(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stat.TimesShown)
	assert.EqualValues(t, 2, stat.TimesCorrect)
	assert.EqualValues(t, 1, stat.TimesIncorrect)
	assert.InDelta(t, 20.0, stat.AverageTimeSpentSeconds, 1e-9)

	_, err = repo.GetQuestionStat(ctx, 8)
	assert.ErrorIs(t, err, progress.ErrQuestionStatNotFound)
}

func TestQuestionStats_ConcurrentExposuresAreNotLost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := store.QuestionStats()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.RecordExposure(ctx, progress.Exposure{
				QuestionID: 42, Correct: i%2 == 0, TimeSpentSeconds: 5, At: time.Now(),
			}))
		}(i)
	}
	wg.Wait()

	stat, err := repo.GetQuestionStat(ctx, 42)
	require.NoError(t, err)
	assert.EqualValues(t, writers, stat.TimesShown)
	assert.Equal(t, stat.TimesShown, stat.TimesCorrect+stat.TimesIncorrect)
	assert.InDelta(t, 5.0, stat.AverageTimeSpentSeconds, 1e-9)
}

func TestCategoryProgress_AccuracyFromCombinedTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	first, err := store.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
		StudentID: "s1", CategoryID: 3, Attempted: 10, Correct: 7, TimeSpentSeconds: 300, PracticedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, first.AccuracyPercentage)
	assert.False(t, first.IsReadyForTest)

	second, err := store.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
		StudentID: "s1", CategoryID: 3, Attempted: 10, Correct: 10, TimeSpentSeconds: 200, PracticedAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, second.QuestionsAttempted)
	assert.EqualValues(t, 17, second.QuestionsCorrect)
	assert.Equal(t, 85.0, second.AccuracyPercentage)
	assert.True(t, second.IsReadyForTest)
	assert.EqualValues(t, 500, second.TotalPracticeTimeSeconds)
	assert.True(t, second.LastPracticeDate.Equal(now.Add(time.Hour)))

	third, err := store.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
		StudentID: "s1", CategoryID: 3, Attempted: 1, Correct: 0, PracticedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, progress.AccuracyOf(17, 21), third.AccuracyPercentage)

	_, err = store.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
		StudentID: "s1", CategoryID: 1, Attempted: 2, Correct: 2, PracticedAt: now,
	})
	require.NoError(t, err)

	list, err := store.Categories().ListCategoryProgress(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, shared.CategoryID(1), list[0].CategoryID)
	assert.Equal(t, shared.CategoryID(3), list[1].CategoryID)
}

func TestPoints_StreakTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := store.Points()

	tests := []struct {
		name    string
		today   time.Time
		points  int64
		streak  int
		longest int
		total   int64
	}{
		{"first submission", day(2026, 10, 1), 100, 1, 1, 100},
		{"same day keeps streak", day(2026, 10, 1), 50, 1, 1, 150},
		{"next day extends", day(2026, 10, 2), 10, 2, 2, 160},
		{"next day again", day(2026, 10, 3), 0, 3, 3, 160},
		{"gap resets", day(2026, 10, 6), 25, 1, 3, 185},
		{"clock moved back resets", day(2026, 10, 4), 0, 1, 3, 185},
	}
	for _, tt := range tests {
		up, err := repo.ApplyPointsDelta(ctx, pointsDelta("s1", tt.points, tt.today))
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.streak, up.CurrentStreak, tt.name)
		assert.Equal(t, tt.longest, up.LongestStreak, tt.name)
		assert.Equal(t, tt.total, up.TotalPoints, tt.name)
		assert.Equal(t, tt.total, up.TheoryPoints, tt.name)
		require.NotNil(t, up.LastActivityDate, tt.name)
		assert.Equal(t, tt.today, *up.LastActivityDate, tt.name)
	}

	got, err := repo.GetUserPoints(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 185, got.TotalPoints)

	_, err = repo.GetUserPoints(ctx, "nobody")
	assert.ErrorIs(t, err, progress.ErrPointsNotFound)
}

func TestPoints_MatchesDomainTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var model progress.UserPoints
	for i, today := range []time.Time{day(2026, 1, 1), day(2026, 1, 2), day(2026, 1, 2), day(2026, 1, 9), day(2026, 1, 10)} {
		d := pointsDelta("s2", int64(10*i), today)
		model = model.Apply(d)

		up, err := store.Points().ApplyPointsDelta(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, model.CurrentStreak, up.CurrentStreak)
		assert.Equal(t, model.LongestStreak, up.LongestStreak)
		assert.Equal(t, model.TotalPoints, up.TotalPoints)
	}
}

func TestAchievements_GrantOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Unlocks().Grant(ctx, "s1", "perfect_score", time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Unlocks().Grant(ctx, "s1", "perfect_score", time.Now())
	require.NoError(t, err)
	assert.False(t, created)

	created, err = store.Unlocks().Grant(ctx, "s2", "perfect_score", time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	unlocks, err := store.Unlocks().ListUnlocks(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, "perfect_score", unlocks[0].Code)

	_, err = store.Unlocks().Grant(ctx, "s1", "not_in_catalog", time.Now())
	assert.Error(t, err)
}

func newSession(t *testing.T, sid shared.StudentID, clientID string, completedAt time.Time) *practice.Session {
	t.Helper()
	batch := practice.Batch{
		StudentID:        sid,
		ClientSessionID:  clientID,
		Category:         shared.CategoryID(4),
		Results:          []practice.Result{{QuestionID: 1, Correct: true, TimeSpentSeconds: 12}, {QuestionID: 2, Correct: false}},
		TimeSpentSeconds: 90,
		SessionType:      practice.DefaultSessionType,
	}
	score := practice.Evaluate(batch, practice.DefaultScoringOptions())
	awarded := []practice.AwardedAchievement{{Code: "excellence", Name: "Excellence", Description: "d", Points: 50}}
	return practice.NewSession(uuid.NewString(), batch, score, awarded, completedAt, time.UTC)
}

func TestSessions_RecordFindAndDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	session := newSession(t, "s1", "client-1", now)
	require.NoError(t, store.Sessions().Record(ctx, session))

	found, err := store.Sessions().FindByClientSessionID(ctx, "s1", "client-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, session.Results, found.Results)
	assert.Equal(t, session.Outcome(), found.Outcome())
	assert.Equal(t, session.Category, found.Category)
	assert.True(t, session.StartedAt.Equal(found.StartedAt))
	assert.Equal(t, 2, found.DurationMinutes)

	dup := newSession(t, "s1", "client-1", now)
	assert.ErrorIs(t, store.Sessions().Record(ctx, dup), shared.ErrDuplicateSession)

	// Same client id for another student is a different session.
	require.NoError(t, store.Sessions().Record(ctx, newSession(t, "s2", "client-1", now)))

	// Sessions without a client id never collide.
	require.NoError(t, store.Sessions().Record(ctx, newSession(t, "s1", "", now.Add(time.Minute))))
	require.NoError(t, store.Sessions().Record(ctx, newSession(t, "s1", "", now.Add(2*time.Minute))))

	recent, err := store.Sessions().ListRecent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].CompletedAt.After(recent[1].CompletedAt))

	_, err = store.Sessions().FindByClientSessionID(ctx, "s1", "missing")
	assert.ErrorIs(t, err, practice.ErrSessionNotFound)
}

func TestWithinTx_RollsBackEveryStage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	today := day(2026, 10, 19)
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if _, err := repos.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
			StudentID: "s1", CategoryID: 2, Attempted: 5, Correct: 5, PracticedAt: today,
		}); err != nil {
			return err
		}
		if _, err := repos.Points().ApplyPointsDelta(ctx, pointsDelta("s1", 50, today)); err != nil {
			return err
		}
		if _, err := repos.Unlocks().Grant(ctx, "s1", "perfect_score", today); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Points().GetUserPoints(ctx, "s1")
	assert.ErrorIs(t, err, progress.ErrPointsNotFound)

	cats, err := store.Categories().ListCategoryProgress(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, cats)

	unlocks, err := store.Unlocks().ListUnlocks(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, unlocks)
}
