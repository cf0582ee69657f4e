package postgres

import (
	"context"
	"os"
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

// newTestStore connects to TEST_DATABASE_URL, migrates it and syncs the
// catalog. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := Connect(ctx, url, DefaultPoolOptions())
	require.NoError(t, err)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)

	store := NewStore(conn)
	catalog, err := achievement.DefaultCatalog()
	require.NoError(t, err)
	require.NoError(t, store.Catalog().SyncCatalog(ctx, catalog.Definitions()))

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func uniqueStudent() shared.StudentID {
	return shared.StudentID("pg-test-" + uuid.NewString())
}

func uniqueQuestion() shared.QuestionID {
	return shared.QuestionID(time.Now().UnixNano()%1_000_000_000 + 1)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestQuestionStats_IncrementalMean(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	qid := uniqueQuestion()
	repo := store.QuestionStats()

	now := time.Now().UTC()
	require.NoError(t, repo.RecordExposure(ctx, progress.Exposure{QuestionID: qid, Correct: true, TimeSpentSeconds: 10, At: now}))
	require.NoError(t, repo.RecordExposure(ctx, progress.Exposure{QuestionID: qid, Correct: false, TimeSpentSeconds: 20, At: now}))
	require.NoError(t, repo.RecordExposure(ctx, progress.Exposure{QuestionID: qid, Correct: true, TimeSpentSeconds: 30, At: now}))

	stat, err := repo.GetQuestionStat(ctx, qid)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stat.TimesShown)
	assert.EqualValues(t, 2, stat.TimesCorrect)
	assert.EqualValues(t, 1, stat.TimesIncorrect)
	assert.InDelta(t, 20.0, stat.AverageTimeSpentSeconds, 1e-9)
}

func TestCategoryProgress_AccuracyFromCombinedTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sid := uniqueStudent()
	now := time.Now().UTC()

	first, err := store.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
		StudentID: sid, CategoryID: 3, Attempted: 10, Correct: 7, TimeSpentSeconds: 300, PracticedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, first.AccuracyPercentage)
	assert.False(t, first.IsReadyForTest)

	second, err := store.Categories().ApplyCategoryDelta(ctx, progress.CategoryDelta{
		StudentID: sid, CategoryID: 3, Attempted: 10, Correct: 10, TimeSpentSeconds: 200, PracticedAt: now,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, second.QuestionsAttempted)
	assert.EqualValues(t, 17, second.QuestionsCorrect)
	assert.Equal(t, 85.0, second.AccuracyPercentage)
	assert.True(t, second.IsReadyForTest)
	assert.EqualValues(t, 500, second.TotalPracticeTimeSeconds)

	list, err := store.Categories().ListCategoryProgress(ctx, sid)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestPoints_StreakTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sid := uniqueStudent()

	apply := func(today time.Time, points int64) *progress.UserPoints {
		up, err := store.Points().ApplyPointsDelta(ctx, progress.PointsDelta{
			StudentID: sid, Points: points, Today: today, Yesterday: today.AddDate(0, 0, -1), At: today,
		})
		require.NoError(t, err)
		return up
	}

	up := apply(day(2026, 10, 1), 100)
	assert.Equal(t, 1, up.CurrentStreak)

	up = apply(day(2026, 10, 1), 50)
	assert.Equal(t, 1, up.CurrentStreak)
	assert.EqualValues(t, 150, up.TotalPoints)

	up = apply(day(2026, 10, 2), 10)
	assert.Equal(t, 2, up.CurrentStreak)
	assert.Equal(t, 2, up.LongestStreak)

	up = apply(day(2026, 10, 5), 10)
	assert.Equal(t, 1, up.CurrentStreak)
	assert.Equal(t, 2, up.LongestStreak)
	require.NotNil(t, up.LastActivityDate)
	assert.Equal(t, day(2026, 10, 5), *up.LastActivityDate)

	_, err := store.Points().GetUserPoints(ctx, uniqueStudent())
	assert.ErrorIs(t, err, progress.ErrPointsNotFound)
}

func TestAchievements_GrantOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sid := uniqueStudent()

	created, err := store.Unlocks().Grant(ctx, sid, "perfect_score", time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Unlocks().Grant(ctx, sid, "perfect_score", time.Now())
	require.NoError(t, err)
	assert.False(t, created)

	unlocks, err := store.Unlocks().ListUnlocks(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, unlocks, 1)
}

func TestSessions_RecordFindAndDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sid := uniqueStudent()

	batch := practice.Batch{
		StudentID:       sid,
		ClientSessionID: "client-1",
		Category:        shared.CategoryID(4),
		Results:         []practice.Result{{QuestionID: 1, Correct: true, TimeSpentSeconds: 12}},
		SessionType:     practice.DefaultSessionType,
	}
	score := practice.Evaluate(batch, practice.DefaultScoringOptions())
	session := practice.NewSession(uuid.NewString(), batch, score, nil, time.Now().UTC(), time.UTC)

	require.NoError(t, store.Sessions().Record(ctx, session))

	found, err := store.Sessions().FindByClientSessionID(ctx, sid, "client-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, session.Results, found.Results)
	assert.Equal(t, session.Outcome(), found.Outcome())

	dup := practice.NewSession(uuid.NewString(), batch, score, nil, time.Now().UTC(), time.UTC)
	assert.ErrorIs(t, store.Sessions().Record(ctx, dup), shared.ErrDuplicateSession)

	_, err = store.Sessions().FindByClientSessionID(ctx, sid, "missing")
	assert.ErrorIs(t, err, practice.ErrSessionNotFound)
}

func TestWithinTx_RollsBackEveryStage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sid := uniqueStudent()
	today := day(2026, 10, 19)

	err := store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if _, err := repos.Points().ApplyPointsDelta(ctx, progress.PointsDelta{
			StudentID: sid, Points: 50, Today: today, Yesterday: today.AddDate(0, 0, -1), At: today,
		}); err != nil {
			return err
		}
		return shared.ErrStorageFailure
	})
	require.ErrorIs(t, err, shared.ErrStorageFailure)

	_, err = store.Points().GetUserPoints(ctx, sid)
	assert.ErrorIs(t, err, progress.ErrPointsNotFound)
}
