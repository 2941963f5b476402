package sqlite

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/progress"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seedProblems(t *testing.T, db *DB, n int) []int64 {
	t.Helper()
	store := NewProblemStore(db)
	ids := make([]int64, n)
	for i := range ids {
		p := sampleProblem(string(rune('A'+i)), i)
		if err := store.Upsert(context.Background(), p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		ids[i] = p.ID
	}
	return ids
}

func TestProgressStore_RecordLifecycle(t *testing.T) {
	db := openTestDB(t)
	ids := seedProblems(t, db, 2)
	store := NewProgressStore(db)
	clock := &fixedClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	u := progress.NewUpdater(store, progress.WithClock(clock))
	ctx := context.Background()

	// Failing attempt
	d, err := u.Record(ctx, progress.Outcome{UserID: "u1", ProblemID: ids[0], Code: "x", Language: "python", TimeSpent: 20})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if d.SubmissionID == 0 || d.Progress.Attempts != 1 || d.Progress.IsCompleted {
		t.Errorf("first Record() = %+v", d)
	}

	// First solve
	d, err = u.Record(ctx, progress.Outcome{UserID: "u1", ProblemID: ids[0], Code: "y", Language: "python", Passed: true, Results: []byte(`[]`)})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if d.TotalSolved != 1 || d.Streak != 1 || d.Progress.Attempts != 2 || d.Progress.TimeSpent != 20 {
		t.Errorf("solve Record() = %+v", d)
	}

	// Re-solve next day: total unchanged, streak grows
	clock.Advance(24 * time.Hour)
	d, err = u.Record(ctx, progress.Outcome{UserID: "u1", ProblemID: ids[0], Code: "y", Language: "python", Passed: true})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if d.TotalSolved != 1 || d.Streak != 2 || d.HighScoreStreak != 2 {
		t.Errorf("re-solve Record() = %+v", d)
	}

	// Second problem two days later resets the streak
	clock.Advance(48 * time.Hour)
	d, err = u.Record(ctx, progress.Outcome{UserID: "u1", ProblemID: ids[1], Code: "z", Language: "python", Passed: true})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if d.TotalSolved != 2 || d.Streak != 1 || d.HighScoreStreak != 2 {
		t.Errorf("second problem Record() = %+v", d)
	}

	// Reads
	entry, err := store.LeaderboardEntry(ctx, "u1")
	if err != nil || entry.TotalSolved != 2 {
		t.Errorf("LeaderboardEntry() = %+v, %v", entry, err)
	}
	prof, err := store.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if prof.LastSolvedDate == nil || prof.LastSolvedDate.Day() != 13 {
		t.Errorf("LastSolvedDate = %v; want 2024-03-13", prof.LastSolvedDate)
	}

	subs, err := NewSubmissionStore(db).List(ctx, "u1", ids[0], 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("List() len = %d; want 3", len(subs))
	}
	if subs[0].Status != domain.SubmissionCompleted || subs[2].Status != domain.SubmissionAttempted {
		t.Errorf("statuses = %q..%q; want newest completed, oldest attempted", subs[0].Status, subs[2].Status)
	}
}

func TestProgressStore_TopLeaderboard(t *testing.T) {
	db := openTestDB(t)
	ids := seedProblems(t, db, 3)
	store := NewProgressStore(db)
	u := progress.NewUpdater(store)
	ctx := context.Background()

	solves := map[string]int{"ada": 3, "bob": 1, "cy": 2}
	for user, n := range solves {
		for i := 0; i < n; i++ {
			if _, err := u.Record(ctx, progress.Outcome{UserID: user, ProblemID: ids[i], Passed: true}); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
		}
	}

	entries, err := store.TopLeaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("TopLeaderboard() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d; want 2", len(entries))
	}
	if entries[0].UserID != "ada" || entries[1].UserID != "cy" {
		t.Errorf("order = %s, %s; want ada, cy", entries[0].UserID, entries[1].UserID)
	}
	if entries[0].Username != "ada" {
		t.Errorf("Username = %q; want ada", entries[0].Username)
	}
}

func TestProgressStore_ConcurrentSolves(t *testing.T) {
	db := openTestDB(t)
	ids := seedProblems(t, db, 1)
	store := NewProgressStore(db)
	u := progress.NewUpdater(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := u.Record(ctx, progress.Outcome{UserID: "u1", ProblemID: ids[0], Passed: true}); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}()
	}
	wg.Wait()

	entry, err := store.LeaderboardEntry(ctx, "u1")
	if err != nil {
		t.Fatalf("LeaderboardEntry() error = %v", err)
	}
	if entry.TotalSolved != 1 {
		t.Errorf("TotalSolved = %d; want 1", entry.TotalSolved)
	}
	p, err := store.GetProgress(ctx, "u1", ids[0])
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if p.Attempts != 8 {
		t.Errorf("Attempts = %d; want 8", p.Attempts)
	}
}

func TestProgressStore_RollsBackOnFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_progress WHERE user_id = ? AND problem_id = ?")).
		WithArgs("u1", int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "problem_id", "attempts", "time_spent", "is_completed", "last_submitted"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	u := progress.NewUpdater(NewProgressStore(Wrap(sqlDB)))
	_, err = u.Record(context.Background(), progress.Outcome{UserID: "u1", ProblemID: 9, Code: "print(1)", Passed: true})
	if err == nil {
		t.Fatal("Record() expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProgressStore_CommitFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	store := NewProgressStore(Wrap(sqlDB))
	err = store.WithTx(context.Background(), func(tx progress.Tx) error { return nil })
	if err == nil {
		t.Fatal("WithTx() expected commit error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
