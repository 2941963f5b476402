package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

func sampleProblem(name string, order int) *domain.Problem {
	return &domain.Problem{
		Name:        name,
		Type:        domain.ProblemTypeSet,
		Language:    "python",
		Difficulty:  domain.DifficultyEasy,
		Description: "# " + name,
		TestCases: domain.TestCases{
			{Name: "test_b", Input: "2", Output: "4"},
			{Name: "test_a", Input: "3", Output: "9"},
		},
		Boilerplate: "def solve():\n    pass\n",
		Order:       order,
	}
}

func TestProblemStore_Upsert_Get(t *testing.T) {
	db := openTestDB(t)
	store := NewProblemStore(db)
	ctx := context.Background()

	p := sampleProblem("Squares", 1)
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if p.ID == 0 {
		t.Fatal("Upsert() did not set ID")
	}

	loaded, err := store.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Name != "Squares" || loaded.Difficulty != domain.DifficultyEasy {
		t.Errorf("Get() = %+v", loaded)
	}
	if len(loaded.TestCases) != 2 || loaded.TestCases[0].Name != "test_b" {
		t.Errorf("TestCases = %+v; want original order", loaded.TestCases)
	}

	// Same name updates in place
	p2 := sampleProblem("Squares", 5)
	p2.Difficulty = domain.DifficultyHard
	if err := store.Upsert(ctx, p2); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}
	if p2.ID != p.ID {
		t.Errorf("Upsert() ID = %d; want %d", p2.ID, p.ID)
	}
	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("Count() = %d; want 1", n)
	}
}

func TestProblemStore_Get_NotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewProblemStore(db)

	_, err := store.Get(context.Background(), 404)
	if !errors.Is(err, domain.ErrProblemNotFound) {
		t.Errorf("Get() error = %v; want ErrProblemNotFound", err)
	}
}

func TestProblemStore_List(t *testing.T) {
	db := openTestDB(t)
	store := NewProblemStore(db)
	ctx := context.Background()

	basics := sampleProblem("Variables", 1)
	basics.Type = domain.ProblemTypePythonBasics
	for _, p := range []*domain.Problem{sampleProblem("Third", 3), sampleProblem("First", 0), basics} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"First", "Variables", "Third"}
	if len(all) != len(want) {
		t.Fatalf("List() len = %d; want %d", len(all), len(want))
	}
	for i, name := range want {
		if all[i].Name != name {
			t.Errorf("List()[%d] = %q; want %q", i, all[i].Name, name)
		}
	}

	filtered, err := store.List(ctx, domain.ProblemTypePythonBasics)
	if err != nil {
		t.Fatalf("List(python_basics) error = %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "Variables" {
		t.Errorf("List(python_basics) = %v", filtered)
	}
}
