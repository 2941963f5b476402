package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Difficulty grades a problem
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid checks if the difficulty is one of the known grades
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// ProblemType groups problems into the two banks the catalog exposes
type ProblemType string

const (
	ProblemTypeSet          ProblemType = "problem_set"
	ProblemTypePythonBasics ProblemType = "python_basics"
)

// Problem is a gradable exercise. It is read-only while grading.
type Problem struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Type        ProblemType `json:"problem_type"`
	Language    string      `json:"language"`
	Difficulty  Difficulty  `json:"difficulty"`
	Description string      `json:"description"`
	TestCases   TestCases   `json:"test_cases"`
	Boilerplate string      `json:"boilerplate_code"`
	Category    string      `json:"category,omitempty"`
	Order       int         `json:"order"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ProblemSummary is the listing view of a problem
type ProblemSummary struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Language   string     `json:"language"`
	Difficulty Difficulty `json:"difficulty"`
}

// Summary returns the listing view of the problem
func (p *Problem) Summary() ProblemSummary {
	return ProblemSummary{
		ID:         p.ID,
		Name:       p.Name,
		Language:   p.Language,
		Difficulty: p.Difficulty,
	}
}

// TestCase is a named input/expected-output pair.
// Input is a comma-delimited list of values served to input().
type TestCase struct {
	Name   string
	Input  string
	Output string
}

// TestCases is an ordered mapping of test name to case. It encodes as a JSON
// object whose key order is the grading order.
type TestCases []TestCase

type testCaseBody struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// MarshalJSON writes the cases as a JSON object, preserving order
func (tc TestCases) MarshalJSON() ([]byte, error) {
	if tc == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range tc {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(testCaseBody{Input: c.Input, Output: c.Output})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of cases, keeping document order
func (tc *TestCases) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read test cases: %w", err)
	}
	if tok == nil {
		*tc = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("test cases must be a JSON object, got %v", tok)
	}

	cases := TestCases{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read test case name: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("test case name must be a string, got %v", keyTok)
		}

		var body testCaseBody
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("decode test case %q: %w", name, err)
		}
		cases = append(cases, TestCase{Name: name, Input: body.Input, Output: body.Output})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read test cases end: %w", err)
	}

	*tc = cases
	return nil
}
