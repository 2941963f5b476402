package problem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"gopkg.in/yaml.v3"
)

// BankFile represents the YAML structure of a problem bank (bank.yaml)
type BankFile struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Language    string   `yaml:"language"`
	ProblemType string   `yaml:"problem_type"`
	Category    string   `yaml:"category"`
	Problems    []string `yaml:"problems"`
}

// ProblemFile represents the YAML structure of a single problem
type ProblemFile struct {
	Name        string    `yaml:"name"`
	ProblemType string    `yaml:"problem_type"`
	Language    string    `yaml:"language"`
	Difficulty  string    `yaml:"difficulty"`
	Category    string    `yaml:"category"`
	Order       *int      `yaml:"order"`
	Description string    `yaml:"description"`
	Boilerplate string    `yaml:"boilerplate"`
	TestCases   yaml.Node `yaml:"test_cases"`
}

// Loader reads problem banks from YAML files. Each bank is a directory
// holding bank.yaml and one YAML file per problem.
type Loader struct {
	basePath string
}

// NewLoader creates a new problem loader
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// BasePath returns the directory banks are read from
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadBank loads every problem listed in a bank, in listed order. Problems
// without an explicit order take their position in the list.
func (l *Loader) LoadBank(bankID string) ([]*domain.Problem, error) {
	bankDir := filepath.Join(l.basePath, bankID)

	data, err := os.ReadFile(filepath.Join(bankDir, "bank.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read bank file: %w", err)
	}

	var bank BankFile
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parse bank file: %w", err)
	}

	problems := make([]*domain.Problem, 0, len(bank.Problems))
	for i, slug := range bank.Problems {
		p, err := l.LoadProblem(filepath.Join(bankDir, slug+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("load problem %s/%s: %w", bankID, slug, err)
		}
		if p.Language == "" {
			p.Language = bank.Language
		}
		if p.Type == "" {
			p.Type = domain.ProblemType(bank.ProblemType)
		}
		if p.Category == "" {
			p.Category = bank.Category
		}
		if p.Order == 0 {
			p.Order = i + 1
		}
		problems = append(problems, p)
	}
	return problems, nil
}

// LoadProblem loads a single problem file
func (l *Loader) LoadProblem(path string) (*domain.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem file: %w", err)
	}
	return ParseProblem(data)
}

// ParseProblem decodes a problem document and validates it
func ParseProblem(data []byte) (*domain.Problem, error) {
	var pf ProblemFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse problem file: %w", err)
	}

	if pf.Name == "" {
		return nil, errors.New("problem name is required")
	}
	diff := domain.Difficulty(pf.Difficulty)
	if !diff.IsValid() {
		return nil, fmt.Errorf("problem %q: invalid difficulty %q", pf.Name, pf.Difficulty)
	}

	cases, err := decodeTestCases(&pf.TestCases)
	if err != nil {
		return nil, fmt.Errorf("problem %q: %w", pf.Name, err)
	}

	p := &domain.Problem{
		Name:        pf.Name,
		Type:        domain.ProblemType(pf.ProblemType),
		Language:    pf.Language,
		Difficulty:  diff,
		Description: pf.Description,
		TestCases:   cases,
		Boilerplate: pf.Boilerplate,
		Category:    pf.Category,
	}
	if pf.Order != nil {
		p.Order = *pf.Order
	}
	return p, nil
}

// decodeTestCases walks the mapping node so that document order becomes
// grading order.
func decodeTestCases(n *yaml.Node) (domain.TestCases, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("test_cases must be a mapping (line %d)", n.Line)
	}

	cases := make(domain.TestCases, 0, len(n.Content)/2)
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if seen[key.Value] {
			return nil, fmt.Errorf("duplicate test case %q (line %d)", key.Value, key.Line)
		}
		seen[key.Value] = true

		var body struct {
			Input  string `yaml:"input"`
			Output string `yaml:"output"`
		}
		if err := val.Decode(&body); err != nil {
			return nil, fmt.Errorf("test case %q: %w", key.Value, err)
		}
		cases = append(cases, domain.TestCase{Name: key.Value, Input: body.Input, Output: body.Output})
	}
	return cases, nil
}

// LoadAll loads every bank directory under the base path
func (l *Loader) LoadAll() ([]*domain.Problem, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("read problems directory: %w", err)
	}

	var problems []*domain.Problem
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		bankPath := filepath.Join(l.basePath, entry.Name(), "bank.yaml")
		if _, err := os.Stat(bankPath); os.IsNotExist(err) {
			continue
		}

		bank, err := l.LoadBank(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("load bank %s: %w", entry.Name(), err)
		}
		problems = append(problems, bank...)
	}
	return problems, nil
}
