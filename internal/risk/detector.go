// Package risk screens submitted Python for constructs that the sandbox
// will reject or that commonly hang. Findings are advisory.
package risk

import (
	"regexp"
	"strings"
)

// Category groups notices
type Category string

const (
	CategorySandbox     Category = "sandbox"
	CategoryReliability Category = "reliability"
	CategoryQuality     Category = "quality"
)

// Severity ranks notices
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Notice is a single finding
type Notice struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Line        int      `json:"line"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// Pattern represents a risk detection pattern
type Pattern struct {
	ID          string
	Category    Category
	Severity    Severity
	Title       string
	Description string
	Suggestion  string
	Regex       *regexp.Regexp
	// Unless suppresses the pattern when it matches anywhere in the code
	Unless *regexp.Regexp
}

// Detector analyzes code for risky patterns
type Detector struct {
	patterns []Pattern
}

// NewDetector creates a new risk detector with default patterns
func NewDetector() *Detector {
	return &Detector{
		patterns: defaultPatterns(),
	}
}

// Analyze scans a submission line by line. Comment text and the contents
// of string literals on a line are ignored.
func (d *Detector) Analyze(code string) []Notice {
	var notices []Notice
	lines := strings.Split(code, "\n")
	stripped := make([]string, len(lines))
	for i, line := range lines {
		stripped[i] = stripLine(line)
	}
	body := strings.Join(stripped, "\n")

	for _, pattern := range d.patterns {
		if pattern.Unless != nil && pattern.Unless.MatchString(body) {
			continue
		}
		for lineNum, line := range stripped {
			if pattern.Regex.MatchString(line) {
				notices = append(notices, Notice{
					ID:          pattern.ID,
					Category:    pattern.Category,
					Severity:    pattern.Severity,
					Title:       pattern.Title,
					Description: pattern.Description,
					Line:        lineNum + 1,
					Suggestion:  pattern.Suggestion,
				})
			}
		}
	}

	return notices
}

// HasSeverity reports whether any notice is at least sev
func HasSeverity(notices []Notice, sev Severity) bool {
	rank := map[Severity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3}
	for _, n := range notices {
		if rank[n.Severity] >= rank[sev] {
			return true
		}
	}
	return false
}

// stripLine blanks string literal contents and drops a trailing comment.
// Triple-quoted strings spanning lines are not tracked.
func stripLine(line string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
				b.WriteByte(c)
			}
		case c == '#':
			return b.String()
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func defaultPatterns() []Pattern {
	return []Pattern{
		{
			ID:          "PY001",
			Category:    CategorySandbox,
			Severity:    SeverityHigh,
			Title:       "Import statement",
			Description: "Modules cannot be imported in the practice sandbox.",
			Suggestion:  "Solve the problem with the built-in functions only.",
			Regex:       regexp.MustCompile(`^\s*(import\s+\w|from\s+[\w.]+\s+import\b)`),
		},
		{
			ID:          "PY002",
			Category:    CategorySandbox,
			Severity:    SeverityHigh,
			Title:       "Dunder attribute access",
			Description: "Reaching into interpreter internals through double-underscore attributes is not allowed.",
			Suggestion:  "Use ordinary attributes and built-in functions.",
			Regex:       regexp.MustCompile(`\.__(class|bases|base|mro|subclasses|globals|builtins|dict|code|closure|self|func|getattribute|import|loader|spec)__\b|\b__builtins__\b|\b__import__\b`),
		},
		{
			ID:          "PY003",
			Category:    CategorySandbox,
			Severity:    SeverityMedium,
			Title:       "Dynamic code or file access",
			Description: "exec, eval, compile, open and similar functions are not available in the sandbox.",
			Suggestion:  "Write the logic directly instead of generating or loading code.",
			Regex:       regexp.MustCompile(`\b(exec|eval|compile|open|getattr|setattr|globals|locals|vars|breakpoint)\s*\(`),
		},
		{
			ID:          "PY004",
			Category:    CategoryReliability,
			Severity:    SeverityMedium,
			Title:       "Unbounded loop",
			Description: "A while True loop with no break or return never finishes and will hit the time limit.",
			Suggestion:  "Add an exit condition or a break statement.",
			Regex:       regexp.MustCompile(`^\s*while\s+(True|1)\s*:`),
			Unless:      regexp.MustCompile(`\b(break|return|raise)\b`),
		},
		{
			ID:          "PY005",
			Category:    CategoryQuality,
			Severity:    SeverityLow,
			Title:       "Bare except clause",
			Description: "Catching all exceptions hides bugs and makes debugging difficult.",
			Suggestion:  "Catch specific exceptions instead of using bare 'except:'.",
			Regex:       regexp.MustCompile(`^\s*except\s*:`),
		},
	}
}
