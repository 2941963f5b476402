package tutor

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/felixgeelhaar/codedojo/internal/domain"
)

//go:embed prompt.tmpl
var promptText string

var promptTmpl = template.Must(template.New("tutor").Parse(promptText))

var experienceGuidance = map[domain.ExperienceLevel]string{
	domain.LevelBeginner: `**Beginner-Specific Guidance:**
- Focus on explaining basic programming concepts and syntax
- Break down complex problems into smaller, manageable steps
- Provide clear examples and analogies
- Explain common beginner mistakes and how to avoid them
- Use simple, non-technical language when possible
- Reinforce fundamental programming concepts`,
	domain.LevelIntermediate: `**Intermediate-Specific Guidance:**
- Focus on code structure and best practices
- Discuss optimization techniques and trade-offs
- Explain more advanced programming concepts
- Provide insights into algorithm design
- Encourage thinking about edge cases and error handling
- Discuss code maintainability and readability`,
	domain.LevelAdvanced: `**Advanced-Specific Guidance:**
- Focus on high-level design patterns and architecture
- Discuss performance optimization and scalability
- Explore advanced algorithms and data structures
- Encourage thinking about system design
- Discuss trade-offs between different approaches
- Provide insights into industry best practices`,
}

var problemTypeGuidance = map[domain.ProblemType]string{
	domain.ProblemTypePythonBasics: `**Lesson Context:** This is a Python basics lesson. Keep the discussion on basic concepts such as variables, loops, conditionals and built-in functions, and avoid algorithmic jargon.`,
	domain.ProblemTypeSet: `**Lesson Context:** This is an algorithmic practice problem. Steer the discussion towards problem decomposition, choice of data structures and complexity.`,
}

// ExperienceGuidance returns the guidance block for a level, or "" for an
// unknown level
func ExperienceGuidance(level domain.ExperienceLevel) string {
	return experienceGuidance[level]
}

// ProblemTypeGuidance returns the lesson context for a problem type, or ""
func ProblemTypeGuidance(t domain.ProblemType) string {
	return problemTypeGuidance[t]
}

type promptData struct {
	Level       string
	Background  string
	ProblemType string
	Question    string
	Code        string
	Terminal    string
	Guidance    string
}

// BuildPrompt renders the tutor prompt for a profile and request
func BuildPrompt(p *domain.Profile, problemType domain.ProblemType, req ChatRequest) (string, error) {
	level := p.ExperienceLevel
	if !level.IsValid() {
		level = domain.LevelBeginner
	}

	background := strings.TrimSpace(p.Description)
	if background == "" {
		background = "No description provided"
	}
	terminal := strings.TrimSpace(req.Terminal)
	if terminal == "" {
		terminal = "No output available"
	}

	data := promptData{
		Level:       capitalize(string(level)),
		Background:  background,
		ProblemType: ProblemTypeGuidance(problemType),
		Question:    strings.TrimSpace(req.Question),
		Code:        strings.TrimSpace(req.Code),
		Terminal:    terminal,
		Guidance:    ExperienceGuidance(level),
	}

	var b strings.Builder
	if err := promptTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
