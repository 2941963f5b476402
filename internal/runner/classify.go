package runner

import "strings"

var syntaxExceptions = map[string]bool{
	"SyntaxError":      true,
	"IndentationError": true,
	"TabError":         true,
}

// Classify derives the failure category and exception name from a Python
// trace. The exception is read from the last "Name: message" line.
func Classify(trace string) (Category, string) {
	if strings.HasPrefix(trace, "Code execution timed out after") {
		return CategoryTimeout, ""
	}

	exception := exceptionName(lastLine(trace))
	if syntaxExceptions[exception] {
		return CategorySyntax, exception
	}
	return CategoryRuntime, exception
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func exceptionName(line string) string {
	name := line
	if idx := strings.Index(line, ":"); idx >= 0 {
		name = line[:idx]
	}
	if name == "" || !isQualifiedIdent(name) {
		return ""
	}
	// Strip module qualification, e.g. "json.decoder.JSONDecodeError"
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

func isQualifiedIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9', r == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
