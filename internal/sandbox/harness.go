package sandbox

import _ "embed"

// Harness is the Python bootstrap that strips the builtin table down to the
// allowlist and executes the submission. It reads a Request document from the
// path given as its first argument, or from stdin.
//
//go:embed harness.py
var Harness string

// Interpreter flags: isolated mode, no site module.
var InterpreterFlags = []string{"-I", "-S"}

// Command returns the argv that runs the harness with interpreter.
// requestPath may be empty to read the request from stdin.
func Command(interpreter, requestPath string) []string {
	argv := append([]string{interpreter}, InterpreterFlags...)
	argv = append(argv, "-c", Harness)
	if requestPath != "" {
		argv = append(argv, requestPath)
	}
	return argv
}
