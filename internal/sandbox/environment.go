package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SafeBuiltins is the default set of builtin names visible to submitted code.
// Everything else, including __import__, open and eval, is unresolvable.
var SafeBuiltins = []string{
	"print", "len", "range", "int", "float", "str", "bool",
	"list", "dict", "tuple", "set", "enumerate",
	"sum", "min", "max", "sorted", "abs", "all", "any", "round",
}

// Environment describes the restricted namespace one execution runs in.
// A fresh Environment is built for every execution.
type Environment struct {
	allow    []string
	inputs   []string
	hasInput bool
}

// NewEnvironment builds an environment from a raw comma-delimited input
// string. An empty input leaves input() unbound so that calling it raises
// NameError. A nil allow list selects SafeBuiltins.
func NewEnvironment(rawInput string, allow []string) *Environment {
	if allow == nil {
		allow = SafeBuiltins
	}
	env := &Environment{allow: append([]string(nil), allow...)}

	if rawInput == "" {
		return env
	}

	parts := strings.Split(rawInput, ",")
	env.inputs = make([]string, len(parts))
	for i, p := range parts {
		env.inputs[i] = strings.TrimSpace(p)
	}
	env.hasInput = true
	return env
}

// HasInput reports whether input() is bound
func (e *Environment) HasInput() bool {
	return e.hasInput
}

// Inputs returns the queued values served by input(), in order
func (e *Environment) Inputs() []string {
	return append([]string(nil), e.inputs...)
}

// Allowed returns the builtin names exposed to the program
func (e *Environment) Allowed() []string {
	return append([]string(nil), e.allow...)
}

// Request is the document the harness reads before executing code.
// Inputs is null when input() must stay unbound.
type Request struct {
	Code   string   `json:"code"`
	Inputs []string `json:"inputs"`
	Allow  []string `json:"allow"`
}

// Request renders the harness request for code
func (e *Environment) Request(code string) ([]byte, error) {
	req := Request{Code: code, Allow: e.allow}
	if e.hasInput {
		req.Inputs = e.inputs
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode harness request: %w", err)
	}
	return data, nil
}
