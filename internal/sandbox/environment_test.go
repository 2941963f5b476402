package sandbox

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestNewEnvironment_Inputs(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantInput bool
		want      []string
	}{
		{"empty", "", false, nil},
		{"single", "5", true, []string{"5"}},
		{"trimmed", " 1 ,2,  three ", true, []string{"1", "2", "three"}},
		{"empty segments kept", "a,,b", true, []string{"a", "", "b"}},
		{"whitespace only", "   ", true, []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvironment(tt.raw, nil)
			if env.HasInput() != tt.wantInput {
				t.Errorf("HasInput() = %v; want %v", env.HasInput(), tt.wantInput)
			}
			if got := env.Inputs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Inputs() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestNewEnvironment_DefaultAllowlist(t *testing.T) {
	env := NewEnvironment("", nil)
	if !reflect.DeepEqual(env.Allowed(), SafeBuiltins) {
		t.Errorf("Allowed() = %v; want %v", env.Allowed(), SafeBuiltins)
	}

	for _, name := range []string{"open", "eval", "exec", "__import__", "input", "compile", "getattr"} {
		for _, allowed := range SafeBuiltins {
			if allowed == name {
				t.Errorf("SafeBuiltins contains %q", name)
			}
		}
	}
}

func TestEnvironment_Request(t *testing.T) {
	t.Run("no input renders null", func(t *testing.T) {
		data, err := NewEnvironment("", []string{"print"}).Request("print(1)")
		if err != nil {
			t.Fatalf("Request() error = %v", err)
		}
		if !strings.Contains(string(data), `"inputs":null`) {
			t.Errorf("Request() = %s; want inputs null", data)
		}
	})

	t.Run("input values", func(t *testing.T) {
		data, err := NewEnvironment("1, 2", []string{"print"}).Request("x")
		if err != nil {
			t.Fatalf("Request() error = %v", err)
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if req.Code != "x" {
			t.Errorf("Code = %q; want %q", req.Code, "x")
		}
		if !reflect.DeepEqual(req.Inputs, []string{"1", "2"}) {
			t.Errorf("Inputs = %q; want [1 2]", req.Inputs)
		}
		if !reflect.DeepEqual(req.Allow, []string{"print"}) {
			t.Errorf("Allow = %v; want [print]", req.Allow)
		}
	})
}

func TestCommand(t *testing.T) {
	argv := Command("python3", "")
	if argv[0] != "python3" || argv[1] != "-I" || argv[2] != "-S" || argv[3] != "-c" {
		t.Errorf("Command() prefix = %v", argv[:4])
	}
	if len(argv) != 5 {
		t.Errorf("len(Command()) = %d; want 5", len(argv))
	}

	argv = Command("python3", "/sandbox/request.json")
	if argv[len(argv)-1] != "/sandbox/request.json" {
		t.Errorf("last arg = %q; want request path", argv[len(argv)-1])
	}
}
