package execx

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Script produces the outcome for one scripted invocation based on the full
// argv (command name first). Behavior can branch on subcommands the same way
// real tools like git and gcloud do.
type Script func(argv []string) (Result, error)

// ScriptedRunner is a Runner for tests. Each command name maps to a Script;
// every invocation is recorded for later assertions.
type ScriptedRunner struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   [][]string
}

// NewScriptedRunner returns an empty scripted runner. Invoking a command with
// no registered script fails the call.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{scripts: map[string]Script{}}
}

// On registers the script for a command name, replacing any previous one.
func (r *ScriptedRunner) On(name string, script Script) *ScriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[name] = script
	return r
}

// OnOutput registers a fixed successful response for a command name.
func (r *ScriptedRunner) OnOutput(name, stdout string) *ScriptedRunner {
	return r.On(name, func([]string) (Result, error) {
		return Result{Stdout: []byte(stdout)}, nil
	})
}

func (r *ScriptedRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	r.mu.Lock()
	script, ok := r.scripts[name]
	argv := append([]string{name}, args...)
	r.calls = append(r.calls, argv)
	r.mu.Unlock()

	if !ok {
		return Result{}, fmt.Errorf("no script registered for command %q", name)
	}
	return script(argv)
}

// Calls returns every recorded invocation in order.
func (r *ScriptedRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// CalledWith reports whether any recorded invocation starts with the given
// argv prefix.
func (r *ScriptedRunner) CalledWith(prefix ...string) bool {
	for _, call := range r.Calls() {
		if len(call) < len(prefix) {
			continue
		}
		if strings.Join(call[:len(prefix)], "\x00") == strings.Join(prefix, "\x00") {
			return true
		}
	}
	return false
}
