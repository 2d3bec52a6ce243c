// Package environ holds an insertion-ordered set of environment variables.
//
// Order matters because recorded build scripts export variables in the order
// they were set, and two resolutions of the same toolchain must produce the
// same script text.
package environ

import (
	"bufio"
	"os"
	"sort"
	"strings"
)

// Var is a single KEY=VALUE pair.
type Var struct {
	Key   string
	Value string
}

// Env is an ordered KEY=VALUE mapping. The zero value is empty and ready to use.
// Setting an existing key replaces its value in place.
type Env struct {
	vars []Var
}

// New builds an Env from alternating key, value arguments.
func New(kv ...string) Env {
	var e Env
	for i := 0; i+1 < len(kv); i += 2 {
		e.Set(kv[i], kv[i+1])
	}
	return e
}

// FromMap builds an Env from a map, ordering keys lexically.
func FromMap(m map[string]string) Env {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var e Env
	for _, k := range keys {
		e.Set(k, m[k])
	}
	return e
}

// Set assigns key to value.
func (e *Env) Set(key, value string) {
	for i := range e.vars {
		if e.vars[i].Key == key {
			e.vars[i].Value = value
			return
		}
	}
	e.vars = append(e.vars, Var{Key: key, Value: value})
}

// Get returns the value for key.
func (e Env) Get(key string) (string, bool) {
	for _, v := range e.vars {
		if v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}

// Len reports the number of variables.
func (e Env) Len() int { return len(e.vars) }

// Vars returns a copy of the variables in order.
func (e Env) Vars() []Var {
	out := make([]Var, len(e.vars))
	copy(out, e.vars)
	return out
}

// Clone returns an independent copy.
func (e Env) Clone() Env {
	return Env{vars: e.Vars()}
}

// Merge returns a new Env holding e overlaid with other. Keys from other
// replace values from e; new keys are appended in other's order.
func (e Env) Merge(other Env) Env {
	out := e.Clone()
	for _, v := range other.vars {
		out.Set(v.Key, v.Value)
	}
	return out
}

// Equal reports whether both envs hold the same pairs in the same order.
func (e Env) Equal(other Env) bool {
	if len(e.vars) != len(other.vars) {
		return false
	}
	for i := range e.vars {
		if e.vars[i] != other.vars[i] {
			return false
		}
	}
	return true
}

// Overlay returns base (KEY=VALUE strings, as from os.Environ) with e applied
// on top. Keys present in e replace the base entry.
func (e Env) Overlay(base []string) []string {
	out := make([]string, 0, len(base)+len(e.vars))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := e.Get(key); ok {
			continue
		}
		out = append(out, kv)
	}
	for _, v := range e.vars {
		out = append(out, v.Key+"="+v.Value)
	}
	return out
}

// Environ returns the current process environment with e applied on top.
func (e Env) Environ() []string {
	return e.Overlay(os.Environ())
}

// Parse reads `env` style output, one KEY=VALUE per line, and keeps the
// variables for which keep returns true. Lines without '=' are skipped.
func Parse(output string, keep func(key string) bool) Env {
	var e Env
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok || key == "" {
			continue
		}
		if keep != nil && !keep(key) {
			continue
		}
		e.Set(key, value)
	}
	return e
}
