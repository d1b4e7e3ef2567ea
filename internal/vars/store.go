// Package vars implements the cross-step variable store and $VAR
// interpolation. The store is an explicit object passed by reference
// through the orchestrator to each step, so tests can inject and reset it
// instead of depending on ambient process state.
package vars

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"kubecheck/pkg/logging"
)

// Store holds named string values extracted by earlier test steps.
// Writes are last-write-wins per name. Execution is strictly sequential,
// but the mutex keeps the store safe for callers that read snapshots
// while a step runs.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStore creates an empty variable store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Set publishes a value under the given name, overwriting any prior value.
func (s *Store) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	logging.Debug("Vars", "set %s=%q", name, value)
}

// Get looks up a variable. The lookup prefers an exact match and falls
// back to a case-insensitive one, matching the interpolation syntax.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[name]; ok {
		return v, true
	}
	for k, v := range s.values {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Clear removes all values.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}

// Environ returns the process environment extended with the store's
// current values. Each command execution takes its own snapshot at call
// time; exports made inside the spawned shell never propagate back.
func (s *Store) Environ() []string {
	env := os.Environ()
	for k, v := range s.Snapshot() {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// varRef matches $NAME and ${NAME} references.
var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Interpolate resolves $NAME and ${NAME} references from the store.
// Unresolved references are left verbatim with a warning.
func (s *Store) Interpolate(in string) string {
	return varRef.ReplaceAllStringFunc(in, func(ref string) string {
		name := strings.TrimPrefix(ref, "$")
		name = strings.TrimPrefix(strings.TrimSuffix(name, "}"), "{")
		if v, ok := s.Get(name); ok {
			return v
		}
		logging.Warn("Vars", "unresolved variable reference %s", ref)
		return ref
	})
}

// InterpolateMap resolves references in every value of the mapping,
// returning a new map. Keys are not interpolated.
func (s *Store) InterpolateMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = s.Interpolate(v)
	}
	return out
}
