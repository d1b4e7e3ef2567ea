package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
)

// stubExecutor scripts per-test outcomes by name.
type stubExecutor struct {
	// failures maps test names to how many times they fail before passing;
	// -1 means always fail
	failures map[string]int
	// configErr marks test names whose failures are configuration errors
	configErr map[string]bool

	// calls counts Execute invocations per test name
	calls map[string]int
}

func newStub() *stubExecutor {
	return &stubExecutor{
		failures:  map[string]int{},
		configErr: map[string]bool{},
		calls:     map[string]int{},
	}
}

func (s *stubExecutor) Execute(_ context.Context, def *spec.TestDefinition, _ *vars.Store) error {
	s.calls[def.Name]++
	remaining := s.failures[def.Name]
	if remaining == 0 {
		return nil
	}
	if remaining > 0 {
		s.failures[def.Name] = remaining - 1
	}
	if s.configErr[def.Name] {
		return fmt.Errorf("test %q: %w", def.Name, spec.ErrConfiguration)
	}
	return fmt.Errorf("test %q failed", def.Name)
}

func commandTest(name string, retries int) spec.TestDefinition {
	return spec.TestDefinition{
		Name:    name,
		Command: &spec.CommandTest{Command: "true"},
		Retries: retries,
	}
}

func fastRunner(exec Executor) *Runner {
	r := New(exec, nil)
	r.pause = time.Millisecond
	return r
}

func TestRun_AllPass(t *testing.T) {
	stub := newStub()
	tests := []spec.TestDefinition{
		commandTest("one", 0),
		commandTest("two", 0),
		commandTest("three", 0),
	}

	result := fastRunner(stub).Run(context.Background(), tests, vars.NewStore())

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.True(t, result.Success())
	for _, outcome := range result.Outcomes {
		assert.True(t, outcome.Passed)
		assert.Equal(t, 1, outcome.Attempts)
	}
}

func TestRun_FailFast(t *testing.T) {
	stub := newStub()
	stub.failures["second"] = -1
	tests := []spec.TestDefinition{
		commandTest("first", 0),
		commandTest("second", 0),
		commandTest("third", 0),
		commandTest("fourth", 0),
	}

	result := fastRunner(stub).Run(context.Background(), tests, vars.NewStore())

	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Skipped)
	assert.False(t, result.Success())

	require.Len(t, result.Outcomes, 4)
	assert.True(t, result.Outcomes[0].Passed)
	assert.False(t, result.Outcomes[1].Passed)
	assert.Contains(t, result.Outcomes[1].Error, "second")

	// Skipped tests are never attempted.
	for _, outcome := range result.Outcomes[2:] {
		assert.True(t, outcome.Skipped)
		assert.Equal(t, 0, outcome.Attempts)
	}
	assert.Zero(t, stub.calls["third"])
	assert.Zero(t, stub.calls["fourth"])
}

func TestRun_RetryAccounting(t *testing.T) {
	t.Run("always failing uses the whole budget", func(t *testing.T) {
		stub := newStub()
		stub.failures["flaky"] = -1
		tests := []spec.TestDefinition{commandTest("flaky", 2)}

		result := fastRunner(stub).Run(context.Background(), tests, vars.NewStore())

		require.Len(t, result.Outcomes, 1)
		assert.False(t, result.Outcomes[0].Passed)
		// 2 retries allow 3 attempts in total.
		assert.Equal(t, 3, result.Outcomes[0].Attempts)
		assert.Equal(t, 3, stub.calls["flaky"])
	})

	t.Run("recovering mid-budget stops retrying", func(t *testing.T) {
		stub := newStub()
		stub.failures["flaky"] = 1
		tests := []spec.TestDefinition{commandTest("flaky", 3)}

		result := fastRunner(stub).Run(context.Background(), tests, vars.NewStore())

		require.Len(t, result.Outcomes, 1)
		assert.True(t, result.Outcomes[0].Passed)
		assert.Equal(t, 2, result.Outcomes[0].Attempts)
	})

	t.Run("first-try success records one attempt", func(t *testing.T) {
		stub := newStub()
		tests := []spec.TestDefinition{commandTest("stable", 5)}

		result := fastRunner(stub).Run(context.Background(), tests, vars.NewStore())
		assert.Equal(t, 1, result.Outcomes[0].Attempts)
	})
}

func TestRun_ConfigErrorsAreNeverRetried(t *testing.T) {
	stub := newStub()
	stub.failures["broken"] = -1
	stub.configErr["broken"] = true
	tests := []spec.TestDefinition{commandTest("broken", 5)}

	result := fastRunner(stub).Run(context.Background(), tests, vars.NewStore())

	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].Passed)
	assert.Equal(t, 1, result.Outcomes[0].Attempts)
	assert.Equal(t, 1, stub.calls["broken"])
}

func TestRun_EmptyBatch(t *testing.T) {
	result := fastRunner(newStub()).Run(context.Background(), nil, vars.NewStore())
	assert.Equal(t, 0, result.Total)
	assert.True(t, result.Success())
}

func TestConsoleReporter_SavesJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	reporter := NewConsoleReporter(false, path)

	stub := newStub()
	stub.failures["bad"] = -1
	tests := []spec.TestDefinition{
		commandTest("good", 0),
		commandTest("bad", 0),
		commandTest("after", 0),
	}

	r := New(stub, reporter)
	r.pause = time.Millisecond
	r.Run(context.Background(), tests, vars.NewStore())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var saved RunResult
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, 3, saved.Total)
	assert.Equal(t, 1, saved.Passed)
	assert.Equal(t, 1, saved.Failed)
	assert.Equal(t, 1, saved.Skipped)
	require.Len(t, saved.Outcomes, 3)
	assert.Equal(t, "good", saved.Outcomes[0].Name)
	assert.True(t, saved.Outcomes[2].Skipped)
}
