package executor

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"kubecheck/internal/kube"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
)

// fakeKube is a scriptable kube.Interface for transport and poller tests.
type fakeKube struct {
	// getFunc backs Get; called once per polling iteration
	getFunc func(sel spec.Selector) (*unstructured.Unstructured, error)
	// execResult is returned by Exec
	execResult *ExecCall
	// debugOutput is returned by Debug
	debugOutput string
	// debugErr is returned by Debug
	debugErr error

	// getCalls counts Get invocations
	getCalls int
	// lastExec records the most recent Exec options
	lastExec *kube.ExecOptions
	// lastDebug records the most recent Debug options
	lastDebug *kube.DebugOptions
}

// ExecCall is the scripted outcome of an Exec invocation.
type ExecCall struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (f *fakeKube) Get(_ context.Context, sel spec.Selector) (*unstructured.Unstructured, error) {
	f.getCalls++
	if f.getFunc == nil {
		return nil, fmt.Errorf("no resource scripted")
	}
	return f.getFunc(sel)
}

func (f *fakeKube) ResolvePodName(_ context.Context, sel spec.Selector) (string, error) {
	if sel.Metadata.Name != "" {
		return sel.Metadata.Name, nil
	}
	return "resolved-pod", nil
}

func (f *fakeKube) ForwardTarget(_ context.Context, sel spec.Selector) (string, error) {
	return "pod/" + sel.Metadata.Name, nil
}

func (f *fakeKube) Exec(_ context.Context, opts kube.ExecOptions) (*kube.ExecResult, error) {
	f.lastExec = &opts
	if f.execResult == nil {
		return &kube.ExecResult{}, nil
	}
	if f.execResult.Err != nil {
		return nil, f.execResult.Err
	}
	return &kube.ExecResult{
		Stdout:   f.execResult.Stdout,
		Stderr:   f.execResult.Stderr,
		ExitCode: f.execResult.ExitCode,
	}, nil
}

func (f *fakeKube) Debug(_ context.Context, opts kube.DebugOptions) (string, error) {
	f.lastDebug = &opts
	return f.debugOutput, f.debugErr
}

func (f *fakeKube) PortForward(_ context.Context, opts kube.ForwardOptions) (*kube.Forward, error) {
	return &kube.Forward{LocalPort: opts.LocalPort}, nil
}

func TestIsConfigError(t *testing.T) {
	assert.True(t, IsConfigError(spec.ErrUnknownTestKind))
	assert.True(t, IsConfigError(ErrInvalidSourceForKind))
	assert.True(t, IsConfigError(fmt.Errorf("wrapped: %w", spec.ErrConfiguration)))
	assert.False(t, IsConfigError(fmt.Errorf("transient network failure")))
	assert.False(t, IsConfigError(nil))
}

func TestExecute_NoKind(t *testing.T) {
	e := New(&fakeKube{})
	err := e.Execute(context.Background(), &spec.TestDefinition{Name: "empty"}, vars.NewStore())
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestValidateHTTPExpectations(t *testing.T) {
	res := &Result{
		Kind:       spec.KindHTTP,
		StatusCode: 201,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       `{"id": 42, "status": "created"}`,
	}
	res.parseBody()

	t.Run("all expectations pass", func(t *testing.T) {
		err := validateHTTPExpectations(res, &spec.Expectation{
			StatusCode:   &spec.Comparison{Comparator: spec.ComparatorEquals, Value: 201},
			BodyContains: &spec.Comparison{Comparator: spec.ComparatorContains, Value: "created"},
			Headers: []spec.HeaderExpectation{
				{Name: "content-type", Comparator: spec.ComparatorContains, Value: "json"},
			},
			BodyJSONPath: []spec.PathExpectation{
				{Path: "$.id", Comparator: spec.ComparatorEquals, Value: 42},
			},
		})
		assert.NoError(t, err)
	})

	t.Run("status mismatch names the field", func(t *testing.T) {
		err := validateHTTPExpectations(res, &spec.Expectation{
			StatusCode: &spec.Comparison{Comparator: spec.ComparatorEquals, Value: 200},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "statusCode")
	})

	t.Run("missing header compares as absent", func(t *testing.T) {
		err := validateHTTPExpectations(res, &spec.Expectation{
			Headers: []spec.HeaderExpectation{
				{Name: "X-Missing", Comparator: spec.ComparatorExists},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "<absent>")
	})

	t.Run("missing json path with exists fails", func(t *testing.T) {
		err := validateHTTPExpectations(res, &spec.Expectation{
			BodyJSONPath: []spec.PathExpectation{
				{Path: "$.missing", Comparator: spec.ComparatorExists},
			},
		})
		assert.Error(t, err)
	})

	t.Run("negated exists on missing path passes", func(t *testing.T) {
		err := validateHTTPExpectations(res, &spec.Expectation{
			BodyJSONPath: []spec.PathExpectation{
				{Path: "$.missing", Comparator: spec.ComparatorExists, Negate: true},
			},
		})
		assert.NoError(t, err)
	})

	t.Run("json path on non-json body", func(t *testing.T) {
		textRes := &Result{Kind: spec.KindHTTP, StatusCode: 200, Body: "plain text"}
		textRes.parseBody()
		err := validateHTTPExpectations(textRes, &spec.Expectation{
			BodyJSONPath: []spec.PathExpectation{{Path: "$.id", Comparator: spec.ComparatorExists}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid JSON")
	})
}

func TestValidateCommandExpectations(t *testing.T) {
	res := &Result{
		Kind:     spec.KindCommand,
		Stdout:   `{"version": "1.2.3"}`,
		Stderr:   "warning: deprecated flag",
		ExitCode: 0,
	}
	res.JSON = map[string]interface{}{"version": "1.2.3"}

	t.Run("all expectations pass", func(t *testing.T) {
		err := validateCommandExpectations(res, &spec.Expectation{
			ExitCode: &spec.Comparison{Comparator: spec.ComparatorEquals, Value: 0},
			Stderr:   &spec.Comparison{Comparator: spec.ComparatorContains, Value: "deprecated"},
			JSONPath: []spec.PathExpectation{
				{Path: "$.version", Comparator: spec.ComparatorMatches, Value: `^\d+\.\d+\.\d+$`},
			},
		})
		assert.NoError(t, err)
	})

	t.Run("exit code mismatch", func(t *testing.T) {
		err := validateCommandExpectations(res, &spec.Expectation{
			ExitCode: &spec.Comparison{Comparator: spec.ComparatorEquals, Value: 1},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exitCode")
	})

	t.Run("json path without parsed stdout", func(t *testing.T) {
		plain := &Result{Kind: spec.KindCommand, Stdout: "not json"}
		err := validateCommandExpectations(plain, &spec.Expectation{
			JSONPath: []spec.PathExpectation{{Path: "$.x", Comparator: spec.ComparatorExists}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parseJson")
	})

	t.Run("json path with recorded parse error", func(t *testing.T) {
		broken := &Result{Kind: spec.KindCommand, Stdout: "{", JSONParseError: "unexpected end of JSON input"}
		err := validateCommandExpectations(broken, &spec.Expectation{
			JSONPath: []spec.PathExpectation{{Path: "$.x", Comparator: spec.ComparatorExists}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected end of JSON input")
	})
}
