package spec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func intPtr(i int) *int { return &i }

func TestComparison_ScalarShorthand(t *testing.T) {
	t.Run("bare scalar sets only the value", func(t *testing.T) {
		var c Comparison
		require.NoError(t, yaml.Unmarshal([]byte(`200`), &c))
		assert.Equal(t, 200, c.Value)
		assert.Empty(t, c.Comparator)
	})

	t.Run("full mapping", func(t *testing.T) {
		var c Comparison
		require.NoError(t, yaml.Unmarshal([]byte("comparator: contains\nvalue: ok\nnegate: true"), &c))
		assert.Equal(t, "contains", c.Comparator)
		assert.Equal(t, "ok", c.Value)
		assert.True(t, c.Negate)
	})
}

func TestSetVars_PreservesOrder(t *testing.T) {
	doc := `
zeta:
  jsonPath: $.z
alpha:
  statusCode: true
mid:
  header: X-Request-Id
`
	var s SetVars
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	require.Len(t, s, 3)
	assert.Equal(t, "zeta", s[0].Name)
	assert.Equal(t, "alpha", s[1].Name)
	assert.Equal(t, "mid", s[2].Name)
	assert.Equal(t, "$.z", s[0].Rule.JSONPath)
	assert.True(t, s[1].Rule.StatusCode)
}

func TestSetVars_RejectsNonMapping(t *testing.T) {
	var s SetVars
	err := yaml.Unmarshal([]byte(`[a, b]`), &s)
	assert.Error(t, err)
}

func TestValidate_KindCount(t *testing.T) {
	t.Run("no kind", func(t *testing.T) {
		d := TestDefinition{Name: "empty"}
		err := d.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownTestKind))
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("two kinds", func(t *testing.T) {
		d := TestDefinition{
			Name:    "both",
			HTTP:    &HTTPTest{URL: "http://localhost"},
			Command: &CommandTest{Command: "true"},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAmbiguousTestKind))
	})

	t.Run("single kind", func(t *testing.T) {
		d := TestDefinition{Name: "ok", HTTP: &HTTPTest{URL: "http://localhost"}}
		assert.NoError(t, d.Validate())
	})
}

func TestValidate_ComparatorDefaults(t *testing.T) {
	d := TestDefinition{
		Name: "defaults",
		HTTP: &HTTPTest{URL: "http://localhost"},
		Expect: &Expectation{
			StatusCode:   &Comparison{Value: 200},
			BodyContains: &Comparison{Value: "ok"},
			BodyRegex:    &Comparison{Value: "o+"},
			Headers:      []HeaderExpectation{{Name: "Content-Type", Value: "application/json"}},
			BodyJSONPath: []PathExpectation{{Path: "$.status"}},
		},
	}
	require.NoError(t, d.Validate())
	assert.Equal(t, ComparatorEquals, d.Expect.StatusCode.Comparator)
	assert.Equal(t, ComparatorContains, d.Expect.BodyContains.Comparator)
	assert.Equal(t, ComparatorMatches, d.Expect.BodyRegex.Comparator)
	assert.Equal(t, ComparatorEquals, d.Expect.Headers[0].Comparator)
	assert.Equal(t, ComparatorEquals, d.Expect.BodyJSONPath[0].Comparator)
}

func TestValidate_UnknownComparator(t *testing.T) {
	d := TestDefinition{
		Name:   "bad",
		HTTP:   &HTTPTest{URL: "http://localhost"},
		Expect: &Expectation{StatusCode: &Comparison{Comparator: "roughly", Value: 200}},
	}
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "roughly")
}

func TestValidate_KindFieldGating(t *testing.T) {
	t.Run("exitCode on http test", func(t *testing.T) {
		d := TestDefinition{
			Name:   "wrong-field",
			HTTP:   &HTTPTest{URL: "http://localhost"},
			Expect: &Expectation{ExitCode: &Comparison{Value: 0}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only valid for command tests")
	})

	t.Run("statusCode on command test", func(t *testing.T) {
		d := TestDefinition{
			Name:    "wrong-field",
			Command: &CommandTest{Command: "true"},
			Expect:  &Expectation{StatusCode: &Comparison{Value: 200}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only valid for http tests")
	})
}

func TestValidate_Selector(t *testing.T) {
	t.Run("name and labels together", func(t *testing.T) {
		s := Selector{
			Kind: "Pod",
			Metadata: SelectorMeta{
				Name:   "web-0",
				Labels: map[string]string{"app": "web"},
			},
		}
		assert.Error(t, s.validate())
	})

	t.Run("neither name nor labels", func(t *testing.T) {
		s := Selector{Kind: "Pod"}
		assert.Error(t, s.validate())
	})

	t.Run("name only", func(t *testing.T) {
		s := Selector{Kind: "Pod", Metadata: SelectorMeta{Name: "web-0"}}
		assert.NoError(t, s.validate())
	})

	t.Run("labels only", func(t *testing.T) {
		s := Selector{Kind: "Pod", Metadata: SelectorMeta{Labels: map[string]string{"app": "web"}}}
		assert.NoError(t, s.validate())
	})
}

func TestValidate_Source(t *testing.T) {
	t.Run("port-forward and exec are exclusive", func(t *testing.T) {
		s := Source{
			Type:           SourcePod,
			Selector:       Selector{Metadata: SelectorMeta{Name: "web-0"}},
			UsePortForward: true,
			UsePodExec:     true,
		}
		assert.Error(t, s.validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		s := Source{Type: "cluster"}
		assert.Error(t, s.validate())
	})

	t.Run("local needs no selector", func(t *testing.T) {
		s := Source{Type: SourceLocal}
		assert.NoError(t, s.validate())
	})
}

func TestValidate_SetVarsRules(t *testing.T) {
	expect := &Expectation{StatusCode: &Comparison{Value: 200}}

	t.Run("setVars without expect", func(t *testing.T) {
		d := TestDefinition{
			Name:    "no-expect",
			HTTP:    &HTTPTest{URL: "http://localhost"},
			SetVars: SetVars{{Name: "ID", Rule: ExtractionRule{JSONPath: "$.id"}}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "setVars requires expect")
	})

	t.Run("setVars and capture together", func(t *testing.T) {
		d := TestDefinition{
			Name:    "both-aliases",
			HTTP:    &HTTPTest{URL: "http://localhost"},
			Expect:  expect,
			SetVars: SetVars{{Name: "A", Rule: ExtractionRule{Body: true}}},
			Capture: SetVars{{Name: "B", Rule: ExtractionRule{Body: true}}},
		}
		assert.Error(t, d.Validate())
	})

	t.Run("rule with two selectors", func(t *testing.T) {
		d := TestDefinition{
			Name:    "two-sources",
			HTTP:    &HTTPTest{URL: "http://localhost"},
			Expect:  expect,
			SetVars: SetVars{{Name: "X", Rule: ExtractionRule{JSONPath: "$.id", Body: true}}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one extraction source")
	})

	t.Run("kind mismatch stdout on http", func(t *testing.T) {
		d := TestDefinition{
			Name:    "stdout-on-http",
			HTTP:    &HTTPTest{URL: "http://localhost"},
			Expect:  expect,
			SetVars: SetVars{{Name: "OUT", Rule: ExtractionRule{Stdout: true}}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid for http tests")
	})

	t.Run("regex body source on command", func(t *testing.T) {
		d := TestDefinition{
			Name:    "regex-body-on-command",
			Command: &CommandTest{Command: "true"},
			Expect:  &Expectation{ExitCode: &Comparison{Value: 0}},
			SetVars: SetVars{{Name: "X", Rule: ExtractionRule{Regex: &RegexRule{Pattern: `(\d+)`, Source: "body"}}}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only valid for http tests")
	})

	t.Run("regex stdout source on http", func(t *testing.T) {
		d := TestDefinition{
			Name:    "regex-stdout-on-http",
			HTTP:    &HTTPTest{URL: "http://localhost"},
			Expect:  expect,
			SetVars: SetVars{{Name: "X", Rule: ExtractionRule{Regex: &RegexRule{Pattern: `(\d+)`, Source: "stdout"}}}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only valid for command tests")
	})

	t.Run("wait value extraction needs jsonPath", func(t *testing.T) {
		d := TestDefinition{
			Name: "value-no-path",
			Wait: &WaitTest{
				Selector: Selector{Kind: "Pod", Metadata: SelectorMeta{Name: "web-0"}},
			},
			SetVars: SetVars{{Name: "PHASE", Rule: ExtractionRule{Value: true}}},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires wait.jsonPath")
	})

	t.Run("negative maxRetries", func(t *testing.T) {
		d := TestDefinition{
			Name: "neg-retries",
			Wait: &WaitTest{
				Selector:   Selector{Kind: "Pod", Metadata: SelectorMeta{Name: "web-0"}},
				MaxRetries: intPtr(-1),
			},
		}
		assert.Error(t, d.Validate())
	})
}

func TestValidate_BodyComparison(t *testing.T) {
	t.Run("second request missing http", func(t *testing.T) {
		d := TestDefinition{
			Name: "half",
			BodyComparison: &BodyComparisonTest{
				First: RequestSpec{HTTP: &HTTPTest{URL: "http://a"}},
			},
		}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "second.http is required")
	})

	t.Run("complete", func(t *testing.T) {
		d := TestDefinition{
			Name: "full",
			BodyComparison: &BodyComparisonTest{
				First:  RequestSpec{HTTP: &HTTPTest{URL: "http://a"}},
				Second: RequestSpec{HTTP: &HTTPTest{URL: "http://b"}},
			},
		}
		assert.NoError(t, d.Validate())
	})
}

func TestLoad_FileShapes(t *testing.T) {
	dir := t.TempDir()

	t.Run("tests sequence", func(t *testing.T) {
		path := filepath.Join(dir, "batch.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
tests:
  - name: ping
    http:
      url: http://localhost:8080
    expect:
      statusCode: 200
  - name: version
    command:
      command: cat VERSION
`), 0644))

		tests, err := Load(path)
		require.NoError(t, err)
		require.Len(t, tests, 2)
		assert.Equal(t, "ping", tests[0].Name)
		assert.Equal(t, KindHTTP, tests[0].Kind())
		assert.Equal(t, KindCommand, tests[1].Kind())
	})

	t.Run("single bare definition", func(t *testing.T) {
		path := filepath.Join(dir, "single.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
http:
  url: http://localhost:8080
expect:
  statusCode: 200
`), 0644))

		tests, err := Load(path)
		require.NoError(t, err)
		require.Len(t, tests, 1)
		// Unnamed definitions get the file basename.
		assert.Equal(t, "single[0]", tests[0].Name)
	})

	t.Run("invalid definition rejected at load", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`name: broken`), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownTestKind))
	})
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	write("20-second.yaml", "name: second\ncommand:\n  command: \"true\"\n")
	write("10-first.yml", "name: first\ncommand:\n  command: \"true\"\n")
	write("ignored.txt", "not yaml")

	tests, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	// Files are processed in sorted order.
	assert.Equal(t, "first", tests[0].Name)
	assert.Equal(t, "second", tests[1].Name)
}

func TestLoad_EmptyDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestTestDefinition_Vars(t *testing.T) {
	setVars := SetVars{{Name: "A", Rule: ExtractionRule{Body: true}}}
	capture := SetVars{{Name: "B", Rule: ExtractionRule{Body: true}}}

	d := TestDefinition{SetVars: setVars}
	assert.Equal(t, setVars, d.Vars())

	d = TestDefinition{Capture: capture}
	assert.Equal(t, capture, d.Vars())
}
