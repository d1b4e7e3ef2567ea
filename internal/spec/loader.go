package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"kubecheck/pkg/logging"
)

// Load reads test definitions from a YAML file or from every *.yaml/*.yml
// file in a directory (sorted by name). Each document may contain either a
// single bare definition or a "tests:" sequence. All definitions are
// validated before the batch is returned.
func Load(path string) ([]TestDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat test path: %w", err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read test directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, fmt.Errorf("no YAML test files found in %s", path)
		}
	} else {
		files = []string{path}
	}

	var tests []TestDefinition
	for _, file := range files {
		loaded, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		tests = append(tests, loaded...)
	}

	logging.Debug("Loader", "loaded %d test definition(s) from %s", len(tests), path)
	return tests, nil
}

// loadFile parses one YAML document into a list of validated definitions.
func loadFile(path string) ([]TestDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	tests := doc.Tests
	if tests == nil {
		// Single bare definition.
		var single TestDefinition
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		tests = []TestDefinition{single}
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for i := range tests {
		if tests[i].Name == "" {
			tests[i].Name = fmt.Sprintf("%s[%d]", base, i)
		}
		if err := tests[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return tests, nil
}
