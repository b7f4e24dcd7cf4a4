package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuietLoader() TestScenarioLoader {
	return NewTestScenarioLoaderWithLogger(false, NewSilentLogger(false, false))
}

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const minimalScenario = `name: %s
category: behavioral
concept: template
tags: [%s]
steps:
  - id: fixture
    action: setup.template
    store: template
    expected:
      success: true
`

func TestLoadScenarios_Builtin(t *testing.T) {
	loaded, err := newQuietLoader().LoadScenarios("")
	require.NoError(t, err)

	names := ScenarioNames(loaded)
	for _, want := range []string{
		"two-role-happy-path",
		"wrong-verification-code",
		"regenerated-code-rejected",
		"identity-consent-required",
		"unresolved-signer-rejected",
		"zero-role-single-contact",
		"signer-routing-order",
		"template-field-placement",
		"completion-blocked-until-filled",
	} {
		assert.Contains(t, names, want)
	}

	results := ValidateScenarios(loaded)
	for _, sr := range results.ScenarioResults {
		assert.True(t, sr.Valid, "%s:\n%s", sr.ScenarioName, FormatValidationResults(&ScenarioValidationResults{ScenarioResults: []ScenarioValidationResult{sr}}, true))
	}
	assert.Equal(t, len(loaded), results.ValidScenarios)
	assert.Zero(t, results.TotalErrors)
}

func TestLoadScenarios_Directory(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", fmt.Sprintf(minimalScenario, "alpha", "smoke"))
	writeScenario(t, dir, "nested/b.yml", fmt.Sprintf(minimalScenario, "beta", "slow"))
	writeScenario(t, dir, "notes.txt", "not a scenario")

	loaded, err := newQuietLoader().LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "alpha", loaded[0].Name)
	assert.Equal(t, "beta", loaded[1].Name)
}

func TestLoadScenarios_SingleFile(t *testing.T) {
	p := writeScenario(t, t.TempDir(), "one.yaml", `name: timed
category: integration
concept: end-to-end
timeout: 90s
steps:
  - id: contacts
    action: setup.contacts
    timeout: 10s
    expected:
      success: true
      json_path:
        count: 2
`)
	loaded, err := newQuietLoader().LoadScenarios(p)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	s := loaded[0]
	assert.Equal(t, 90*time.Second, s.Timeout)
	assert.Equal(t, 10*time.Second, s.Steps[0].Timeout)
	assert.Equal(t, 2, s.Steps[0].Expected.JSONPath["count"])
	assert.True(t, s.Steps[0].Expected.Success)
}

func TestLoadScenarios_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "unknown key",
			content: `name: typo
category: behavioral
concept: template
steps:
  - id: a
    action: setup.template
    expect:
      success: true
`,
			wantErr: "expect",
		},
		{
			name: "duplicate step id",
			content: `name: dup
category: behavioral
concept: template
steps:
  - id: a
    action: setup.template
cleanup:
  - id: a
    action: setup.contacts
`,
			wantErr: "duplicate step id 'a'",
		},
		{
			name: "bad category",
			content: `name: cat
category: unit
concept: template
steps:
  - id: a
    action: setup.template
`,
			wantErr: "invalid category 'unit'",
		},
		{
			name: "no steps",
			content: `name: empty
category: behavioral
concept: template
steps: []
`,
			wantErr: "at least one step",
		},
		{
			name: "missing action",
			content: `name: noaction
category: behavioral
concept: template
steps:
  - id: a
`,
			wantErr: "step action is required",
		},
		{
			name: "unknown target",
			content: `name: target
category: behavioral
concept: template
targets: [staging]
steps:
  - id: a
    action: setup.template
`,
			wantErr: "unknown target 'staging'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := newQuietLoader().LoadScenarios(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", fmt.Sprintf(minimalScenario, "same", "x"))
	writeScenario(t, dir, "b.yaml", fmt.Sprintf(minimalScenario, "same", "y"))

	_, err := newQuietLoader().LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate scenario name 'same'")
}

func TestLoadScenarios_MissingPath(t *testing.T) {
	_, err := newQuietLoader().LoadScenarios(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFilterScenarios(t *testing.T) {
	loaded := []TestScenario{
		{Name: "a", Category: CategoryBehavioral, Concept: ConceptTemplate, Tags: []string{"smoke"}},
		{Name: "b", Category: CategoryBehavioral, Concept: ConceptPublicSigning, Tags: []string{"signing", "slow"}},
		{Name: "c", Category: CategoryIntegration, Concept: ConceptEndToEnd, Tags: []string{"smoke", "signing"}},
	}

	tests := []struct {
		name   string
		config TestConfiguration
		want   []string
	}{
		{"no filter", TestConfiguration{}, []string{"a", "b", "c"}},
		{"category", TestConfiguration{Category: CategoryBehavioral}, []string{"a", "b"}},
		{"concept", TestConfiguration{Concept: ConceptEndToEnd}, []string{"c"}},
		{"scenario", TestConfiguration{Scenario: "b"}, []string{"b"}},
		{"any tag", TestConfiguration{Tags: []string{"slow", "smoke"}}, []string{"a", "b", "c"}},
		{"tag and category", TestConfiguration{Category: CategoryIntegration, Tags: []string{"signing"}}, []string{"c"}},
		{"nothing matches", TestConfiguration{Tags: []string{"missing"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range newQuietLoader().FilterScenarios(loaded, tt.config) {
				got = append(got, s.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"smoke", "signing"}, SplitTags(" smoke, ,signing,"))
	assert.Nil(t, SplitTags(""))
}

func TestParseFilters(t *testing.T) {
	c, err := ParseCategory("integration")
	require.NoError(t, err)
	assert.Equal(t, CategoryIntegration, c)

	_, err = ParseConcept("billing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing-link")

	c, err = ParseCategory("")
	require.NoError(t, err)
	assert.Empty(t, c)
}

func TestLoadAndFilterScenarios(t *testing.T) {
	config := DefaultTestConfiguration()
	config.Tags = []string{"smoke"}
	loaded, err := LoadAndFilterScenarios(config, NewSilentLogger(false, false))
	require.NoError(t, err)
	require.NotEmpty(t, loaded)
	for _, s := range loaded {
		assert.Contains(t, s.Tags, "smoke")
	}

	assert.Nil(t, LoadScenariosForCompletion(filepath.Join(t.TempDir(), "absent")))
}
