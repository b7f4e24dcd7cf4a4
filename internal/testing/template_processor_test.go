package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func scenarioContextWith(results map[string]interface{}) *ScenarioContext {
	sc := NewScenarioContext()
	for k, v := range results {
		sc.StoreResult(k, v)
	}
	return sc
}

func TestTemplateProcessor_ResolveArgs(t *testing.T) {
	sc := scenarioContextWith(map[string]interface{}{
		"agreement": map[string]interface{}{"id": "agr-7", "signer_count": float64(2)},
		"link":      map[string]interface{}{"code": "123456"},
	})
	tp := NewTemplateProcessor(sc)

	resolved, err := tp.ResolveArgs(map[string]interface{}{
		"agreement_id": "{{ .agreement.id }}",
		"upper":        "{{ .agreement.id | upper }}",
		"signer_index": 1,
		"plain":        "no templates here",
		"nested": map[string]interface{}{
			"code": "{{ .link.code }}",
			"list": []interface{}{"{{ .agreement.signer_count }}", true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "agr-7", resolved["agreement_id"])
	assert.Equal(t, "AGR-7", resolved["upper"])
	assert.Equal(t, 1, resolved["signer_index"])
	assert.Equal(t, "no templates here", resolved["plain"])

	nested := resolved["nested"].(map[string]interface{})
	assert.Equal(t, "123456", nested["code"])
	assert.Equal(t, []interface{}{"2", true}, nested["list"])
}

func TestTemplateProcessor_SprigConditional(t *testing.T) {
	sc := scenarioContextWith(map[string]interface{}{
		"link": map[string]interface{}{"code": "000000"},
	})
	resolved, err := NewTemplateProcessor(sc).ResolveArgs(map[string]interface{}{
		"code": `{{ if eq .link.code "000000" }}111111{{ else }}000000{{ end }}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "111111", resolved["code"])
}

func TestTemplateProcessor_Errors(t *testing.T) {
	tp := NewTemplateProcessor(scenarioContextWith(map[string]interface{}{
		"link": map[string]interface{}{"code": "1"},
	}))

	_, err := tp.ResolveArgs(map[string]interface{}{"id": "{{ .agreement.id }}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error in key 'id'")

	_, err = tp.ResolveArgs(map[string]interface{}{"code": "{{ .link.missing }}"})
	assert.Error(t, err)

	_, err = tp.ResolveArgs(map[string]interface{}{"bad": "{{ .link.code "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid template")

	_, err = tp.ResolveArgs(map[string]interface{}{"list": []interface{}{"ok", "{{ .nope }}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

func TestTemplateProcessor_NilArgs(t *testing.T) {
	resolved, err := NewTemplateProcessor(NewScenarioContext()).ResolveArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestScenarioContext_StoredResultsAreCopied(t *testing.T) {
	sc := scenarioContextWith(map[string]interface{}{"a": 1})
	all := sc.GetAllStoredResults()
	all["b"] = 2

	_, ok := sc.GetStoredResult("b")
	assert.False(t, ok)
	v, ok := sc.GetStoredResult("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

// Strings without template actions pass through untouched, whatever they
// contain.
func TestTemplateProcessor_PlainStringsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Filter(func(s string) bool {
			return !containsText(s, "{{")
		}).Draw(t, "s")

		resolved, err := NewTemplateProcessor(NewScenarioContext()).ResolveArgs(map[string]interface{}{"v": s})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resolved["v"] != s {
			t.Fatalf("got %q, want %q", resolved["v"], s)
		}
	})
}

// A value always matches itself, and a map always matches any of its
// subsets.
func TestCompareValuesProperty(t *testing.T) {
	scalar := rapid.OneOf(
		rapid.Map(rapid.String(), func(s string) interface{} { return s }),
		rapid.Map(rapid.IntRange(-1000, 1000), func(i int) interface{} { return float64(i) }),
		rapid.Map(rapid.Bool(), func(b bool) interface{} { return b }),
	)

	rapid.Check(t, func(t *rapid.T) {
		actual := rapid.MapOf(rapid.StringMatching(`[a-z]{1,6}`), scalar).Draw(t, "actual")
		doc := make(map[string]interface{}, len(actual))
		for k, v := range actual {
			doc[k] = v
		}
		if !compareValues(doc, doc) {
			t.Fatalf("value does not match itself: %v", doc)
		}

		subset := make(map[string]interface{})
		for k, v := range doc {
			if rapid.Bool().Draw(t, "keep-"+k) {
				subset[k] = v
			}
		}
		if !compareValues(doc, subset) {
			t.Fatalf("%v does not match subset %v", doc, subset)
		}

		list := make([]interface{}, 0, len(doc))
		for _, v := range doc {
			list = append(list, v)
		}
		if !compareValues(list, list) {
			t.Fatalf("list does not match itself: %v", list)
		}
	})
}
