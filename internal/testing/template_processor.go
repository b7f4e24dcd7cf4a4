package testing

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"signflow/pkg/logging"
)

// ScenarioContext holds the execution context for a test scenario
// including stored results from previous steps for template variable resolution
type ScenarioContext struct {
	storedResults map[string]interface{} // Store step results by variable name
	mu            sync.RWMutex           // Thread-safe access for parallel execution
}

// NewScenarioContext creates a new scenario execution context
func NewScenarioContext() *ScenarioContext {
	return &ScenarioContext{
		storedResults: make(map[string]interface{}),
	}
}

// StoreResult stores a step result under the given variable name
func (sc *ScenarioContext) StoreResult(name string, result interface{}) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.storedResults[name] = result
	logging.Debug("TestFramework", "Stored result for variable '%s': %v", name, result)
}

// GetStoredResult retrieves a stored result by variable name
func (sc *ScenarioContext) GetStoredResult(name string) (interface{}, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	result, exists := sc.storedResults[name]
	return result, exists
}

// GetAllStoredResults returns a copy of all stored results for debugging
func (sc *ScenarioContext) GetAllStoredResults() map[string]interface{} {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	out := make(map[string]interface{}, len(sc.storedResults))
	for k, v := range sc.storedResults {
		out[k] = v
	}
	return out
}

// TemplateProcessor resolves template expressions in step arguments against
// the stored results. Expressions use Go template syntax with the sprig
// function library, e.g. "{{ .link.code }}" or "{{ .agreement.id | upper }}".
type TemplateProcessor struct {
	context *ScenarioContext
	funcs   template.FuncMap
}

// NewTemplateProcessor creates a new template processor with the given scenario context
func NewTemplateProcessor(context *ScenarioContext) *TemplateProcessor {
	return &TemplateProcessor{
		context: context,
		funcs:   sprig.TxtFuncMap(),
	}
}

// ResolveArgs processes a map of arguments and resolves any template variables
func (tp *TemplateProcessor) ResolveArgs(args map[string]interface{}) (map[string]interface{}, error) {
	if args == nil {
		return nil, nil
	}

	data := tp.context.GetAllStoredResults()
	resolved, err := tp.resolve(args, data)
	if err != nil {
		return nil, err
	}

	resolvedMap, ok := resolved.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("template resolution returned unexpected type: %T", resolved)
	}

	logging.Debug("TestFramework", "Template resolution completed. Original: %v, Resolved: %v", args, resolvedMap)
	return resolvedMap, nil
}

func (tp *TemplateProcessor) resolve(value interface{}, data map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return tp.render(v, data)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			r, err := tp.resolve(item, data)
			if err != nil {
				return nil, fmt.Errorf("error in key '%s': %w", key, err)
			}
			out[key] = r
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			r, err := tp.resolve(item, data)
			if err != nil {
				return nil, fmt.Errorf("error at index %d: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

// render executes s as a template. Strings without actions are returned
// unchanged and a reference to a missing result is an error.
func (tp *TemplateProcessor) render(s string, data map[string]interface{}) (interface{}, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tmpl, err := template.New("arg").Option("missingkey=error").Funcs(tp.funcs).Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", s, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", s, err)
	}
	return buf.String(), nil
}
