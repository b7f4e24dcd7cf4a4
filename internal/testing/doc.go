// Package testing is the scenario framework behind "signflow test".
//
// A scenario is a YAML file naming a sequence of steps. Each step invokes a
// registered action (template.author, agreement.create, link.generate,
// sign.verify_code and so on), optionally stores the action's output, and
// states what outcome it expects. Later steps read stored outputs through Go
// templates with the sprig function library:
//
//	steps:
//	  - id: link
//	    action: link.generate
//	    args:
//	      agreement_id: "{{ .agreement.id }}"
//	      signer_index: 0
//	    store: link
//	    expected:
//	      success: true
//	  - id: code
//	    action: sign.verify_code
//	    args:
//	      code: "{{ .link.code }}"
//	    expected:
//	      success: true
//	      json_path:
//	        step: identity
//
// # Components
//
//	            ┌────────────────┐
//	            │  signflow test │ (cmd/test.go)
//	            └───────┬────────┘
//	                    │
//	            ┌───────▼────────┐
//	            │   TestRunner   │ test_runner.go
//	            └───────┬────────┘
//	        ┌───────────┼──────────────┬──────────────┐
//	┌───────▼──────┐ ┌──▼───────────┐ ┌▼───────────┐ ┌▼──────────────────┐
//	│ScenarioLoader│ │ Action table │ │  Reporter  │ │EnvironmentManager │
//	└──────────────┘ └──────────────┘ └────────────┘ └───────────────────┘
//
// The loader reads scenarios from a directory, a single file or, with no
// path, the scenarios embedded in the binary. Unknown YAML keys are
// rejected. ValidateScenarios checks steps against the action table without
// running anything.
//
// The environment manager gives every scenario an isolated environment. On
// the fake target that is a fresh in-memory CRM from package mock served
// over httptest, so scenarios run in parallel without sharing state. On the
// chrome target it is a browser tab against a real deployment.
//
// # Results
//
// Scenarios end PASSED, FAILED, ERROR or SKIPPED:
//
//   - FAILED: an observed state disagreed with the step's expectation.
//   - ERROR: the scenario itself is broken, e.g. an unknown action, a bad
//     argument or a template reading a result nobody stored.
//   - SKIPPED: the scenario is marked skip, does not apply to the target, or
//     a setup precondition such as the fixture template is unavailable.
//
// Cleanup steps run whatever the outcome. With fail-fast, scenarios that
// have not started when a failure is reported are never started.
//
// The console reporter prints progress and a summary table. The structured
// reporter keeps results in memory for the MCP server, which exposes
// running, listing and validating scenarios as MCP tools.
package testing
