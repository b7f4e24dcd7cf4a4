// Package logging provides the structured logging used across signflow.
//
// It is a thin layer over log/slog: every entry carries a subsystem name so
// that diagnosis of a failing browser run can be narrowed to one model
// (placement, template authoring, public signing, ...).
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("TemplateAuthoring", "created template %s", id)
//	logging.Debug("Locator", "strategy %q matched for %s", name, chain)
//	logging.Error("PublicSign", err, "code verification did not advance")
//
// CI runs that want machine-readable output use InitForJSON instead.
//
// # Subsystems
//
//   - Placement: drag-and-drop of freshly spawned fields
//   - TemplateAuthoring: template editor state machine
//   - Agreements: agreement creation form
//   - SigningLinks: link generation and regeneration
//   - PublicSign: public signing session
//   - Setup: setup-fixture cache and preconditions
//   - Locator: locator strategy chains
//   - CRMClient: REST calls against the workspace API
//   - TestFramework: scenario runner
package logging
