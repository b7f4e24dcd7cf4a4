// Package mock is an in-memory fake of the CRM that the signing-flow models
// are tested against.
//
// An App bundles three things over one shared Store:
//
//   - the workspace-scoped REST API (templates, agreements, signing links,
//     contacts) served by a chi router, reachable through httptest or the
//     HTTPServer wrapper;
//   - a simulated UI implementing browser.Page for the template editor, the
//     agreement form and detail view, and the public signing flow;
//   - tunables that reproduce the behaviors the models have to cope with:
//     editors that do not mark the spawned field as selected, drags that lose
//     small fields when the pointer moves too far in one step, and a delay
//     before a template selection is applied.
//
// Server-side rules are enforced the way the real CRM enforces them: a
// regenerated link invalidates the previous token and code, the identity step
// requires consent, completion is blocked while required fields are empty and
// an agreement cannot be created with an unresolved signer.
//
// Usage:
//
//	app := mock.NewApp(mock.Options{})
//	srv := httptest.NewServer(app.Handler())
//	defer srv.Close()
//	client := crm.NewClient(ctx, srv.URL, app.Options().WorkspaceID, "")
//	page := app.NewPage()
package mock
