// Package e2e runs the built-in scenarios against a real deployment in
// Chrome. The suite only builds with the e2e tag and skips unless
// signflow.yaml or SIGNFLOW_* variables name a deployment:
//
//	SIGNFLOW_BASE_URL=https://app.example.com SIGNFLOW_WORKSPACE_ID=ws_1 \
//	SIGNFLOW_TOKEN=... go test -tags e2e ./e2e/...
package e2e
