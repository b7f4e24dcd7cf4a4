// Package config provides configuration management for signflow.
//
// Configuration is layered. Built-in defaults come first, then an optional
// signflow.yaml file, then SIGNFLOW_* environment variables. CLI flags are
// applied last by the commands themselves.
//
// # Configuration File
//
//	app:
//	  baseURL: https://crm.example.com
//	  workspaceID: ws_123
//	auth:
//	  token: ${SIGNFLOW_TOKEN}
//	browser:
//	  headless: true
//	timeouts:
//	  element: 10s
//	  pageLoad: 45s
//	placement:
//	  smallFieldThreshold: 30
//	  coarseSteps: 15
//	  fineSteps: 25
//
// # Environment
//
// The following variables override file values when set:
//
//	SIGNFLOW_BASE_URL, SIGNFLOW_API_URL, SIGNFLOW_WORKSPACE_ID,
//	SIGNFLOW_TOKEN, SIGNFLOW_HEADLESS, SIGNFLOW_CHROME_PATH,
//	SIGNFLOW_DOCUMENT_PATH, SIGNFLOW_COORDINATES_PATH, SIGNFLOW_CACHE_PATH
//
// # Validation
//
// Invalid values are reported together as a ConfigurationErrorCollection so a
// user sees every problem in one run.
package config
