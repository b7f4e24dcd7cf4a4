// Package scenarios holds the built-in e-signature scenarios. They run when
// no scenario path is given.
package scenarios

import "embed"

// FS contains every built-in scenario file.
//
//go:embed *.yaml
var FS embed.FS
