// Package configs provides embedded configuration templates for kbfusion.
//
// Templates are embedded at build time with //go:embed so they ship with
// every distribution. They are written out by:
//   - cmd/kbfusion/cmd/init.go → creates .kbfusion.yaml in the project
//   - cmd/kbfusion/cmd/init.go --user → creates ~/.config/kbfusion/config.yaml
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/kbfusion/config.yaml)
//  3. Project config (.kbfusion.yaml)
//  4. Environment variables (KBFUSION_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration:
// settings that apply to every project on this machine, like the embedding
// provider endpoint and cache location.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration:
// settings version-controlled with the project, like chunking parameters
// and the embedding model.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
