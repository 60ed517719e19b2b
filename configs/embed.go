// Package configs embeds the commented configuration templates written by
// `otto config init`.
//
// Templates are embedded at build time so every distribution carries them.
// Keep them in sync with internal/config: the tests decode each template
// with unknown fields rejected.
package configs

import _ "embed"

// UserConfigTemplate is written to ~/.config/otto/config.yaml.
// Machine-level settings: collaborator hosts, models, data directory.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written to .otto.yaml by `otto config init --project`.
// Retrieval tuning for one catalog.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
