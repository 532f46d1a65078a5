// Package configs provides embedded configuration templates for amanscan.
//
// Templates are embedded at build time so that `amanscan init` works from
// any distribution. To change them, edit the files in this directory and
// rebuild.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .amanscan.yaml by `amanscan init`.
// Its values match the built-in defaults.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// IgnoreTemplate is written to .amanscanignore by `amanscan init`.
//
//go:embed ignore.example
var IgnoreTemplate string
