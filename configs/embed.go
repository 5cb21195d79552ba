// Package configs embeds the commented configuration files written by
// 'hybridrag config init'.
//
// The project template covers what belongs to a corpus (ingest, chunking,
// lexical and fusion settings). The user template covers what belongs to
// a machine (embedder, vector graph and serving settings). Both spell out
// the defaults from config.NewConfig.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .hybridrag.yaml in the corpus root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate is written to the user config path.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
