// Package schemas embeds the JSON schemas foundry validates against.
package schemas

import _ "embed"

// FoundryV1Schema is the JSON schema for foundry.yaml.
//
//go:embed foundry.v1.schema.json
var FoundryV1Schema []byte
