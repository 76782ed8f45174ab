package api

import _ "embed"

// OpenAPI describes the JSON surface of the service for the docs page.
//
//go:embed openapi.json
var OpenAPI []byte
