// Package docs carries the OpenAPI document served next to the Swagger UI
package docs

import _ "embed"

//go:embed openapi.json
var OpenAPI []byte

// Path is where the document is served
const Path = "/openapi.json"
