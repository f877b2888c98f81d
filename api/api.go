// Package api carries the OpenAPI description served at /swagger.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
