// Package api ships the OpenAPI document and its Swagger UI page inside the
// binary.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte

//go:embed swagger.html
var SwaggerPage []byte
