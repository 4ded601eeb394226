// Package docs serves the API's swagger document, both to the swagger UI and
// to the endpoint index.
package docs

import "github.com/swaggo/swag"

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "taverna.app",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Taverna API",
	Description:      "Run tabletop role-playing campaigns online.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  string(swaggerJSON),
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
