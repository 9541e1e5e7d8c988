// Package swagger holds the OpenAPI document for quotagate and
// registers it with swag so http-swagger can serve it.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Service info",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.InfoResponse"}}
                }
            }
        },
        "/version": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Get service version",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VersionResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/health/live": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/health/ready": {
            "get": {
                "description": "Checks that the key store is reachable",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/register": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Keys"],
                "summary": "Issue an API key on the basic plan",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.IssuedResponse"}},
                    "500": {"description": "Storage failure", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/register/{plan}": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Keys"],
                "summary": "Issue an API key",
                "parameters": [
                    {"type": "string", "description": "Plan id (basic, premium)", "name": "plan", "in": "path", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.IssuedResponse"}},
                    "400": {"description": "Unknown plan", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "500": {"description": "Storage failure", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/gumroad-webhook": {
            "post": {
                "description": "Issues a key when the form's product_id matches the configured product",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Keys"],
                "summary": "Purchase webhook",
                "parameters": [
                    {"type": "string", "description": "Purchased product", "name": "product_id", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IssuedResponse"}},
                    "400": {"description": "Unknown product or malformed form", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/track": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Usage"],
                "summary": "Track usage",
                "parameters": [
                    {"description": "Key and outcome", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.TrackRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ChargeResponse"}},
                    "400": {"description": "Malformed body", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "403": {"description": "Invalid or inactive key", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "429": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/summary/{api_key}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Usage"],
                "summary": "Usage summary",
                "parameters": [
                    {"type": "string", "description": "API key", "name": "api_key", "in": "path", "required": true},
                    {"type": "string", "description": "Secret issued with the key", "name": "X-API-Secret", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SummaryResponse"}},
                    "401": {"description": "Wrong secret", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "403": {"description": "Unknown key", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/api/{path}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Charges one unit against the key, then forwards to the upstream",
                "produces": ["application/json"],
                "tags": ["Proxy"],
                "summary": "Metered API",
                "parameters": [
                    {"type": "string", "description": "Path under /api", "name": "path", "in": "path", "required": true},
                    {"type": "string", "description": "API key", "name": "X-API-Key", "in": "header", "required": true},
                    {"type": "string", "description": "Secret, checked when present", "name": "X-API-Secret", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ChargeResponse"}},
                    "401": {"description": "Wrong secret", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "403": {"description": "Invalid or inactive key", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "429": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "502": {"description": "Upstream error", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        }
    },
    "definitions": {
        "http.InfoResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "API key issuance and usage metering"},
                "service": {"type": "string", "example": "quotagate"},
                "version": {"type": "string", "example": "1.0.0"}
            }
        },
        "http.VersionResponse": {
            "type": "object",
            "properties": {
                "service": {"type": "string", "example": "quotagate"},
                "version": {"type": "string", "example": "1.0.0"}
            }
        },
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "status": {"type": "string", "example": "ok"}
            }
        },
        "http.IssuedResponse": {
            "type": "object",
            "properties": {
                "api_key": {"type": "string", "example": "qk_0123456789abcdef0123456789abcdef"},
                "message": {"type": "string", "example": "API key created"},
                "plan": {"type": "string", "example": "basic"},
                "quota": {"type": "integer", "example": 1000},
                "secret": {"type": "string", "example": "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822c"}
            }
        },
        "http.TrackRequest": {
            "type": "object",
            "properties": {
                "api_key": {"type": "string", "example": "qk_0123456789abcdef0123456789abcdef"},
                "status": {"type": "string", "example": "ok"}
            }
        },
        "http.ChargeResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Usage recorded"},
                "path": {"type": "string", "example": "/api/data"},
                "remaining": {"type": "integer", "example": 958},
                "used": {"type": "integer", "example": 42}
            }
        },
        "http.SummaryResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean", "example": true},
                "api_key": {"type": "string"},
                "error_count": {"type": "integer", "example": 3},
                "first_request_at": {"type": "string"},
                "last_request_at": {"type": "string"},
                "plan": {"type": "string", "example": "basic"},
                "quota": {"type": "integer", "example": 1000},
                "remaining": {"type": "integer", "example": 958},
                "total_requests": {"type": "integer", "example": 42},
                "used": {"type": "integer", "example": 42}
            }
        },
        "jsonapi.Document": {
            "type": "object",
            "properties": {
                "errors": {"type": "array", "items": {"$ref": "#/definitions/jsonapi.Error"}}
            }
        },
        "jsonapi.Error": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "quota_exceeded"},
                "detail": {"type": "string", "example": "Quota exceeded"},
                "status": {"type": "string", "example": "429"},
                "title": {"type": "string", "example": "Too Many Requests"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "quotagate API",
	Description:      "API key issuance and usage metering gateway.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Doc renders the registered document.
func Doc() string {
	return SwaggerInfo.ReadDoc()
}
