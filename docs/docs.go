// Package docs holds the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/documents": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Submit documents",
                "parameters": [
                    {"type": "file", "description": "PDF attachments", "name": "files", "in": "formData", "required": true},
                    {"type": "string", "description": "Sender address", "name": "sender", "in": "formData"},
                    {"type": "string", "description": "Subject line", "name": "subject", "in": "formData"},
                    {"type": "string", "description": "Free-text instructions", "name": "body", "in": "formData"},
                    {"type": "boolean", "description": "Process in the background", "name": "async", "in": "query"}
                ],
                "responses": {
                    "201": {"description": "Documents processed"},
                    "202": {"description": "Documents accepted for processing"},
                    "400": {"description": "Missing files"},
                    "413": {"description": "Request too large"},
                    "422": {"description": "No PDF attachments"}
                }
            }
        },
        "/documents/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Get a document result",
                "parameters": [{"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Document result"}, "404": {"description": "Document not found"}}
            }
        },
        "/documents/{id}/lifecycle": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Get a document lifecycle",
                "parameters": [{"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Lifecycle entries in order"}, "404": {"description": "Document not found"}}
            }
        },
        "/results": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["results"],
                "summary": "List results",
                "parameters": [
                    {"type": "string", "name": "group_id", "in": "query"},
                    {"type": "string", "name": "outcome", "in": "query"},
                    {"type": "string", "name": "sender", "in": "query"},
                    {"type": "integer", "default": 0, "name": "offset", "in": "query"},
                    {"type": "integer", "default": 20, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "Results, most recent first"}}
            }
        },
        "/results/export": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["results"],
                "summary": "Export results",
                "parameters": [
                    {"type": "string", "default": "csv", "name": "format", "in": "query"},
                    {"type": "string", "name": "group_id", "in": "query"},
                    {"type": "string", "name": "outcome", "in": "query"},
                    {"type": "string", "name": "sender", "in": "query"}
                ],
                "responses": {"200": {"description": "Export file"}, "400": {"description": "Unsupported format"}}
            }
        },
        "/lifecycle": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["lifecycle"],
                "summary": "Query lifecycle entries",
                "parameters": [
                    {"type": "string", "name": "document_id", "in": "query"},
                    {"type": "string", "name": "to_state", "in": "query"},
                    {"type": "string", "name": "agent", "in": "query"},
                    {"type": "string", "name": "since", "in": "query"},
                    {"type": "integer", "default": 0, "name": "offset", "in": "query"},
                    {"type": "integer", "default": 20, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "Entries, most recent first"}, "400": {"description": "Invalid since"}}
            }
        },
        "/feedback": {
            "get": {
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "One-click feedback",
                "parameters": [
                    {"type": "string", "name": "token", "in": "query", "required": true},
                    {"type": "string", "name": "verdict", "in": "query", "required": true}
                ],
                "responses": {"201": {"description": "Feedback recorded"}, "401": {"description": "Invalid or expired token"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["feedback"],
                "summary": "Submit feedback",
                "parameters": [{"description": "Verdict", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.FeedbackRequest"}}],
                "responses": {
                    "201": {"description": "Feedback recorded"},
                    "400": {"description": "Invalid verdict"},
                    "401": {"description": "Invalid or expired token"},
                    "404": {"description": "Document not found"}
                }
            }
        }
    },
    "definitions": {
        "handler.FeedbackRequest": {
            "type": "object",
            "required": ["token", "verdict"],
            "properties": {
                "token": {"type": "string"},
                "verdict": {"type": "string", "enum": ["correct", "incorrect", "partially_correct"]},
                "comment": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "materialflow API",
	Description:      "Material product extraction from supplier PDFs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
