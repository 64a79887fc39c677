// Package docs holds the OpenAPI description served at /swagger when
// SWAGGER_ENABLED is set. Regenerate with `swag init -g cmd/dogbloodgpt/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Auth"], "summary": "Create an account",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegisterRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TokenResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"], "summary": "Log in",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TokenResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/user/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Auth"], "summary": "Current user",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UserResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/user/blood-tests": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Blood tests"], "summary": "List analyses, newest first",
                "produces": ["application/json"],
                "parameters": [{"in": "query", "name": "limit", "type": "integer"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handlers.BloodTestSummary"}}},
                    "304": {"description": "Not Modified"}
                }
            }
        },
        "/blood-test/upload": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Blood tests"], "summary": "Upload a PDF for analysis",
                "consumes": ["multipart/form-data"], "produces": ["application/json"],
                "parameters": [
                    {"in": "formData", "name": "file", "type": "file", "required": true},
                    {"in": "header", "name": "Idempotency-Key", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/blood-test/{test_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Blood tests"], "summary": "One analysis",
                "parameters": [{"in": "path", "name": "test_id", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.BloodTestResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/blood-test/{test_id}/download": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Blood tests"], "summary": "Download the PDF report",
                "produces": ["application/pdf"],
                "parameters": [{"in": "path", "name": "test_id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/chat/ask": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Chat"], "summary": "Ask about an analysis",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AskRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AskResponse"}}}
            }
        },
        "/chat/{session_id}/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Chat"], "summary": "Conversation about an analysis",
                "parameters": [{"in": "path", "name": "session_id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ChatHistoryResponse"}}}
            }
        },
        "/payments/create-checkout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Payments"], "summary": "Buy credits",
                "consumes": ["application/x-www-form-urlencoded"], "produces": ["application/json"],
                "parameters": [
                    {"in": "formData", "name": "credits", "type": "integer", "required": true},
                    {"in": "formData", "name": "host_url", "type": "string", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CheckoutResponse"}}}
            }
        },
        "/payments/status/{session_id}": {
            "get": {
                "tags": ["Payments"], "summary": "Checkout status",
                "parameters": [{"in": "path", "name": "session_id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PaymentStatusResponse"}}}
            }
        },
        "/webhook/stripe": {
            "post": {
                "tags": ["Payments"], "summary": "Payment webhook",
                "parameters": [{"in": "header", "name": "Stripe-Signature", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WebhookResponse"}}}
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {
            "request_id": {"type": "string"}, "code": {"type": "string"}, "message": {"type": "string"}}},
        "handlers.RegisterRequest": {"type": "object", "required": ["email", "password", "full_name"], "properties": {
            "email": {"type": "string"}, "password": {"type": "string"}, "full_name": {"type": "string"}}},
        "handlers.LoginRequest": {"type": "object", "required": ["email", "password"], "properties": {
            "email": {"type": "string"}, "password": {"type": "string"}}},
        "handlers.UserResponse": {"type": "object", "properties": {
            "id": {"type": "string"}, "email": {"type": "string"}, "full_name": {"type": "string"}, "credits": {"type": "integer"}}},
        "handlers.TokenResponse": {"type": "object", "properties": {
            "access_token": {"type": "string"}, "token_type": {"type": "string"}, "user": {"$ref": "#/definitions/handlers.UserResponse"}}},
        "handlers.UploadResponse": {"type": "object", "properties": {
            "test_id": {"type": "string"}, "analysis": {"type": "string"}, "status": {"type": "string"}, "credits_remaining": {"type": "integer"}}},
        "handlers.BloodTestResponse": {"type": "object", "properties": {
            "id": {"type": "string"}, "filename": {"type": "string"}, "analysis": {"type": "string"}, "status": {"type": "string"}, "created_at": {"type": "string"}}},
        "handlers.BloodTestSummary": {"type": "object", "properties": {
            "id": {"type": "string"}, "filename": {"type": "string"}, "status": {"type": "string"}, "created_at": {"type": "string"}}},
        "handlers.AskRequest": {"type": "object", "required": ["message", "session_id"], "properties": {
            "message": {"type": "string"}, "session_id": {"type": "string"}}},
        "handlers.AskResponse": {"type": "object", "properties": {"response": {"type": "string"}}},
        "handlers.ChatHistoryResponse": {"type": "object", "properties": {
            "session_id": {"type": "string"},
            "messages": {"type": "array", "items": {"type": "object", "properties": {
                "role": {"type": "string"}, "content": {"type": "string"}, "timestamp": {"type": "string"}}}}}},
        "handlers.CheckoutResponse": {"type": "object", "properties": {
            "url": {"type": "string"}, "session_id": {"type": "string"}}},
        "handlers.PaymentStatusResponse": {"type": "object", "properties": {
            "status": {"type": "string"}, "payment_status": {"type": "string"}, "amount_total": {"type": "integer"}, "currency": {"type": "string"}}},
        "handlers.WebhookResponse": {"type": "object", "properties": {"status": {"type": "string"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "DogBloodGPT API",
	Description:      "Canine blood test analysis with credits, reports and follow-up chat.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
