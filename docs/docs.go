// Package docs registers the Swagger document served at /swagger.
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
        "/auth/login": {
            "post": {"tags": ["auth"], "summary": "Sign in", "parameters": [{"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}}}
        },
        "/auth/logout": {
            "post": {"tags": ["auth"], "summary": "Sign out", "responses": {"204": {"description": "No Content"}}}
        },
        "/auth/me": {
            "get": {"tags": ["auth"], "summary": "Current user with a fresh points balance", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}
        },
        "/events/{id}": {
            "get": {"tags": ["events"], "summary": "Get event", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}], "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}, "404": {"description": "Not Found"}}}
        },
        "/events/{id}/checkouts": {
            "post": {"tags": ["checkouts"], "summary": "Open a checkout for an event", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}], "responses": {"201": {"description": "Created"}, "401": {"description": "Unauthorized"}, "404": {"description": "Not Found"}}}
        },
        "/checkouts/{id}": {
            "get": {"tags": ["checkouts"], "summary": "Get checkout", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "patch": {"tags": ["checkouts"], "summary": "Edit quantity, points or promo code", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}, {"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/UpdateCheckoutRequest"}}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "submission in progress"}}}
        },
        "/checkouts/{id}/promotion": {
            "post": {"tags": ["checkouts"], "summary": "Validate and apply the promo code", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}, {"in": "body", "name": "req", "schema": {"$ref": "#/definitions/ApplyPromotionRequest"}}], "responses": {"200": {"description": "OK"}, "409": {"description": "validation in progress or code changed"}, "422": {"description": "code rejected"}, "429": {"description": "rate limited"}, "503": {"description": "promotion service unavailable"}}},
            "delete": {"tags": ["checkouts"], "summary": "Remove the promo code", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/checkouts/{id}/submit": {
            "post": {"tags": ["checkouts"], "summary": "Submit the booking (idempotent)", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}, {"type": "string", "in": "header", "name": "Idempotency-Key"}], "responses": {"201": {"description": "Created"}, "409": {"description": "busy or not enough seats"}, "502": {"description": "booking rejected"}}}
        },
        "/transactions": {
            "get": {"tags": ["transactions"], "summary": "My transactions", "responses": {"200": {"description": "OK"}}}
        },
        "/transactions/{id}": {
            "get": {"tags": ["transactions"], "summary": "Get transaction with payment countdown", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/transactions/{id}/payment-proof": {
            "post": {"tags": ["transactions"], "summary": "Attach a payment proof URL", "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}, {"in": "body", "name": "req", "required": true, "schema": {"$ref": "#/definitions/PaymentProofRequest"}}], "responses": {"200": {"description": "OK"}, "409": {"description": "not waiting for payment"}, "410": {"description": "deadline passed"}}}
        },
        "/receipts": {
            "get": {"tags": ["transactions"], "summary": "My booking receipts", "parameters": [{"type": "integer", "in": "query", "name": "limit"}, {"type": "integer", "in": "query", "name": "offset"}], "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "LoginRequest": {"type": "object", "required": ["email", "password"], "properties": {"email": {"type": "string"}, "password": {"type": "string"}}},
        "UpdateCheckoutRequest": {"type": "object", "properties": {"quantity": {"type": "integer"}, "quantityDelta": {"type": "integer", "enum": [-1, 1]}, "pointsToUse": {"type": "integer"}, "useAllPoints": {"type": "boolean"}, "promoCode": {"type": "string"}}},
        "ApplyPromotionRequest": {"type": "object", "properties": {"code": {"type": "string"}}},
        "PaymentProofRequest": {"type": "object", "required": ["paymentProof"], "properties": {"paymentProof": {"type": "string"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "EventHub Checkout API",
	Description:      "Booking checkout for EventHub: quotes, promo codes, points and submission.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
