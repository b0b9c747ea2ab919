// Package swagger registers the API description served at /swagger/index.html
package swagger

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
        "/ping": {
            "get": {
                "description": "Returns a basic message",
                "produces": ["application/json"],
                "tags": ["test"],
                "summary": "Endpoint just pings the server",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/rooms/public": {
            "get": {
                "description": "Joinable public rooms that are not full, oldest first. Streamer mode rooms are never listed.",
                "produces": ["application/json"],
                "tags": ["rooms"],
                "summary": "Lists public rooms",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/rooms/{code}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the live room, or the last persisted snapshot with live=false once the room is gone",
                "produces": ["application/json"],
                "tags": ["rooms"],
                "summary": "Gets a room",
                "parameters": [
                    {"type": "string", "description": "Bearer JWT token", "name": "Authorization", "in": "header", "required": true},
                    {"type": "string", "description": "Room code", "name": "code", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "401": {"description": "Unauthorized"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/proxy/health": {
            "get": {
                "description": "Cached health of every proxied game service. Services never checked are reported unhealthy.",
                "produces": ["application/json"],
                "tags": ["proxy"],
                "summary": "Game service health",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/session": {
            "post": {
                "description": "Exchanges a bearer token for a session cookie",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Opens a cookie session",
                "parameters": [
                    {"type": "string", "description": "Bearer JWT token", "name": "Authorization", "in": "header", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            },
            "delete": {
                "tags": ["session"],
                "summary": "Closes the cookie session",
                "responses": {"204": {"description": "No Content"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Gamebuddies API",
	Description:      "Lobby, presence and game routing service for Gamebuddies",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
