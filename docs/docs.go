// Package docs holds the OpenAPI document served at /swagger/index.html.
//
// Regenerate after changing handler annotations:
//
//	swag init -g cmd/server/main.go -o docs
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
		"/auth/register": {
			"post": {
				"tags": [
					"Auth"
				],
				"summary": "Create an account",
				"operationId": "register",
				"produces": [
					"application/json"
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/auth/login": {
			"post": {
				"tags": [
					"Auth"
				],
				"summary": "Sign in",
				"operationId": "login",
				"produces": [
					"application/json"
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/me": {
			"get": {
				"tags": [
					"Profile"
				],
				"summary": "Current profile",
				"operationId": "getMe",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			},
			"patch": {
				"tags": [
					"Profile"
				],
				"summary": "Edit profile fields",
				"operationId": "updateProfile",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/me/role": {
			"put": {
				"tags": [
					"Profile"
				],
				"summary": "Switch marketplace role",
				"operationId": "selectRole",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/me/provider": {
			"put": {
				"tags": [
					"Profile"
				],
				"summary": "Become a provider",
				"operationId": "onboardProvider",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/me/addresses": {
			"post": {
				"tags": [
					"Profile"
				],
				"summary": "Save an address",
				"operationId": "addAddress",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/providers/{id}": {
			"get": {
				"tags": [
					"Profile"
				],
				"summary": "Public provider profile",
				"operationId": "getProvider",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/requests": {
			"post": {
				"tags": [
					"Requests"
				],
				"summary": "Post a service request",
				"operationId": "createRequest",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/requests/open": {
			"get": {
				"tags": [
					"Requests"
				],
				"summary": "Browse requests that accept offers",
				"operationId": "listOpenRequests",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/requests/mine": {
			"get": {
				"tags": [
					"Requests"
				],
				"summary": "The caller's requests",
				"operationId": "listMyRequests",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/requests/{id}": {
			"get": {
				"tags": [
					"Requests"
				],
				"summary": "Request detail",
				"operationId": "getRequest",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/requests/{id}/offers": {
			"post": {
				"tags": [
					"Offers"
				],
				"summary": "Make an offer on a request",
				"operationId": "submitOffer",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			},
			"get": {
				"tags": [
					"Offers"
				],
				"summary": "Offers on a request",
				"operationId": "listOffers",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/offers/{id}/accept": {
			"post": {
				"tags": [
					"Offers"
				],
				"summary": "Accept an offer",
				"operationId": "acceptOffer",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/chats": {
			"get": {
				"tags": [
					"Chats"
				],
				"summary": "The caller's chats",
				"operationId": "listChats",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/chats/{id}/messages": {
			"get": {
				"tags": [
					"Chats"
				],
				"summary": "Chat history (paginated)",
				"operationId": "listMessages",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			},
			"post": {
				"tags": [
					"Chats"
				],
				"summary": "Send a chat message",
				"operationId": "sendMessage",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/chats/{id}/complete": {
			"post": {
				"tags": [
					"Jobs"
				],
				"summary": "Mark the job of a chat as done",
				"operationId": "completeJob",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/requests/{id}/review": {
			"post": {
				"tags": [
					"Jobs"
				],
				"summary": "Review a completed job",
				"operationId": "submitReview",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/provider/jobs": {
			"get": {
				"tags": [
					"Jobs"
				],
				"summary": "The provider's jobs",
				"operationId": "providerJobs",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/provider/wallet": {
			"get": {
				"tags": [
					"Jobs"
				],
				"summary": "Earnings summary",
				"operationId": "wallet",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/ws": {
			"get": {
				"tags": [
					"Realtime"
				],
				"summary": "Follow live updates",
				"operationId": "feed",
				"produces": [
					"application/json"
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"responses": {
					"default": {
						"description": "See ErrorResponse for failures",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"handlers.ErrorResponse": {
			"type": "object",
			"properties": {
				"code": {
					"type": "string",
					"example": "precondition_failed"
				},
				"message": {
					"type": "string",
					"example": "request no longer accepts offers"
				},
				"request_id": {
					"type": "string",
					"example": "123e4567-e89b-12d3-a456-426614174000"
				}
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:		  "1.0",
	Host:			 "",
	BasePath:		 "/api/v1",
	Schemes:		  []string{},
	Title:			"Services Marketplace API",
	Description:	  "Customers post service requests, providers make offers, an accepted offer opens a chat and the completed job can be reviewed.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:		"{{",
	RightDelim:	   "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
