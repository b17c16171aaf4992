// Package swagger registers the OpenAPI document served at /swagger.
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
		"/blood/inventory/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"inventory"
				],
				"summary": "Inventory levels",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				}
			}
		},
		"/blood/inventory/adjust/": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"inventory"
				],
				"summary": "Adjust inventory",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "payload",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.AdjustInventoryRequest"
						}
					}
				]
			}
		},
		"/blood/inventory/reconcile/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"inventory"
				],
				"summary": "Reconcile ledger",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				}
			}
		},
		"/blood/transactions/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"inventory"
				],
				"summary": "Inventory transactions",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "blood_group",
						"name": "blood_group",
						"in": "query",
						"required": false
					},
					{
						"type": "string",
						"description": "reason",
						"name": "reason",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "page",
						"name": "page",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "limit",
						"name": "limit",
						"in": "query",
						"required": false
					}
				]
			}
		},
		"/blood/dashboard/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"dashboard"
				],
				"summary": "Dashboard",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				}
			}
		},
		"/blood/donations/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"donations"
				],
				"summary": "List donations",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "status",
						"name": "status",
						"in": "query",
						"required": false
					},
					{
						"type": "string",
						"description": "start_date",
						"name": "start_date",
						"in": "query",
						"required": false
					},
					{
						"type": "string",
						"description": "end_date",
						"name": "end_date",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "page",
						"name": "page",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "limit",
						"name": "limit",
						"in": "query",
						"required": false
					}
				]
			}
		},
		"/blood/donations/create/": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"donations"
				],
				"summary": "Create donation request",
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Idempotency-Key",
						"name": "Idempotency-Key",
						"in": "header",
						"required": false
					},
					{
						"description": "payload",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.CreateDonationRequest"
						}
					}
				]
			}
		},
		"/blood/donations/{id}/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"donations"
				],
				"summary": "Donation detail",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/blood/donations/{id}/action/": {
			"patch": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"donations"
				],
				"summary": "Review donation",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "payload",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.ReviewDonationRequest"
						}
					}
				]
			}
		},
		"/blood/requests/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"requests"
				],
				"summary": "List blood requests",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "status",
						"name": "status",
						"in": "query",
						"required": false
					},
					{
						"type": "boolean",
						"description": "urgency",
						"name": "urgency",
						"in": "query",
						"required": false
					},
					{
						"type": "string",
						"description": "start_date",
						"name": "start_date",
						"in": "query",
						"required": false
					},
					{
						"type": "string",
						"description": "end_date",
						"name": "end_date",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "page",
						"name": "page",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "limit",
						"name": "limit",
						"in": "query",
						"required": false
					}
				]
			}
		},
		"/blood/requests/create/": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"requests"
				],
				"summary": "Create blood request",
				"responses": {
					"201": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Idempotency-Key",
						"name": "Idempotency-Key",
						"in": "header",
						"required": false
					},
					{
						"description": "payload",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.CreateBloodRequestRequest"
						}
					}
				]
			}
		},
		"/blood/requests/{id}/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"requests"
				],
				"summary": "Blood request detail",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/blood/requests/{id}/action/": {
			"patch": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"requests"
				],
				"summary": "Fulfil or deny blood request",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "payload",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/service.ActionBloodRequestRequest"
						}
					}
				]
			}
		},
		"/blood/audit-logs/": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"audit"
				],
				"summary": "Get audit logs",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/response.Response"
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "action",
						"name": "action",
						"in": "query",
						"required": false
					},
					{
						"type": "string",
						"description": "entity_id",
						"name": "entity_id",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "page",
						"name": "page",
						"in": "query",
						"required": false
					},
					{
						"type": "integer",
						"description": "limit",
						"name": "limit",
						"in": "query",
						"required": false
					}
				]
			}
		}
	},
	"definitions": {
		"response.Response": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"message": {
					"type": "string"
				},
				"data": {},
				"errors": {}
			}
		},
		"service.CreateDonationRequest": {
			"type": "object",
			"properties": {
				"blood_group": {
					"type": "string"
				},
				"quantity": {
					"maximum": 1000,
					"minimum": 1,
					"type": "integer"
				},
				"notes": {
					"type": "string"
				}
			},
			"required": [
				"blood_group",
				"quantity"
			]
		},
		"service.ReviewDonationRequest": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"notes": {
					"type": "string"
				}
			},
			"required": [
				"status"
			]
		},
		"service.CreateBloodRequestRequest": {
			"type": "object",
			"properties": {
				"blood_group": {
					"type": "string"
				},
				"quantity": {
					"maximum": 1000,
					"minimum": 1,
					"type": "integer"
				},
				"patient_name": {
					"type": "string"
				},
				"hospital": {
					"type": "string"
				},
				"urgency": {
					"type": "boolean"
				},
				"notes": {
					"type": "string"
				}
			},
			"required": [
				"blood_group",
				"quantity",
				"patient_name",
				"hospital"
			]
		},
		"service.ActionBloodRequestRequest": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"notes": {
					"type": "string"
				}
			},
			"required": [
				"status"
			]
		},
		"service.AdjustInventoryRequest": {
			"type": "object",
			"properties": {
				"blood_group": {
					"type": "string"
				},
				"delta": {
					"maximum": 1000,
					"minimum": -1000,
					"type": "integer"
				},
				"notes": {
					"type": "string"
				}
			},
			"required": [
				"blood_group",
				"delta",
				"notes"
			]
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

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Blood Bank API",
	Description:      "Donation intake, hospital requests and ledger-backed blood inventory.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
