// Package docs регистрирует OpenAPI описание marketplace-service для /swagger.
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
    "paths": {
        "/sync/{platform}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Синхронизация заказов площадки",
                "parameters": [
                    {"type": "string", "description": "trendyol | woocommerce | n11 | ciceksepeti", "name": "platform", "in": "path", "required": true},
                    {"description": "accountId, from/to (RFC3339) или days", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/SyncRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SyncSummary"}}
                }
            }
        },
        "/sync/price-push": {
            "post": {
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Отправка цен и остатков",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/PricePushResult"}}
                }
            }
        },
        "/orders": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Список канонических заказов",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"},
                    {"type": "string", "name": "platform", "in": "query"},
                    {"type": "string", "name": "account_id", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "string", "name": "from", "in": "query"},
                    {"type": "string", "name": "to", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "SyncRequest": {
            "type": "object",
            "properties": {
                "accountId": {"type": "string"},
                "from": {"type": "string", "format": "date-time"},
                "to": {"type": "string", "format": "date-time"},
                "days": {"type": "integer"}
            }
        },
        "SyncSummary": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "ordersProcessed": {"type": "integer"},
                "ordersFailed": {"type": "integer"},
                "accountsFailed": {"type": "integer"},
                "error": {"type": "string"},
                "accounts": {"type": "array", "items": {"type": "object"}}
            }
        },
        "PricePushResult": {
            "type": "object",
            "properties": {
                "processed": {"type": "integer"},
                "failed": {"type": "integer"},
                "results": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "itemId": {"type": "string"},
                            "status": {"type": "string"},
                            "error": {"type": "string"}
                        }
                    }
                }
            }
        }
    }
}`

// SwaggerInfo метаданные API
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Marketplace Service API",
	Description:      "Синхронизация заказов, цен и остатков с торговыми площадками",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
