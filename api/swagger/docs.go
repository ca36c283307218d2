// Package swagger registers the OpenAPI document of the docqa HTTP API.
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
        "/documents": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "List the caller's documents, newest first",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/DocumentList"}}
                }
            }
        },
        "/documents/upload": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Upload a .txt, .md, .pdf or .docx file and schedule its ingestion",
                "parameters": [
                    {"type": "file", "description": "document", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Upload"}},
                    "400": {"description": "missing file", "schema": {"$ref": "#/definitions/Response"}},
                    "413": {"description": "file too large", "schema": {"$ref": "#/definitions/Response"}},
                    "415": {"description": "unsupported file type", "schema": {"$ref": "#/definitions/Response"}},
                    "429": {"description": "ingestion queue full", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/documents/{id}/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Ingestion status of one document",
                "parameters": [
                    {"type": "string", "description": "document id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Document"}},
                    "404": {"description": "not found", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/documents/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Delete a document with its chunks and upload",
                "parameters": [
                    {"type": "string", "description": "document id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}},
                    "404": {"description": "not found", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/documents/{id}/retry": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Re-ingest a failed document",
                "parameters": [
                    {"type": "string", "description": "document id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Upload"}},
                    "404": {"description": "not found", "schema": {"$ref": "#/definitions/Response"}},
                    "409": {"description": "document is not retryable", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/documents/search": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["query"],
                "summary": "Nearest chunks of the caller's completed documents",
                "parameters": [
                    {"description": "query", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/QueryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SearchResults"}},
                    "400": {"description": "invalid query", "schema": {"$ref": "#/definitions/Response"}},
                    "502": {"description": "embedding provider failure", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/documents/chat": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["query"],
                "summary": "Answer a question from the caller's documents with citations",
                "parameters": [
                    {"description": "query", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/QueryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Chat"}},
                    "400": {"description": "invalid query", "schema": {"$ref": "#/definitions/Response"}},
                    "408": {"description": "query timed out", "schema": {"$ref": "#/definitions/Response"}},
                    "502": {"description": "provider failure", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        }
    },
    "definitions": {
        "Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "http_code": {"type": "integer"},
                "message": {"type": "string"},
                "data": {},
                "request_id": {"type": "string"}
            }
        },
        "UploadData": {
            "type": "object",
            "properties": {
                "document_id": {"type": "string"},
                "filename": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "processing", "completed", "failed"]}
            }
        },
        "Upload": {
            "allOf": [
                {"$ref": "#/definitions/Response"},
                {"type": "object", "properties": {"data": {"$ref": "#/definitions/UploadData"}}}
            ]
        },
        "DocumentData": {
            "type": "object",
            "properties": {
                "document_id": {"type": "string"},
                "filename": {"type": "string"},
                "content_type": {"type": "string"},
                "size": {"type": "integer"},
                "status": {"type": "string", "enum": ["pending", "processing", "completed", "failed"]},
                "error": {"type": "string"},
                "chunk_count": {"type": "integer"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "Document": {
            "allOf": [
                {"$ref": "#/definitions/Response"},
                {"type": "object", "properties": {"data": {"$ref": "#/definitions/DocumentData"}}}
            ]
        },
        "DocumentList": {
            "allOf": [
                {"$ref": "#/definitions/Response"},
                {"type": "object", "properties": {"data": {"type": "array", "items": {"$ref": "#/definitions/DocumentData"}}}}
            ]
        },
        "QueryRequest": {
            "type": "object",
            "required": ["query"],
            "properties": {
                "query": {"type": "string"},
                "limit": {"type": "integer", "minimum": 1, "maximum": 20, "default": 3},
                "document_id": {"type": "string"}
            }
        },
        "SearchResult": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "document_id": {"type": "string"},
                "filename": {"type": "string"},
                "chunk_index": {"type": "integer"},
                "distance": {"type": "number"}
            }
        },
        "SearchResults": {
            "allOf": [
                {"$ref": "#/definitions/Response"},
                {"type": "object", "properties": {"data": {"type": "array", "items": {"$ref": "#/definitions/SearchResult"}}}}
            ]
        },
        "Source": {
            "type": "object",
            "properties": {
                "document_id": {"type": "string"},
                "filename": {"type": "string"}
            }
        },
        "ChatData": {
            "type": "object",
            "properties": {
                "answer": {"type": "string"},
                "metadata": {
                    "type": "object",
                    "properties": {
                        "total_chunks_found": {"type": "integer"},
                        "sources": {"type": "array", "items": {"$ref": "#/definitions/Source"}}
                    }
                }
            }
        },
        "Chat": {
            "allOf": [
                {"$ref": "#/definitions/Response"},
                {"type": "object", "properties": {"data": {"$ref": "#/definitions/ChatData"}}}
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

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "docqa API",
	Description:      "Upload documents and ask questions answered from them with citations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
