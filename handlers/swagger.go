package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the gateway.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>contextforge-gateway Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the ingestion gateway.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "contextforge-gateway", "version": "v0.1.0" },
  "paths": {
    "/api/documents/upload": {
      "post": {
        "summary": "Store one PDF",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"}}}}}},
        "responses": { "200": { "description": "stored, docId returned" }, "400": { "description": "not a PDF or missing file" }, "409": { "description": "object exists" }, "503": { "description": "storage unavailable" } }
      }
    },
    "/api/documents/ingest": {
      "post": {
        "summary": "Dispatch a stored document to the indexing backend",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"docId":{"type":"string"},"filename":{"type":"string"}}}}}},
        "responses": { "200": { "description": "queued" }, "404": { "description": "document not stored" }, "502": { "description": "indexing backend refused or unreachable" } }
      }
    },
    "/api/documents/batch": {
      "post": {
        "summary": "Upload and ingest up to 10 files sequentially",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"files":{"type":"array","items":{"type":"string","format":"binary"}}}}}}},
        "responses": { "202": { "description": "batch accepted, batchId returned" }, "400": { "description": "no files or too many" } }
      }
    },
    "/api/batches/{id}": {
      "get": { "summary": "Batch progress snapshot", "responses": { "200": { "description": "per-item status" }, "404": { "description": "unknown batch" } } }
    },
    "/api/query": {
      "post": {
        "summary": "Ask a question over ingested documents",
        "parameters": [ { "name": "X-Upload-Batch", "in": "header", "required": false, "schema": {"type":"string"} } ],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"question":{"type":"string"},"doc_ids":{"type":"array","items":{"type":"string"}}}}}}},
        "responses": { "200": { "description": "answer relayed verbatim" }, "400": { "description": "empty question" }, "409": { "description": "upload in progress" }, "502": { "description": "answer backend unreachable" } }
      }
    },
    "/api/documents": { "get": { "summary": "List documents, newest first", "responses": { "200": { "description": "documents" } } } },
    "/api/documents/{id}": { "get": { "summary": "Get one document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } } },
    "/api/blobs/{token}": { "get": { "summary": "Fetch a stored PDF by signed token", "responses": { "200": { "description": "PDF bytes" }, "403": { "description": "invalid token" }, "410": { "description": "expired token" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
