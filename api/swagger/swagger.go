package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "OMR Grade API",
        "description": "Scan ingestion, review, scoring and item analysis for OMR answer sheets",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Operator login"},
        {"name": "Scans", "description": "Sheet upload, review queue and corrections"},
        {"name": "Scores", "description": "Results, exports and re-grading"},
        {"name": "Analytics", "description": "Reliability and item statistics"}
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Operator login",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/scans": {
            "get": {
                "tags": ["Scans"],
                "summary": "List scans",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "exam", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "exclude_scored", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Scans"],
                "summary": "Upload a scanned answer sheet",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "exam_id", "in": "formData", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scans/{id}": {
            "get": {
                "tags": ["Scans"],
                "summary": "Get scan",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/scans/{id}/review": {
            "post": {
                "tags": ["Scans"],
                "summary": "Correct a scan",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Scan finalized or changed concurrently"}
                }
            }
        },
        "/scans/{id}/overlay": {
            "get": {
                "tags": ["Scans"],
                "summary": "Render the marks overlay",
                "security": [{"BearerAuth": []}],
                "produces": ["image/png"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PNG image"}
                }
            }
        },
        "/scans/image": {
            "get": {
                "tags": ["Scans"],
                "summary": "Download a scan image via signed token",
                "produces": ["image/png"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Image"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        },
        "/exams/{id}/scores": {
            "get": {
                "tags": ["Scores"],
                "summary": "List exam scores",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exams/{id}/export": {
            "get": {
                "tags": ["Scores"],
                "summary": "Export exam scores",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/exams/{id}/recompute": {
            "post": {
                "tags": ["Scores"],
                "summary": "Re-grade an exam against current answer keys",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scores/bulk": {
            "post": {
                "tags": ["Scores"],
                "summary": "Import scores in bulk",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkScoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analysis/exams/{id}": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Exam analytics",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Scan": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "exam_id": {"type": "string"},
                "student_id": {"type": "string"},
                "image_path": {"type": "string"},
                "extracted_student_number": {"type": "string"},
                "extracted_set_code": {"type": "string"},
                "answers": {"type": "array", "items": {"type": "string"}},
                "confidence": {"type": "number"},
                "status": {"type": "string", "enum": ["pending", "needs_review", "ready", "scored", "rejected"]},
                "issues": {"type": "array", "items": {"type": "string"}},
                "revision": {"type": "integer"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "ScoreRow": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "student_number": {"type": "string"},
                "full_name": {"type": "string"},
                "set_code": {"type": "string"},
                "raw_score": {"type": "integer"},
                "percent": {"type": "number"}
            }
        },
        "ExamAnalytics": {
            "type": "object",
            "properties": {
                "exam_id": {"type": "string"},
                "kr20": {"type": "number"},
                "average_score": {"type": "number"},
                "average_percent": {"type": "number"},
                "respondents": {"type": "integer"},
                "item_stats": {"type": "array", "items": {"$ref": "#/definitions/ItemStat"}}
            }
        },
        "ItemStat": {
            "type": "object",
            "properties": {
                "item": {"type": "integer"},
                "difficulty": {"type": "number"},
                "discrimination_index": {"type": "number"},
                "point_biserial": {"type": "number"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "ReviewScanRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "set_code": {"type": "string"},
                "answers": {"type": "array", "items": {"type": "string"}},
                "revision": {"type": "integer"}
            },
            "required": ["student_id", "set_code", "answers", "revision"]
        },
        "BulkScoreRequest": {
            "type": "object",
            "properties": {
                "exam_id": {"type": "string"},
                "entries": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/BulkScoreEntry"}
                }
            },
            "required": ["exam_id", "entries"]
        },
        "BulkScoreEntry": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "set_code": {"type": "string"},
                "answers": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["student_id", "set_code", "answers"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
