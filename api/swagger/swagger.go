package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "PAUD Admission API",
        "description": "Waitlist and admission service for early childhood education institutions",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Participants", "description": "Participant intake and lifecycle"},
        {"name": "Waitlist", "description": "Queue ordering and priority grouping"},
        {"name": "Admissions", "description": "Lottery passes and manual admission"},
        {"name": "Classes", "description": "Class rosters and capacity"},
        {"name": "Reports", "description": "Asynchronous report generation"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/participants": {
            "get": {
                "tags": ["Participants"],
                "summary": "List participants",
                "parameters": [
                    {"name": "institutionId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Participants"],
                "summary": "Register participant",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterParticipantRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/participants/{id}/status": {
            "patch": {
                "tags": ["Participants"],
                "summary": "Transition participant status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangeStatusRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/participants/{id}/waitlist": {
            "post": {
                "tags": ["Waitlist"],
                "summary": "Move participant onto the waitlist",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/participants/{id}/admit": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Admit a waiting participant into a class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualAdmitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/institutions/{id}/waitlist": {
            "get": {
                "tags": ["Waitlist"],
                "summary": "Get ordered waitlist snapshot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/institutions/{id}/waitlist/groups": {
            "get": {
                "tags": ["Waitlist"],
                "summary": "Group waiting participants by priority tier",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/institutions/{id}/waitlist/reseed": {
            "post": {
                "tags": ["Waitlist"],
                "summary": "Renumber the waitlist into priority order",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/institutions/{id}/admissions/run": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Run an admission pass",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/institutions/{id}/classes": {
            "get": {
                "tags": ["Classes"],
                "summary": "List classes",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/institutions/{id}/capacity": {
            "get": {
                "tags": ["Classes"],
                "summary": "Get capacity rollup",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a report job",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateReportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Get report job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished report",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        }
    },
    "definitions": {
        "Participant": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "application_id": {"type": "string"},
                "institution_id": {"type": "string"},
                "national_id": {"type": "string"},
                "full_name": {"type": "string"},
                "birth_date": {"type": "string"},
                "role": {"type": "string"},
                "status": {"type": "string"},
                "current_order": {"type": "integer"},
                "class_id": {"type": "string"},
                "identity_type": {"type": "integer"},
                "review_date": {"type": "string"},
                "reason": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "RegisterParticipantRequest": {
            "type": "object",
            "properties": {
                "application_id": {"type": "string"},
                "institution_id": {"type": "string"},
                "national_id": {"type": "string"},
                "full_name": {"type": "string"},
                "birth_date": {"type": "string"},
                "identity_type": {"type": "integer"}
            },
            "required": ["application_id", "institution_id", "national_id", "full_name", "birth_date"]
        },
        "ChangeStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["status"]
        },
        "ManualAdmitRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"}
            },
            "required": ["class_id"]
        },
        "CreateReportRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["waitlist", "admission"]},
                "institution_id": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["type", "institution_id", "format"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
