package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Portal Registration API",
        "description": "Course registration and enrollment transaction engine",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Registration", "description": "Eligibility, course selection and enrollment"},
        {"name": "Periods", "description": "Academic period browser"}
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
        "/api/v1/registration/eligibility": {
            "get": {
                "tags": ["Registration"],
                "summary": "Check registration eligibility for a period",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string", "description": "Defaults to the student id in the access token"},
                    {"name": "periodId", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Eligibility result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/registration/courses": {
            "get": {
                "tags": ["Registration"],
                "summary": "List selectable courses for a student and program",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string", "description": "Defaults to the student id in the access token"},
                    {"name": "programId", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Core and elective courses tagged with prereq_met", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/registration": {
            "post": {
                "tags": ["Registration"],
                "summary": "Submit a course registration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Registration committed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already registered or batch conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Ineligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid selection or quota exceeded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/registration/statement": {
            "get": {
                "tags": ["Registration"],
                "summary": "Export a student's enrollment and billing statement",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string", "description": "Defaults to the student id in the access token"},
                    {"name": "periodId", "in": "query", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Statement file"}
                }
            }
        },
        "/api/v1/periods": {
            "get": {
                "tags": ["Periods"],
                "summary": "List academic periods",
                "parameters": [
                    {"name": "programType", "in": "query", "type": "string", "enum": ["ONSITE", "ONLINE"]},
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Periods with derived status", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["student_id", "period_id", "course_ids"],
            "properties": {
                "student_id": {"type": "string"},
                "period_id": {"type": "string"},
                "course_ids": {"type": "array", "items": {"type": "string"}}
            }
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
