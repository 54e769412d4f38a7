package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campusware SIS API",
        "description": "Student information system core: request workflows, course registration, waitlists and the student ledger.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Courses", "description": "Course catalog"},
        {"name": "Registration", "description": "Registration, drops and waitlists"},
        {"name": "Requests", "description": "Student request approval workflows"},
        {"name": "Financial", "description": "Student ledger, payments and plans"},
        {"name": "Grades", "description": "Grade posting and GPA"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Exchange a refresh token for a new access token",
                "responses": {
                    "200": {"description": "Tokens rotated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke the current refresh token",
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List catalog courses",
                "parameters": [
                    {"name": "semester", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Courses", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get a course with prerequisites",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Course", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/waitlist": {
            "get": {
                "tags": ["Registration"],
                "summary": "List a course's waitlist in position order",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Waitlist entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations": {
            "post": {
                "tags": ["Registration"],
                "summary": "Register the authenticated student for a course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrollment and pending tuition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Course full or already enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Window closed, schedule conflict, prerequisites or hold", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/drop": {
            "post": {
                "tags": ["Registration"],
                "summary": "Drop the authenticated student from a course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "200": {"description": "Drop result with refund tier", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlists": {
            "post": {
                "tags": ["Registration"],
                "summary": "Join a full course's waitlist",
                "responses": {
                    "201": {"description": "Waitlist entry with position", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Open seats or already waitlisted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waitlists/leave": {
            "post": {
                "tags": ["Registration"],
                "summary": "Leave a course's waitlist",
                "responses": {
                    "204": {"description": "Removed"}
                }
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List student requests visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Requests", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Submit a student request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRequestRequest"}}
                ],
                "responses": {
                    "201": {"description": "Request in review with first approver", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No workflow defined", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get a student request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Request with steps and history", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/workflow": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get workflow steps with per-step status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Projected steps", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/approve": {
            "post": {
                "tags": ["Requests"],
                "summary": "Approve the current workflow step",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Decision result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the current approver", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not in review", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/reject": {
            "post": {
                "tags": ["Requests"],
                "summary": "Reject the request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Decision result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/financial/records": {
            "get": {
                "tags": ["Financial"],
                "summary": "List the authenticated student's ledger records",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Ledger records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/financial/payments": {
            "post": {
                "tags": ["Financial"],
                "summary": "Settle a pending ledger record",
                "responses": {
                    "200": {"description": "Settled record", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Record not payable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/financial/payment-plans": {
            "post": {
                "tags": ["Financial"],
                "summary": "Split a pending tuition record into monthly installments",
                "responses": {
                    "201": {"description": "Plan and installments", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/grade": {
            "post": {
                "tags": ["Grades"],
                "summary": "Record a final grade on an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Grade posted"},
                    "409": {"description": "Enrollment not active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/me/gpa": {
            "get": {
                "tags": ["Grades"],
                "summary": "Get the authenticated student's GPA",
                "responses": {
                    "200": {"description": "Credit-weighted GPA", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RegisterRequest": {
            "type": "object",
            "required": ["course_id"],
            "properties": {
                "course_id": {"type": "string"}
            }
        },
        "CreateRequestRequest": {
            "type": "object",
            "required": ["type", "description"],
            "properties": {
                "type": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "comments": {"type": "string"},
                "reason": {"type": "string"}
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
                "status": {"type": "integer"},
                "details": {"type": "object"}
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
