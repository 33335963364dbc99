package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Pass API",
        "description": "Pass authorization engine for campus gate passes",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session management"},
        {"name": "Passes", "description": "Pass requests and the approval chain"},
        {"name": "Gate", "description": "Gate-device scans and mobility events"},
        {"name": "Trust", "description": "Trust ledger and cooldown"},
        {"name": "Restrictions", "description": "Hard blocks and cohort restrictions"},
        {"name": "Delegations", "description": "Approval authority handovers"},
        {"name": "Leaves", "description": "Staff leave filing and review"},
        {"name": "Exports", "description": "Pass history exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "Tokens rotated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes": {
            "post": {
                "tags": ["Passes"],
                "summary": "Submit pass request",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitPassRequest"}}],
                "responses": {
                    "201": {"description": "Pass created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed window", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Student blocked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Passes"],
                "summary": "List pass requests",
                "responses": {
                    "200": {"description": "Passes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/pending": {
            "get": {
                "tags": ["Passes"],
                "summary": "Approver inbox",
                "responses": {
                    "200": {"description": "Pending requests", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/emergency": {
            "post": {
                "tags": ["Passes"],
                "summary": "Issue emergency pass",
                "responses": {
                    "201": {"description": "Pass issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}": {
            "get": {
                "tags": ["Passes"],
                "summary": "Get pass with approval chain",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Pass", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/decision": {
            "post": {
                "tags": ["Passes"],
                "summary": "Apply approver decision",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Decision recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Wrong approver", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Stale state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/passes/{id}/cancel": {
            "post": {
                "tags": ["Passes"],
                "summary": "Cancel own pass request",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Cancelled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/gate/scan": {
            "post": {
                "tags": ["Gate"],
                "summary": "Record gate scan",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}],
                "responses": {
                    "201": {"description": "Event stored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "No usable pass", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/gate/admission/{student_id}": {
            "get": {
                "tags": ["Gate"],
                "summary": "Check gate admission",
                "parameters": [{"name": "student_id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Admission verdict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/gate/anomalies": {
            "get": {
                "tags": ["Gate"],
                "summary": "List flagged scans",
                "responses": {
                    "200": {"description": "Flagged events", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/trust": {
            "get": {
                "tags": ["Trust"],
                "summary": "Trust ledger history",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Ledger entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Trust"],
                "summary": "Adjust trust score",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Adjusted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/restrictions": {
            "get": {
                "tags": ["Restrictions"],
                "summary": "Check student restrictions",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Restriction verdict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/restrictions/cohort": {
            "post": {
                "tags": ["Restrictions"],
                "summary": "Restrict cohort",
                "responses": {
                    "201": {"description": "Restriction set", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/delegations": {
            "put": {
                "tags": ["Delegations"],
                "summary": "Set delegation",
                "responses": {
                    "200": {"description": "Delegation installed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Proxy leave conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Delegations"],
                "summary": "List delegations with conflict flags",
                "responses": {
                    "200": {"description": "Delegations", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaves": {
            "post": {
                "tags": ["Leaves"],
                "summary": "File staff leave",
                "responses": {
                    "201": {"description": "Leave filed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/pass-history": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export pass history",
                "responses": {
                    "201": {"description": "Signed download link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
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
        "SubmitPassRequest": {
            "type": "object",
            "required": ["kind", "reason", "depart_at", "return_at"],
            "properties": {
                "kind": {"type": "string", "enum": ["OUTING", "LEAVE"]},
                "reason": {"type": "string"},
                "depart_at": {"type": "string", "format": "date-time"},
                "return_at": {"type": "string", "format": "date-time"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {
                "decision": {"type": "string", "enum": ["APPROVE", "REJECT"]},
                "reason": {"type": "string"}
            }
        },
        "ScanRequest": {
            "type": "object",
            "required": ["student_id", "action"],
            "properties": {
                "student_id": {"type": "string"},
                "action": {"type": "string", "enum": ["EXIT", "ENTRY"]},
                "occurred_at": {"type": "string", "format": "date-time"}
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
