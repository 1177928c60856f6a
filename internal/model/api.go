package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the envelope for list endpoints.
type ListResponse struct {
	Data  any          `json:"data"`
	Total int          `json:"total"`
	Meta  ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeBadGateway        = "BAD_GATEWAY"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodeExportFailed      = "EXPORT_FAILED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// Intake is the set of free-form fields a user fills in before generation.
type Intake struct {
	ProjectName          string   `json:"project_name"`
	Requirements         string   `json:"requirements"`
	TechnicalConstraints string   `json:"technical_constraints,omitempty"`
	ConcurrentUsers      string   `json:"concurrent_users,omitempty"`
	DataVolume           string   `json:"data_volume,omitempty"`
	Compliance           []string `json:"compliance,omitempty"`
	IntegrationNeeds     string   `json:"integration_needs,omitempty"`
	ReferenceCompanies   []string `json:"reference_companies,omitempty"`
}

// IntakeOptions lists the selectable values offered on the intake form.
type IntakeOptions struct {
	Compliance         []string `json:"compliance"`
	ReferenceCompanies []string `json:"reference_companies"`
}

// RefineRequest is the request body for POST /v1/views/{id}/refine.
type RefineRequest struct {
	Feedback string `json:"feedback"`
}

// OpenProjectRequest is the request body for POST /v1/views/{id}/open.
type OpenProjectRequest struct {
	ProjectID string `json:"project_id"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	APIKey string `json:"api_key"`
	Client string `json:"client,omitempty"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArchiveResponse is the response for POST /v1/projects/{id}/export/archive.
type ArchiveResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Agent     string `json:"agent"`
	SSEBroker string `json:"sse_broker,omitempty"`
	Projects  int    `json:"projects"`
	Uptime    int64  `json:"uptime_seconds"`
}
