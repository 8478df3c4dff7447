package model

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
// Reason is set for pipeline rejections and carries the stable reason code.
type ErrorDetail struct {
	Code    int            `json:"code"`
	Reason  ReasonCode     `json:"reason,omitempty"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}
