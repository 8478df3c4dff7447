package model

// ReasonCode is a stable machine-readable code attached to every rejection.
type ReasonCode string

const (
	ReasonMultipleStatements ReasonCode = "MultipleStatements"
	ReasonNotReadOnly        ReasonCode = "NotReadOnly"
	ReasonForbiddenKeyword   ReasonCode = "ForbiddenKeyword"
	ReasonForbiddenConstruct ReasonCode = "ForbiddenConstruct"
	ReasonTableNotAllowed    ReasonCode = "TableNotAllowed"
	ReasonLimitExceeded      ReasonCode = "LimitExceeded"
	ReasonNoAccessibleTables ReasonCode = "NoAccessibleTables"
	ReasonTemplateUnmatched  ReasonCode = "TemplateUnmatched"
	ReasonExecutionTimeout   ReasonCode = "ExecutionTimeout"
	ReasonExecutionFailed    ReasonCode = "ExecutionFailed"
	ReasonEmptyQuestion      ReasonCode = "EmptyQuestion"
)

// Rejection is a structured, user-actionable refusal produced by any pipeline
// stage. It carries a stable reason code, a human-readable message, and
// optionally the offending SQL fragment. A Rejection is never executed.
type Rejection struct {
	Code     ReasonCode `json:"reason"`
	Message  string     `json:"message"`
	Fragment string     `json:"offending_fragment,omitempty"`
}

// Error implements the error interface so rejections can flow through
// ordinary error returns and be recovered with errors.As at boundaries.
func (r *Rejection) Error() string {
	return string(r.Code) + ": " + r.Message
}
