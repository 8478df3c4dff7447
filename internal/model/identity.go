package model

// Identity is the authenticated caller of the pipeline, supplied by the auth
// layer. The pipeline trusts it as already authenticated and derives table
// permissions from Role only, never from UserID.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
