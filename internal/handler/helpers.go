package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tabletalk/tabletalk/internal/model"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeRejection maps a pipeline rejection onto an HTTP status and writes the
// structured error envelope, including the stable reason code and, when
// present, the offending fragment.
func writeRejection(w http.ResponseWriter, rej *model.Rejection) {
	status := rejectionStatus(rej.Code)
	detail := model.ErrorDetail{
		Code:    status,
		Reason:  rej.Code,
		Message: rej.Message,
	}
	if rej.Fragment != "" {
		detail.Context = map[string]interface{}{"fragment": rej.Fragment}
	}
	writeJSON(w, status, model.ErrorResponse{Error: detail})
}

// rejectionStatus picks the HTTP status for a reason code. Validation and
// understanding failures are the caller's to fix; access denials are 403;
// execution trouble is the server's.
func rejectionStatus(code model.ReasonCode) int {
	switch code {
	case model.ReasonTableNotAllowed, model.ReasonNoAccessibleTables:
		return http.StatusForbidden
	case model.ReasonExecutionTimeout:
		return http.StatusGatewayTimeout
	case model.ReasonExecutionFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
