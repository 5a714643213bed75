package errors

const (
	HttpInternalError         = "internal_error"
	HttpInvalidIDError        = "invalid_id"
	HttpComputationNotFound   = "computation_not_found"
	HttpGroupNotFoundError    = "group_not_found"
	HttpNotGroupComputation   = "not_group_computation"
	HttpStoreUnavailableError = "store_unavailable"
)

// ErrorResponse is the error response body for preview API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
