package http

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"headline"`
	Message string                 `json:"message,omitempty" example:"headline is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
