package models

// APIResponse is the envelope every HTTP endpoint returns.
type APIResponse struct {
	Status  string `json:"status"`            // "ok" or "error"
	Message string `json:"message,omitempty"` // error detail or additional info
	Result  any    `json:"result,omitempty"`  // payload for successful responses
}

// Success builds a successful response with a result payload.
func Success(result any) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// SuccessWithMessage builds a successful response carrying a message.
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: "ok", Message: message, Result: result}
}

// Error builds an error response.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
