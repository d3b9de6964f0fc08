package common

import "net/http"

// SuccessResponse is the envelope written by every successful endpoint.
type SuccessResponse struct {
	Status  int         `json:"status"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ErrorResponse carries a gateway, validation or lookup failure. Data holds
// the gateway error code when there is one.
type ErrorResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}, message string) SuccessResponse {
	return newSuccess(http.StatusOK, data, message)
}

// NewAcceptedResponse reports work that succeeded but still has a deferred step.
func NewAcceptedResponse(data interface{}, message string) SuccessResponse {
	return newSuccess(http.StatusAccepted, data, message)
}

func newSuccess(status int, data interface{}, message string) SuccessResponse {
	if message == "" {
		message = "success"
	}
	return SuccessResponse{Status: status, Success: true, Message: message, Data: data}
}

func NewErrorResponse(message string, data interface{}, status int) ErrorResponse {
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	return ErrorResponse{Status: status, Success: false, Message: message, Data: data}
}
