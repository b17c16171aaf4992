package response

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the envelope wrapping every API payload.
type Response struct {
	Status  string `json:"status"` // "success" or "error"
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

// Success wraps data in a success envelope.
func Success(message string, data any) Response {
	return Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	}
}

// Error returns an error envelope; errors carries field-level detail when present.
func Error(message string, errors any) Response {
	return Response{
		Status:  StatusError,
		Message: message,
		Errors:  errors,
	}
}
