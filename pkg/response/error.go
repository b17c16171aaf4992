package response

import (
	"bloodbank/pkg/apperror"
)

// ErrorBody is the errors member of an error envelope.
type ErrorBody struct {
	Code    apperror.Code `json:"code"`
	Details any           `json:"details,omitempty"`
}

// FromError maps err onto an HTTP status and error envelope. Untyped errors
// are reported as INTERNAL_ERROR with the public message only.
func FromError(err error) (int, Response) {
	typed := apperror.As(err)
	if typed == nil {
		typed = apperror.Internal(err, "")
	}
	meta := apperror.MetadataFor(typed.Code())

	message := typed.Message()
	if message == "" || typed.Code() == apperror.CodeInternal {
		message = meta.PublicMessage
	}
	body := ErrorBody{Code: typed.Code()}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	return meta.HTTPStatus, Error(message, body)
}
