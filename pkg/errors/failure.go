package errors

// Failure is the structured result handed to the boundary layer, which turns
// it into a transport response.
type Failure struct {
	Kind           Kind   `json:"kind"`
	Code           Code   `json:"code"`
	HTTPStatusHint int    `json:"http_status_hint"`
	Message        string `json:"message"`
	Details        any    `json:"details,omitempty"`
}

// ToFailure converts any error into a Failure. Untyped errors become Internal
// and never leak their message.
func ToFailure(err error) Failure {
	if err == nil {
		return Failure{}
	}
	typed := As(err)
	if typed == nil {
		meta := MetadataFor(CodeInternal)
		return Failure{
			Kind:           meta.Kind,
			Code:           CodeInternal,
			HTTPStatusHint: meta.HTTPStatus,
			Message:        meta.PublicMessage,
		}
	}

	meta := MetadataFor(typed.Code())
	msg := typed.Message()
	if meta.Kind == KindInternal || msg == "" {
		msg = meta.PublicMessage
	}
	f := Failure{
		Kind:           meta.Kind,
		Code:           typed.Code(),
		HTTPStatusHint: meta.HTTPStatus,
		Message:        msg,
	}
	if meta.DetailsAllowed {
		f.Details = typed.Details()
	}
	return f
}
