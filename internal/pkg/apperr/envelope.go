package apperr

// Envelope is the uniform body shape for every HTTP response, success or
// business error alike. HTTP status stays 200; non-200 is reserved for
// transport failures (missing auth, unknown route, uncaught panic).
type Envelope struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	TraceID string `json:"traceId"`
}

// OK builds a success envelope.
func OK(data any, traceID string) Envelope {
	return Envelope{Code: CodeOK, Message: "", Data: data, TraceID: traceID}
}

// FromError builds an error envelope out of an *Error, localising Message
// via loc. A nil loc falls back to the error's own Message.
func FromError(e *Error, traceID string, loc func(code Code, fallback string) string) Envelope {
	msg := e.Message
	if loc != nil {
		msg = loc(e.Code, e.Message)
	}
	return Envelope{Code: e.Code, Message: msg, Data: nil, TraceID: traceID}
}
