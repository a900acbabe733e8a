package errors

// Envelope is the structured error shape returned to callers. It carries
// the taxonomy kind, a human-readable message, and whether resubmitting
// the same call is expected to help. Callers never see a raw transport
// error or stack trace.
type Envelope struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// EnvelopeOf renders any error as an Envelope. An AppError passes through
// unchanged; anything else is reported as a non-retryable backend fault.
func EnvelopeOf(err error) Envelope {
	if appErr, ok := AsAppError(err); ok {
		return Envelope{
			Kind:      appErr.Kind,
			Message:   appErr.Error(),
			Retryable: appErr.Retryable,
		}
	}
	return Envelope{
		Kind:    KindBackend,
		Message: err.Error(),
	}
}
