package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Retryable tells clients whether resubmitting the same request can
	// succeed without changes.
	Retryable bool `json:"retryable,omitempty"`
	Details   any  `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
