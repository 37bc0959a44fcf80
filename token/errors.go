package token

import "fmt"

// Reason classifies why a token was rejected. It is for logs and metrics only; callers
// outside this module see a single invalid-token error.
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonExpired   Reason = "expired"
	ReasonRevoked   Reason = "revoked"
	ReasonSignature Reason = "signature"
	ReasonWrongType Reason = "wrong_type"
)

// ValidationError is returned for every rejected token.
type ValidationError struct {
	Reason Reason
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "token: " + string(e.Reason)
	}
	return fmt.Sprintf("token: %s: %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
