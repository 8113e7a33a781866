package auth

import "fmt"

// PreconditionError is returned synchronously when an operation cannot start at all,
// for example Start without a launch context. No attempt exists when it is returned.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// ProviderError is the failure outcome of an attempt whose login flow was rejected
// or broken by the identity provider. Err is the underlying cause.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("facebook login failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IdentityLookupError is the failure outcome of an attempt whose login succeeded
// but whose follow-up /me lookup failed.
type IdentityLookupError struct {
	Err error
}

func (e *IdentityLookupError) Error() string {
	return fmt.Sprintf("facebook identity lookup failed: %v", e.Err)
}

func (e *IdentityLookupError) Unwrap() error { return e.Err }

// GraphError is the error object returned by the Graph API.
// See: https://developers.facebook.com/docs/graph-api/guides/error-handling
type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph api error %d (%s): %s", e.Code, e.Type, e.Message)
}
