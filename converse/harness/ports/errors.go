package harnessports

import "fmt"

// EndpointError reports a network or service-side failure of the model
// endpoint. It is transient from the caller's perspective; retry policy is a
// caller concern, the driver never retries.
type EndpointError struct {
	Provider string
	ModelID  string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%s endpoint call failed for model %s: %v", e.Provider, e.ModelID, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// UnsupportedParameterError reports a configuration mismatch: a supplied
// inference parameter or request feature is not accepted by the target model
// family. Fatal for the call.
type UnsupportedParameterError struct {
	Provider  string
	ModelID   string
	Parameter string
	Reason    string
}

func (e *UnsupportedParameterError) Error() string {
	return fmt.Sprintf("%s model %s does not support %s: %s", e.Provider, e.ModelID, e.Parameter, e.Reason)
}

// MalformedResponseError reports an endpoint response that cannot be parsed
// into the expected content-block shape. The response is untrusted; fatal.
type MalformedResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s returned a malformed response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s returned a malformed response: %s", e.Provider, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
