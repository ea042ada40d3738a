package odatakit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is matched by every *ProtocolError via errors.Is.
var ErrMalformed = errors.New("odata: malformed response")

// ErrBuilderConsumed is returned when a BatchRequestBuilder is used after Build.
var ErrBuilderConsumed = &BuildError{Reason: "batch builder already built"}

// BuildError reports invalid input to a request builder.
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string {
	return "odata: build: " + e.Reason
}

// TransportError wraps a failure returned by the Transport collaborator.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("odata: transport %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response that could not be parsed. The whole call
// fails; no partial result is returned alongside it.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("odata: malformed response: %s: %v", e.Reason, e.Err)
	}
	return "odata: malformed response: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(reason string, err error) *ProtocolError {
	return &ProtocolError{Reason: reason, Err: err}
}

// OperationError is the server's rejection of one operation, or of a whole
// changeset.
type OperationError struct {
	StatusCode int
	// Code and Message come from the OData error envelope when present.
	Code    string
	Message string
	Body    []byte
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "odata: operation failed with status %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(" (" + e.Code + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// newOperationError builds an OperationError, reading the standard
// `{"error":{"code":..,"message":..}}` envelope when the body carries one.
func newOperationError(status int, body []byte) *OperationError {
	opErr := &OperationError{StatusCode: status, Body: body}
	doc, err := decodeRecord(body)
	if err != nil || doc == nil {
		return opErr
	}
	if envelope, ok := doc["error"].(map[string]any); ok {
		opErr.Code, _ = envelope["code"].(string)
		opErr.Message, _ = envelope["message"].(string)
	}
	return opErr
}
