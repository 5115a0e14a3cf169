package dispatch

import "encoding/json"

// Outcome is the terminal state of one dispatch cycle.
type Outcome string

const (
	// OutcomeSuccess: response parsed, state updated, result returned.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial: text received but structured extraction failed; the
	// raw text is returned and structured state fields stay untouched.
	OutcomePartial Outcome = "partial_success"
	// OutcomeFailure: the call failed and no state was mutated.
	OutcomeFailure Outcome = "failure"
)

// ErrorKind labels dispatch failures for the transport layer.
type ErrorKind string

const (
	ErrInvalidService    ErrorKind = "invalid_service_id"
	ErrNetwork           ErrorKind = "network_error"
	ErrMalformedResponse ErrorKind = "malformed_response"
	ErrStorage           ErrorKind = "storage_error"
)

// Result is the tagged dispatch outcome:
// Success{Text, Structured} | PartialSuccess{Text} | Failure{Kind, Message}.
type Result struct {
	Outcome    Outcome
	Text       string
	Structured json.RawMessage
	Kind       ErrorKind
	Message    string
}

func Success(text string, structured json.RawMessage) Result {
	return Result{Outcome: OutcomeSuccess, Text: text, Structured: structured}
}

func PartialSuccess(text string) Result {
	return Result{Outcome: OutcomePartial, Text: text}
}

func Failure(kind ErrorKind, message string) Result {
	return Result{Outcome: OutcomeFailure, Kind: kind, Message: message}
}
