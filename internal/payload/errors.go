package payload

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// MalformedEnvelope: the JSON envelope did not parse to an array of objects.
	MalformedEnvelope ErrorKind = iota + 1
	// TooLarge: a file part or raw body exceeded the size cap, or too many parts.
	TooLarge
	// Unreadable: the body could not be read as the declared content type.
	Unreadable
)

// bodyField is the Field of errors about a JSON request body.
const bodyField = "body"

// DecodeError is a client-caused decode failure. It never falls back to an
// empty payload.
type DecodeError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case MalformedEnvelope:
		if e.Field == bodyField {
			return "Invalid JSON in request body"
		}
		return fmt.Sprintf("Invalid JSON in %s field", e.Field)
	case TooLarge:
		if e.Field != "" {
			return fmt.Sprintf("File too large: %s", e.Field)
		}
		return "Request too large"
	default:
		return "Unreadable request body"
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsKind reports whether err is a DecodeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == kind
}
