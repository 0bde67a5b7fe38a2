package sns

import (
	"errors"
	"fmt"
)

// Error types of the SNS error envelope.
const (
	TypeSender   = "Sender"
	TypeReceiver = "Receiver"
)

// Error codes returned by the dispatcher.
const (
	CodeInvalidAction    = "InvalidAction"
	CodeInvalidParameter = "InvalidParameter"
	CodeInternalFailure  = "InternalFailure"
)

const internalFailureMessage = "The request processing failed because of an unknown error"

// ClientError is a request problem reported to the caller as a Sender error
// with HTTP status 400.
type ClientError struct {
	Code    string
	Message string
}

func (e *ClientError) Error() string {
	return e.Code + ": " + e.Message
}

// ErrMissingParameter is returned by Publish when PhoneNumber or Message is
// absent or empty.
var ErrMissingParameter = &ClientError{
	Code:    CodeInvalidParameter,
	Message: "Missing required parameter PhoneNumber or Message",
}

func invalidAction(action string) *ClientError {
	return &ClientError{
		Code:    CodeInvalidAction,
		Message: fmt.Sprintf("The action %s is not valid", action),
	}
}

// asClientError reports whether err is, or wraps, a *ClientError.
func asClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
