package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// ErrorType categorizes script failures.
type ErrorType string

const (
	ErrorTypeSyntax   ErrorType = "syntax_error"
	ErrorTypeRuntime  ErrorType = "runtime_error"
	ErrorTypeTimeout  ErrorType = "timeout_error"
	ErrorTypeSecurity ErrorType = "security_error"
	ErrorTypeInternal ErrorType = "internal_error"
)

// ScriptError is a structured failure of a sandboxed script. Message carries
// the script's own error text unchanged.
type ScriptError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

func (e *ScriptError) Error() string {
	return e.Message
}

// IsTimeout reports whether err is a sandbox timeout.
func IsTimeout(err error) bool {
	var scriptErr *ScriptError

	return errors.As(err, &scriptErr) && scriptErr.Type == ErrorTypeTimeout
}

func newTimeoutError(limit fmt.Stringer) *ScriptError {
	return &ScriptError{
		Type:    ErrorTypeTimeout,
		Message: "execution timeout after " + limit.String(),
	}
}

func newSecurityError(message string) *ScriptError {
	return &ScriptError{Type: ErrorTypeSecurity, Message: message}
}

// fromGoja converts an error returned by goja into a ScriptError.
func fromGoja(err error) *ScriptError {
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return &ScriptError{Type: ErrorTypeSyntax, Message: syntaxErr.Error()}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return fromValue(exception.Value(), exception.Error())
	}

	return &ScriptError{Type: ErrorTypeInternal, Message: err.Error()}
}

// fromValue converts a thrown or rejected JavaScript value. Error objects
// contribute their message property; other values are stringified.
func fromValue(value goja.Value, fallback string) *ScriptError {
	message := fallback
	name := ""

	if obj, ok := value.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			message = msg.String()
		}

		if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
			name = n.String()
		}
	} else if value != nil && !goja.IsUndefined(value) {
		message = value.String()
	}

	errType := ErrorTypeRuntime

	switch {
	case name == "SyntaxError":
		errType = ErrorTypeSyntax
	case strings.Contains(strings.ToLower(message), "not allowed"):
		errType = ErrorTypeSecurity
	}

	return &ScriptError{Type: errType, Message: message}
}
