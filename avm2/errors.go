package avm2

import (
	"errors"
	"fmt"
)

// Fatal errors abort the current execution unit. Scripts cannot catch them.
var (
	ErrStackOverflow  = errors.New("avm2: call depth exceeded")
	ErrSuperNotCalled = errors.New("avm2: initializer used this or returned before calling its super initializer")
)

// ErrAmbiguous is the cause of the ReferenceError raised when a multiname
// matches traits in more than one of its namespaces.
var ErrAmbiguous = errors.New("avm2: ambiguous name")

// VerifyError reports malformed bytecode or an invalid class definition.
// It is raised before any instruction of the method runs, or when a class
// is linked.
type VerifyError struct {
	Code    int
	Message string
	Method  string
}

func (e *VerifyError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("avm2: VerifyError: Error #%d: %s (in %s)", e.Code, e.Message, e.Method)
	}
	return fmt.Sprintf("avm2: VerifyError: Error #%d: %s", e.Code, e.Message)
}

func verifyErrorf(code int, format string, args ...any) *VerifyError {
	return &VerifyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ThrownError carries a script exception. Exception handlers catch only
// this error type.
type ThrownError struct {
	Value Value
	cause error
}

func (e *ThrownError) Error() string {
	if o := e.Value.o; o != nil && o.IsError() {
		return "avm2: uncaught " + o.errorString()
	}
	return "avm2: uncaught exception: " + e.Value.String()
}

func (e *ThrownError) Unwrap() error { return e.cause }

// stackUnderflow is panicked by pop and recovered in Activation.run.
type stackUnderflow struct{}

// ---------------------------------------------------------------------------
// Script errors
// ---------------------------------------------------------------------------

// ErrorKind selects one of the built-in error classes.
type ErrorKind uint8

const (
	KindError ErrorKind = iota
	KindTypeError
	KindReferenceError
	KindRangeError
	KindArgumentError
	KindVerifyError
)

// throwError builds an error object of the given kind with a Flash error
// number, or none when code is 0, and returns it as a *ThrownError.
func (vm *VM) throwError(kind ErrorKind, code int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if code != 0 {
		msg = fmt.Sprintf("Error #%d: ", code) + msg
	}
	return &ThrownError{Value: ObjectValue(vm.NewError(kind, msg, code))}
}

func (vm *VM) typeError(code int, format string, args ...any) error {
	return vm.throwError(KindTypeError, code, format, args...)
}

func (vm *VM) referenceError(code int, format string, args ...any) error {
	return vm.throwError(KindReferenceError, code, format, args...)
}

func (vm *VM) nullReference(v Value) error {
	if v.IsUndefined() {
		return vm.typeError(1010, "A term is undefined and has no properties.")
	}
	return vm.typeError(1009, "Cannot access a property or method of a null object reference.")
}

func (vm *VM) ambiguous(mn *Multiname, on string) error {
	err := vm.referenceError(1000, "Ambiguous reference to %s on %s.", mn.LocalName(), on)
	err.(*ThrownError).cause = ErrAmbiguous
	return err
}

// IsCatchable reports whether err is a script exception.
func IsCatchable(err error) bool {
	var te *ThrownError
	return errors.As(err, &te)
}
