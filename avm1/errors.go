package avm1

import (
	"errors"
	"fmt"
)

// Fatal errors abort the current execution unit. Scripts cannot catch them.
var (
	ErrInvalidAction  = errors.New("avm1: invalid action")
	ErrStackUnderflow = errors.New("avm1: operand stack underflow")
	ErrBadRegister    = errors.New("avm1: register index out of range")
	ErrBadJump        = errors.New("avm1: jump target outside the code")
	ErrStackOverflow  = errors.New("avm1: call depth exceeded")
)

// ThrownError carries a value raised by the Throw action. It is the only
// error a Try block catches.
type ThrownError struct {
	Value Value
}

func (e *ThrownError) Error() string {
	if o := e.Value.o; o != nil {
		if p := o.props.get("message", true); p != nil && p.value.kind == KindString {
			return fmt.Sprintf("avm1: uncaught %s: %s", o.className(), p.value.s)
		}
	}
	return fmt.Sprintf("avm1: uncaught exception: %s", e.Value.String())
}

// stackUnderflow is panicked by pop and recovered at the activation
// boundary.
type stackUnderflow struct{}
