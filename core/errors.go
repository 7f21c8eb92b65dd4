package core

import "errors"

var (
	// ErrConfiguration marks invalid geometry at construction.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrShiftRange marks a shift range that is not odd or does not fit in N.
	ErrShiftRange = errors.New("invalid shift range")
	// ErrShapeMismatch marks an input or state whose dimensions disagree with the config.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrDegenerateAddress marks an address that cannot be normalized.
	ErrDegenerateAddress = errors.New("degenerate address")
	// ErrInvalidWriteOperand marks a NaN or Inf in a write address, erase or add vector.
	ErrInvalidWriteOperand = errors.New("invalid write operand")
	// ErrInvalidReadOperand marks a NaN or Inf in a read head's raw parameters.
	ErrInvalidReadOperand = errors.New("invalid read operand")
	// ErrInvalidState marks a state that violates the address or finiteness invariants.
	ErrInvalidState = errors.New("invalid state")
)
