package orchestrator

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a reference to a chunk with no work unit.
var ErrNotFound = errors.New("work unit not found")

// ErrAlreadyExists reports an injection of a chunk that already has a work
// unit.
var ErrAlreadyExists = errors.New("work unit already exists")

// ValidationError rejects an operator request before any state changes.
// Injection of an unknown chunk or a chunk without a goal document fails
// this way.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// InvalidStateError reports an operation applied to a unit in the wrong
// lifecycle state, such as answering a unit that asked no question.
type InvalidStateError struct {
	Chunk string
	Msg   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("chunk %s: %s", e.Chunk, e.Msg)
}

// PersistenceError wraps a state store failure. It is fatal: the daemon
// halts rather than continue scheduling against a store it cannot trust.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
