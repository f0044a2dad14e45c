package domain

import "fmt"

// ValidationError reports input that fails a domain rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PermissionError reports an actor attempting an operation reserved for
// someone else, typically the director.
type PermissionError struct {
	Actor  string
	Action string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("%s is not allowed to %s", e.Actor, e.Action)
}

// NotFoundError reports a missing entity. Kind is "activity",
// "responsible" or "manager"; Ref identifies which one.
type NotFoundError struct {
	Kind string
	Ref  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Ref)
}

// InvalidStateError reports an operation that is well-formed but not
// applicable to the entity's current state, like approving a
// justification that is absent or already approved.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string {
	return e.Reason
}

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}
