package assembly

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAborted is returned by Start when a stop request or context
	// cancellation interrupts the start sequence at a phase boundary.
	ErrAborted = errors.New("assembly: start aborted by stop request")

	// ErrNoInstance is returned by Resolve for stateless beans.
	ErrNoInstance = errors.New("assembly: bean has no instance")

	// ErrNoParentLifetime is returned when a producer from a parent scope is
	// invoked on a lifetime created without its parent lifetime.
	ErrNoParentLifetime = errors.New("assembly: parent lifetime not attached")

	// ErrStateUnreachable is returned by AwaitState when the lifetime reached a
	// terminal state other than the ones awaited.
	ErrStateUnreachable = errors.New("assembly: awaited state is unreachable")
)

// DuplicateKeyError represents two producers registered for one key in one scope.
type DuplicateKeyError struct {
	Key    Key
	First  string
	Second string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate provider for key %s: declared by %s and %s", e.Key, e.First, e.Second)
}

// MissingEntry locates one unresolved dependency.
type MissingEntry struct {
	Bean     string
	Target   string
	Position int
	Key      Key
}

func (e MissingEntry) String() string {
	if e.Position < 0 {
		return fmt.Sprintf("%s: no provider for key %s", e.Target, e.Key)
	}
	return fmt.Sprintf("parameter %d of %s: no provider for key %s", e.Position+1, e.Target, e.Key)
}

// MissingDependencyError aggregates every unresolved non-optional dependency of a build.
type MissingDependencyError struct {
	Entries []MissingEntry
}

func (e *MissingDependencyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d unresolved dependencies:", len(e.Entries))
	for _, entry := range e.Entries {
		b.WriteString("\n  - ")
		b.WriteString(entry.String())
	}
	return b.String()
}

// CyclicDependencyError represents a dependency cycle. Cycle lists the beans
// in dependency order; the last bean depends on the first.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	path := append(append([]string{}, e.Cycle...), e.Cycle[0])
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(path, " -> "))
}

// InvalidDescriptorError represents a bean descriptor that cannot be built.
type InvalidDescriptorError struct {
	Bean   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid bean %s: %s", e.Bean, e.Reason)
}

// BuildError is the single report returned by a failed build. It holds every
// violation found, not only the first one.
type BuildError struct {
	Violations []error
}

func (e *BuildError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("build failed with %d violations:\n%s", len(e.Violations), strings.Join(msgs, "\n"))
}

func (e *BuildError) Unwrap() []error {
	return e.Violations
}

// SlotViolation names the kind of arena misuse.
type SlotViolation string

const (
	DoubleWrite     SlotViolation = "double write"
	ReadBeforeWrite SlotViolation = "read before write"
	InvalidSlot     SlotViolation = "invalid slot"
)

// SlotViolationError is raised, as a panic value, when the arena invariant
// breaks. It always indicates an engine bug.
type SlotViolationError struct {
	Slot      int
	Owner     string
	Violation SlotViolation
}

func (e *SlotViolationError) Error() string {
	return fmt.Sprintf("slot %d (%s): %s", e.Slot, e.Owner, e.Violation)
}

// LifecyclePhaseError represents a callback failure during initialize, start or stop.
type LifecyclePhaseError struct {
	Phase    Phase
	Ordering Ordering
	Bean     string
	Callback string
	Err      error
}

func (e *LifecyclePhaseError) Error() string {
	return fmt.Sprintf("%s-%s callback %s of bean %s failed: %v", e.Phase, e.Ordering, e.Callback, e.Bean, e.Err)
}

func (e *LifecyclePhaseError) Unwrap() error {
	return e.Err
}

// InitializationError represents a bean construction failure.
type InitializationError struct {
	Bean string
	Err  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("construction failed for bean %s: %v", e.Bean, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// BindingNotFoundError represents a lookup of a key no scope provides.
type BindingNotFoundError struct {
	Key Key
}

func (e *BindingNotFoundError) Error() string {
	return fmt.Sprintf("no binding found for key: %s", e.Key)
}

// NilServiceError represents an attempt to declare a nil fixed instance.
type NilServiceError struct {
	Bean string
}

func (e *NilServiceError) Error() string {
	return fmt.Sprintf("nil instance provided for bean: %s", e.Bean)
}

// TypeMismatchError represents a type assertion failure.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
}

// StateTransitionError represents an operation that is illegal in the
// lifetime's current state. Cause holds the failure that put the lifetime in
// the Failed state, if any.
type StateTransitionError struct {
	From      State
	Operation string
	Cause     error
}

func (e *StateTransitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot %s lifetime in state %s: %v", e.Operation, e.From, e.Cause)
	}
	return fmt.Sprintf("cannot %s lifetime in state %s", e.Operation, e.From)
}

func (e *StateTransitionError) Unwrap() error {
	return e.Cause
}
