package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for deserialization failures.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrMissingSecret indicates a secret id absent from both the secret
	// table and the environment.
	ErrMissingSecret = errors.New("missing secret")

	// ErrNotReconstructible indicates an attempt to instantiate a
	// best-effort (not_implemented) record.
	ErrNotReconstructible = errors.New("not reconstructible")

	// ErrInvalidNamespace indicates a type id outside the allow-list, an
	// unregistered type, or a type that does not declare itself serializable.
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// Error wraps a deserialization failure with its classification.
type Error struct {
	// Kind is the sentinel error for classification.
	Kind error
	// TypeID is the type id of the offending node, if any.
	TypeID []string
	// SecretID is the secret id of the offending node, if any.
	SecretID string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if len(e.TypeID) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.TypeID, "."))
	}
	if e.SecretID != "" {
		fmt.Fprintf(&b, ": %s", e.SecretID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func missingSecret(id string) error {
	return &Error{Kind: ErrMissingSecret, SecretID: id}
}

func notReconstructible(typeID []string) error {
	return &Error{Kind: ErrNotReconstructible, TypeID: typeID}
}

func invalidNamespace(typeID []string, err error) error {
	return &Error{Kind: ErrInvalidNamespace, TypeID: typeID, Err: err}
}
