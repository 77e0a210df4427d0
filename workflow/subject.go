package workflow

import (
	"fmt"
	"reflect"
)

// SubjectTyper lets a subject name its own type instead of the Go type name.
type SubjectTyper interface {
	SubjectType() string
}

// SubjectIdentifier is implemented by subjects whose marking is persisted
// outside the subject value.
type SubjectIdentifier interface {
	SubjectID() string
}

// TypeOf returns the exact type identifier used to match subjects against a
// workflow's supports list: SubjectType() when implemented, otherwise the Go
// type name with pointers dereferenced (e.g. "orders.Order").
func TypeOf(subject any) string {
	if typed, ok := subject.(SubjectTyper); ok {
		return typed.SubjectType()
	}
	t := reflect.TypeOf(subject)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// IDOf returns the identifier of a SubjectIdentifier.
func IDOf(subject any) (string, error) {
	identified, ok := subject.(SubjectIdentifier)
	if !ok {
		return "", fmt.Errorf("%w: %T does not implement SubjectIdentifier", ErrUnsupportedSubject, subject)
	}
	id := identified.SubjectID()
	if id == "" {
		return "", fmt.Errorf("%w: %T has an empty subject id", ErrUnsupportedSubject, subject)
	}
	return id, nil
}
