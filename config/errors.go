package config

import "errors"

var (
	// ErrInvalidConfiguration is returned when a workflow record is malformed.
	ErrInvalidConfiguration = errors.New("invalid workflow configuration")

	// ErrAmbiguousSupport is returned by Set.Validate when a subject type is
	// supported by more than one workflow.
	ErrAmbiguousSupport = errors.New("subject type supported by several workflows")
)
