package ctrace

import "errors"

var (
	// ErrUnsupportedTagType is returned for tag values that are not a
	// string, bool or number.
	ErrUnsupportedTagType = errors.New("ctrace: unsupported tag value type")

	// ErrMissingServiceName is returned by Config.Validate when no service
	// name is configured.
	ErrMissingServiceName = errors.New("ctrace: service name is required")

	// ErrUnknownOutput is returned for an output that is neither a known
	// stream nor a usable file path.
	ErrUnknownOutput = errors.New("ctrace: unknown output")

	// ErrUnknownIDFormat is returned for an unrecognized id_format.
	ErrUnknownIDFormat = errors.New("ctrace: unknown id format")

	// ErrUnknownLogger is returned for an unrecognized logger kind.
	ErrUnknownLogger = errors.New("ctrace: unknown logger")
)
