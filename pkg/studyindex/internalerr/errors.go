package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("duplicate entry")
	ErrAmbiguous         = errors.New("ambiguous key")
	ErrCast              = errors.New("value does not match schema type")
	ErrUnstructured      = errors.New("document has no recognizable structure")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
