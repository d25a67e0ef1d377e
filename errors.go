package ico

import (
	"errors"
	"fmt"
)

var (
	// Container format errors, always fatal.
	ErrBadType        = errors.New("ico: unknown container type")
	ErrNoImages       = errors.New("ico: no images")
	ErrTruncated      = errors.New("ico: truncated data")
	ErrFileTooLarge   = errors.New("ico: file too large")
	ErrPayloadSize    = errors.New("ico: corrupted entry size")
	ErrPayloadOffset  = errors.New("ico: corrupted entry offset")
	ErrOverlap        = errors.New("ico: overlapping entry payloads")
	ErrTooManyEntries = errors.New("ico: too many entries")

	// Per-entry errors, recoverable through DecodeOptions.OnEntryError.
	ErrUnknownPayload   = errors.New("ico: entry is neither BMP nor PNG")
	ErrUnsupportedDepth = errors.New("ico: unsupported bit depth")
	ErrBadDimensions    = errors.New("ico: invalid entry dimensions")
	ErrSizeMismatch     = errors.New("ico: entry size does not match directory")
	ErrCorruptBitmap    = errors.New("ico: corrupted bitmap data")

	// ErrImageTooLarge is returned when the image dimensions exceed 768x768 pixels.
	ErrImageTooLarge = errors.New("ico: image dimensions must not exceed 768x768 pixels")
)

// FormatError is a fatal structural error in an ICO or CUR stream.
type FormatError struct {
	Type   FileType
	Err    error
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (%s)", e.Err, e.Type)
	}
	return fmt.Sprintf("%v (%s): %s", e.Err, e.Type, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(t FileType, err error, format string, args ...any) error {
	return &FormatError{Type: t, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// EntryError reports a directory record that could not be decoded.
// Index is the record's position in the directory table.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
