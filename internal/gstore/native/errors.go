package native

import "errors"

var (
	errFormatMismatch     = errors.New("native: format mismatch")
	errUnsupportedVersion = errors.New("native: unsupported version")
	errCorruptHeader      = errors.New("native: corrupt header")
)
