package packet

import "errors"

var (
	ErrTruncated       = errors.New("packet: truncated data")
	ErrInvalidLength   = errors.New("packet: invalid length")
	ErrInvalidBool     = errors.New("packet: invalid bool value")
	ErrUnsupportedType = errors.New("packet: unsupported type")
	ErrShortHeader     = errors.New("packet: short header")
)
