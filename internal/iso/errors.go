package iso

import "errors"

var (
	ErrValueTooLong    = errors.New("iso: value exceeds configured field length")
	ErrTruncated       = errors.New("iso: truncated buffer")
	ErrBadLengthPrefix = errors.New("iso: non-numeric length prefix")
	ErrNoFieldCodec    = errors.New("iso: no codec registered for field")
	ErrBadDigit        = errors.New("iso: non-decimal digit")
	ErrInvalidMTI      = errors.New("iso: invalid MTI")
	ErrFieldRange      = errors.New("iso: field id out of dialect range")
	ErrNotComposite    = errors.New("iso: field is not a nested message")
	ErrBadDialect      = errors.New("iso: invalid dialect description")
)
