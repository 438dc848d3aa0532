package wire

import "errors"

// ErrShortHeader is returned when fewer than HeaderSize bytes are
// available to parse a header from.
var ErrShortHeader = errors.New("wire: short header")

// ErrLengthTooLarge is returned when a parsed header declares a
// payload length that would not fit in the caller's buffer budget.
var ErrLengthTooLarge = errors.New("wire: payload length exceeds buffer")
