package session

import "errors"

// errBadMainType and errBadMessageType are the §4.2 framing failures:
// main_type != Request, or message type beyond the handler table.
// Both are fatal to the session; no response is sent for either,
// matching the "Wire/framing error" row of §7.
var (
	errBadMainType    = errors.New("session: request main type is not Request")
	errBadMessageType = errors.New("session: message type out of range")
)
