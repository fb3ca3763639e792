package onebox_errors

import "errors"

var (
	ErrNotConnected  = errors.New("mailbox session is not connected")
	ErrSessionClosed = errors.New("mailbox session is closed")
)
