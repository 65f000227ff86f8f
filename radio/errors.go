// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import "fmt"

// Code is the radio error taxonomy. Every public entry point returns one
// of these wrapped in an *Error, nil, or an error passed up unchanged from
// the SPI transport.
type Code uint8

const (
	CodeNone Code = iota
	CodeInvalidArgument
	CodeBusy
	CodeTxTimeout
	CodeTxNoPacket
	CodeBadFormat
	CodeBadCRC
	CodeChannelAccessFailure
	CodeCmdUnsupported
	CodeInitFailed
	CodeFatal
)

var codeNames = [...]string{
	"none", "invalid argument", "busy", "tx timeout", "tx no packet",
	"bad format", "bad crc", "channel access failure", "cmd unsupported",
	"init failed", "fatal",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown"
}

// Error is the concrete error type public radio operations return for
// failures of their own (SPI transport errors are passed through as is).
// Compare against the taxonomy with errors.Is(err, radio.ErrBusy) etc.;
// the message carried alongside Code is diagnostic only.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "radio: " + e.Code.String()
	}
	return "radio: " + e.Code.String() + ": " + e.Msg
}

// Is implements errors.Is by comparing Code, ignoring Msg, so a freshly
// constructed sentinel like ErrBusy matches any *Error of the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument}
	ErrBusy                 = &Error{Code: CodeBusy}
	ErrTxTimeout            = &Error{Code: CodeTxTimeout}
	ErrTxNoPacket           = &Error{Code: CodeTxNoPacket}
	ErrBadFormat            = &Error{Code: CodeBadFormat}
	ErrBadCRC               = &Error{Code: CodeBadCRC}
	ErrChannelAccessFailure = &Error{Code: CodeChannelAccessFailure}
	ErrCmdUnsupported       = &Error{Code: CodeCmdUnsupported}
	ErrInitFailed           = &Error{Code: CodeInitFailed}
	ErrFatal                = &Error{Code: CodeFatal}
)
