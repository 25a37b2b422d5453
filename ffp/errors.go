package ffp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented is returned for wire constructs that are defined by the
	// protocol but have no known layout yet (the blob tag).
	ErrNotImplemented = errors.New("not implemented")

	// ErrConnBroken is returned by every call on a Conn after a transport failure.
	ErrConnBroken = errors.New("connection broken, reconnect required")

	// ErrScanDone is returned by Scanner.Next once the scan timed out.
	ErrScanDone = errors.New("scan done")
)

// TransportError reports an I/O failure or a peer disconnect. The connection
// that produced it is unusable afterwards.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a framing or layout mismatch. Raw holds the text that
// was actually received.
type ProtocolError struct {
	Msg string
	Raw []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s (received: %q)", e.Msg, e.Raw)
}

// DecodeError reports a value that could not be decoded: invalid UTF-8, a
// non-numeric field or an unrecognized binary tag.
type DecodeError struct {
	Msg string
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s (raw: %q): %v", e.Msg, e.Raw, e.Err)
	}
	return fmt.Sprintf("decode: %s (raw: %q)", e.Msg, e.Raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ResourceLimitError reports a declared length above the allowed maximum.
type ResourceLimitError struct {
	What  string
	Size  uint64
	Limit uint64
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("%s: declared size %d exceeds limit %d", e.What, e.Size, e.Limit)
}

// ValidationError reports a command argument rejected before any I/O.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// TypeError reports a structured value whose shape is not the one expected.
type TypeError struct {
	Want string
	Got  Value
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type mismatch: want %s, got %s", e.Want, kindOf(e.Got))
}
