package ssh

import (
	"errors"
	"fmt"
)

// ProtocolError results from a malformed or missing identification line,
// or from a peer that keeps sending packets other than KEXINIT.
type ProtocolError struct {
	Msg    string
	Length int // bytes of the offending line or packet
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ssh: protocol error: %s (%d bytes)", e.Msg, e.Length)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrUnsupportedVersion is wrapped by the ProtocolError returned for a
// well-formed identification line announcing a version other than 2.0 or
// 1.99.
var ErrUnsupportedVersion = errors.New("ssh: unsupported protocol version")

// DecodeError results from a malformed name-list or KEXINIT payload.
type DecodeError struct {
	Field  string
	Msg    string
	Length int // bytes available when decoding failed
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ssh: decode error: %s (%d bytes)", e.Msg, e.Length)
	}
	return fmt.Sprintf("ssh: decode error in %s: %s (%d bytes)", e.Field, e.Msg, e.Length)
}

// FramingError results from an invalid binary packet: bad lengths, bad
// padding, an oversized packet or a short read.
type FramingError struct {
	Msg    string
	Length int // the packet_length or byte count involved
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ssh: framing error: %s (%d bytes): %v", e.Msg, e.Length, e.Err)
	}
	return fmt.Sprintf("ssh: framing error: %s (%d bytes)", e.Msg, e.Length)
}

func (e *FramingError) Unwrap() error { return e.Err }

// NegotiationError results when client and server share no algorithm in a
// mandatory category.
type NegotiationError struct {
	Category Category
	Client   NameList
	Server   NameList
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("ssh: no matching %s (client %q, server %q)", e.Category, e.Client.String(), e.Server.String())
}

// IOError wraps a failure of the underlying connection.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ssh: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ErrPeerDisconnected is returned when the peer sends SSH_MSG_DISCONNECT
// before key exchange has been negotiated.
var ErrPeerDisconnected = errors.New("ssh: peer sent disconnect")

// ErrorCategory names the taxonomy class of err for logs and metrics.
func ErrorCategory(err error) string {
	var (
		pe *ProtocolError
		de *DecodeError
		fe *FramingError
		ne *NegotiationError
		ie *IOError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &pe):
		return "protocol"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &fe):
		return "framing"
	case errors.As(err, &ne):
		return "negotiation"
	case errors.Is(err, ErrPeerDisconnected):
		return "disconnect"
	case errors.As(err, &ie):
		return "io"
	default:
		return "unknown"
	}
}

// IsClean reports whether err is a failure after which the peer should be
// told why the connection is closing. I/O failures are not clean: the
// connection is assumed unusable. Neither is a peer disconnect.
func IsClean(err error) bool {
	switch ErrorCategory(err) {
	case "protocol", "decode", "framing", "negotiation":
		return true
	}
	return false
}

// wrapIO turns a raw read/write error into an IOError. io.EOF keeps its
// identity through errors.Is.
func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *IOError
	if errors.As(err, &ie) {
		return err
	}
	return &IOError{Op: op, Err: err}
}
