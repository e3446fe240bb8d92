package sshkex

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/zmap/sshkex/lib/ssh"
)

// HandshakeStatus is the enum value that states how a connection ended.
type HandshakeStatus string

const (
	HANDSHAKE_SUCCESS            = HandshakeStatus("success")             // Algorithms were negotiated and handed off
	HANDSHAKE_PROTOCOL_ERROR     = HandshakeStatus("protocol-error")      // Bad identification line or unexpected packets
	HANDSHAKE_DECODE_ERROR       = HandshakeStatus("decode-error")        // Malformed KEXINIT or name-list
	HANDSHAKE_FRAMING_ERROR      = HandshakeStatus("framing-error")       // Invalid binary packet
	HANDSHAKE_NEGOTIATION_FAILED = HandshakeStatus("negotiation-failed")  // No common algorithm in a mandatory category
	HANDSHAKE_PEER_DISCONNECTED  = HandshakeStatus("peer-disconnected")   // The client sent SSH_MSG_DISCONNECT
	HANDSHAKE_CONNECTION_CLOSED  = HandshakeStatus("connection-closed")   // The TCP connection was unexpectedly closed
	HANDSHAKE_IO_TIMEOUT         = HandshakeStatus("io-timeout")          // Timed out waiting on data
	HANDSHAKE_READ_LIMIT         = HandshakeStatus("read-limit-exceeded") // The client sent more than the per-connection limit
	HANDSHAKE_KEX_ERROR          = HandshakeStatus("kex-error")           // The key exchanger reported an error
	HANDSHAKE_UNKNOWN_ERROR      = HandshakeStatus("unknown-error")       // Catch-all for unrecognized errors
)

// HandshakeError is an error that also includes a HandshakeStatus.
type HandshakeError struct {
	Status HandshakeStatus
	Err    error
}

// Error forwards to the wrapped error.
func (err *HandshakeError) Error() string {
	if err.Err == nil {
		return "<nil>"
	}
	return err.Err.Error()
}

func (err *HandshakeError) Unwrap() error {
	return err.Err
}

// NewHandshakeError returns a HandshakeError with the given status and error.
func NewHandshakeError(status HandshakeStatus, err error) *HandshakeError {
	return &HandshakeError{Status: status, Err: err}
}

// DetectHandshakeError returns a HandshakeError that attempts to detect the
// status from the given error.
func DetectHandshakeError(err error) *HandshakeError {
	return &HandshakeError{Status: TryGetHandshakeStatus(err), Err: err}
}

// TryGetHandshakeStatus attempts to get the HandshakeStatus corresponding to
// the given error. A nil error is interpreted as HANDSHAKE_SUCCESS. An
// unrecognized error is interpreted as HANDSHAKE_UNKNOWN_ERROR.
func TryGetHandshakeStatus(err error) HandshakeStatus {
	if err == nil {
		return HANDSHAKE_SUCCESS
	}
	var he *HandshakeError
	if errors.As(err, &he) {
		return he.Status
	}
	switch ssh.ErrorCategory(err) {
	case "protocol":
		return HANDSHAKE_PROTOCOL_ERROR
	case "decode":
		return HANDSHAKE_DECODE_ERROR
	case "framing":
		return HANDSHAKE_FRAMING_ERROR
	case "negotiation":
		return HANDSHAKE_NEGOTIATION_FAILED
	case "disconnect":
		return HANDSHAKE_PEER_DISCONNECTED
	}
	if errors.Is(err, ErrReadLimitExceeded) {
		return HANDSHAKE_READ_LIMIT
	}
	if errors.Is(err, ErrTotalTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return HANDSHAKE_IO_TIMEOUT
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return HANDSHAKE_IO_TIMEOUT
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, context.Canceled) {
		return HANDSHAKE_CONNECTION_CLOSED
	}
	log.Debugf("Failed to detect status from %v at %s", err, string(debug.Stack()))
	return HANDSHAKE_UNKNOWN_ERROR
}
