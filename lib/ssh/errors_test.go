package ssh

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		err      error
		category string
		clean    bool
	}{
		{nil, "none", false},
		{&ProtocolError{Msg: "x"}, "protocol", true},
		{&DecodeError{Msg: "x"}, "decode", true},
		{&FramingError{Msg: "x"}, "framing", true},
		{&NegotiationError{Category: CategoryKex}, "negotiation", true},
		{wrapIO("read", io.EOF), "io", false},
		{ErrPeerDisconnected, "disconnect", false},
		{wrapIO("read", ErrPeerDisconnected), "disconnect", false},
		{&ProtocolError{Msg: "x", Err: ErrUnsupportedVersion}, "protocol", true},
		{errors.New("other"), "unknown", false},
		{multierr.Append(&NegotiationError{Category: CategoryKex}, errors.New("close failed")), "negotiation", true},
	}
	for _, test := range tests {
		require.Equal(t, test.category, ErrorCategory(test.err), "%v", test.err)
		require.Equal(t, test.clean, IsClean(test.err), "%v", test.err)
	}
}

func TestWrapIO(t *testing.T) {
	require.NoError(t, wrapIO("read", nil))

	err := wrapIO("read", io.EOF)
	require.True(t, errors.Is(err, io.EOF))
	require.Equal(t, "ssh: read: EOF", err.Error())
	require.Same(t, err, wrapIO("again", err))
}

func TestDisconnectReasonFor(t *testing.T) {
	require.Equal(t, DisconnectKeyExchangeFailed, disconnectReasonFor(&NegotiationError{}))
	_, err := ParseEndpointId([]byte("SSH-1.5-x"))
	require.Equal(t, DisconnectProtocolVersionUnsupported, disconnectReasonFor(err))
	require.Equal(t, DisconnectProtocolError, disconnectReasonFor(&FramingError{}))
	require.Equal(t, "key exchange failed", DisconnectKeyExchangeFailed.String())
	require.Equal(t, "reason(99)", DisconnectReason(99).String())
}
