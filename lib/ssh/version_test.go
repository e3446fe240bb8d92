package ssh

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEndpointId(t *testing.T) {
	id, err := ParseEndpointId([]byte("SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.6"))
	require.NoError(t, err)
	require.Equal(t, &EndpointId{
		Raw:             "SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.6",
		ProtoVersion:    "2.0",
		SoftwareVersion: "OpenSSH_8.9p1",
		Comment:         "Ubuntu-3ubuntu0.6",
	}, id)

	id, err = ParseEndpointId([]byte("SSH-1.99-Cisco-1.25"))
	require.NoError(t, err)
	require.Equal(t, "1.99", id.ProtoVersion)
	require.Equal(t, "Cisco-1.25", id.SoftwareVersion)
	require.Empty(t, id.Comment)
}

func TestParseEndpointIdErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"HTTP/1.1 400 Bad Request",
		"SSH-2.0",
		"SSH--foo",
		"SSH-2.0-",
		"SSH-2.0- comment only",
		"SSH-2.0-foo\x00bar",
		"SSH-2.0-caf\xc3\xa9",
	} {
		_, err := ParseEndpointId([]byte(line))
		var pe *ProtocolError
		require.True(t, errors.As(err, &pe), "%q: got %v", line, err)
		require.False(t, isVersionUnsupported(err), line)
	}

	_, err := ParseEndpointId([]byte("SSH-1.5-OpenSSH_2.1"))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	require.True(t, isVersionUnsupported(err))

	// The marker is typed, so rewording the message does not lose it.
	reworded := &ProtocolError{Msg: "version 3.0 is not spoken here", Err: ErrUnsupportedVersion}
	require.True(t, isVersionUnsupported(reworded))
	require.False(t, isVersionUnsupported(&ProtocolError{Msg: "unsupported protocol version \"1.5\""}))
	require.Equal(t, DisconnectProtocolVersionUnsupported, disconnectReasonFor(reworded))
}

func TestWriteVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, "SSH-2.0-sshkex_1.0"))
	require.Equal(t, "SSH-2.0-sshkex_1.0\r\n", buf.String())
}

func TestReadVersion(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Welcome\r\n\nnotice\nSSH-2.0-client_1 hi\r\nREST"))
	line, banner, err := readVersion(r, maxVersionStringBytes, 8)
	require.NoError(t, err)
	require.Equal(t, "SSH-2.0-client_1 hi", string(line))
	require.Equal(t, []string{"Welcome", "", "notice"}, banner)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "REST", string(rest))

	line, _, err = readVersion(strings.NewReader("SSH-2.0-bare-lf\n"), maxVersionStringBytes, 8)
	require.NoError(t, err)
	require.Equal(t, "SSH-2.0-bare-lf", string(line))

	_, banner, err = readVersion(strings.NewReader("evil\x1b[2J\nSSH-2.0-x\n"), maxVersionStringBytes, 8)
	require.NoError(t, err)
	require.Equal(t, []string{"evil?[2J"}, banner)
}

func TestReadVersionLengthLimit(t *testing.T) {
	prefix := "SSH-2.0-"
	exact := prefix + strings.Repeat("x", maxVersionStringBytes-len(prefix)-2) + "\r\n"
	require.Len(t, exact, maxVersionStringBytes)
	line, _, err := readVersion(strings.NewReader(exact), maxVersionStringBytes, 8)
	require.NoError(t, err)
	require.Len(t, line, maxVersionStringBytes-2)

	over := prefix + strings.Repeat("x", maxVersionStringBytes-len(prefix)-1) + "\r\n"
	_, _, err = readVersion(strings.NewReader(over), maxVersionStringBytes, 8)
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))

	long := strings.NewReader(prefix + strings.Repeat("x", 10000))
	_, _, err = readVersion(long, maxVersionStringBytes, 8)
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 10000+len(prefix)-maxVersionStringBytes-1, long.Len())
}

func TestReadVersionErrors(t *testing.T) {
	_, _, err := readVersion(strings.NewReader(""), maxVersionStringBytes, 8)
	var ie *IOError
	require.True(t, errors.As(err, &ie))
	require.True(t, errors.Is(err, io.EOF))

	_, _, err = readVersion(strings.NewReader("SSH-2.0-trunc"), maxVersionStringBytes, 8)
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))

	_, banner, err := readVersion(strings.NewReader("a\nb\nc\nSSH-2.0-late\n"), maxVersionStringBytes, 2)
	require.True(t, errors.As(err, &pe))
	require.Equal(t, []string{"a", "b"}, banner)
}
