package sshkex

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zmap/sshkex/lib/ssh"
)

type failingWriter struct {
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("disk full")
}

func feed(lines ...string) <-chan []byte {
	ch := make(chan []byte, len(lines))
	for _, l := range lines {
		ch <- []byte(l)
	}
	close(ch)
	return ch
}

func TestOutputResultsWriterFunc(t *testing.T) {
	for _, flush := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, OutputResultsWriterFunc(&buf, flush)(feed(`{"a":1}`, `{"b":2}`)))
		require.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())
	}
}

func TestOutputResultsWriterFuncDrainsAfterError(t *testing.T) {
	w := new(failingWriter)
	results := feed(`{"a":1}`, `{"b":2}`, `{"c":3}`)
	err := OutputResultsWriterFunc(w, true)(results)
	require.EqualError(t, err, "disk full")
	require.Equal(t, 1, w.writes)
	_, open := <-results
	require.False(t, open)
}

func TestMakeResult(t *testing.T) {
	remote := &net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 50022}
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	hl := &ssh.HandshakeLog{State: ssh.StateAborted.String()}

	r := makeResult(remote, start, hl, &ssh.FramingError{Msg: "packet too small", Length: 3})
	require.Equal(t, "192.0.2.7", r.IP)
	require.Equal(t, 50022, r.Port)
	require.Equal(t, "2024-01-02T03:04:05Z", r.Timestamp)
	require.Equal(t, HANDSHAKE_FRAMING_ERROR, r.Status)
	require.Equal(t, "framing", r.ErrorCategory)
	require.NotNil(t, r.Error)
	require.Contains(t, *r.Error, "packet too small")
	require.Same(t, hl, r.Handshake)
	require.True(t, r.duration > 0)

	r = makeResult(nil, time.Now(), nil, nil)
	require.Equal(t, HANDSHAKE_SUCCESS, r.Status)
	require.Empty(t, r.IP)
	require.Nil(t, r.Error)
	require.Empty(t, r.ErrorCategory)
}
