package sshkex

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/zmap/sshkex/lib/ssh"
)

// HandshakeResult is the output record for one accepted connection.
type HandshakeResult struct {
	IP            string            `json:"ip,omitempty"`
	Port          int               `json:"port,omitempty"`
	Status        HandshakeStatus   `json:"status"`
	Timestamp     string            `json:"timestamp,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	Error         *string           `json:"error,omitempty"`
	ErrorCategory string            `json:"error_category,omitempty"`
	BytesRead     int               `json:"bytes_read"`
	BytesWritten  int               `json:"bytes_written"`
	Handshake     *ssh.HandshakeLog `json:"handshake,omitempty"`

	duration time.Duration
}

func makeResult(remote net.Addr, start time.Time, hl *ssh.HandshakeLog, err error) *HandshakeResult {
	r := &HandshakeResult{
		Status:    TryGetHandshakeStatus(err),
		Timestamp: start.Format(time.RFC3339),
		Handshake: hl,
		duration:  time.Since(start),
	}
	r.Duration = r.duration.String()
	switch addr := remote.(type) {
	case *net.TCPAddr:
		r.IP = addr.IP.String()
		r.Port = addr.Port
	case nil:
	default:
		r.IP = addr.String()
	}
	if err != nil {
		msg := err.Error()
		r.Error = &msg
		r.ErrorCategory = ssh.ErrorCategory(err)
	}
	return r
}

// OutputResultsFunc is a function type for result output functions.
//
// A function of this type receives results on the provided channel
// and outputs them somehow. It returns nil if there are no further
// results or error.
type OutputResultsFunc func(results <-chan []byte) error

// OutputResultsWriterFunc returns an OutputResultsFunc that writes each
// result to w as one line. With flush set every line is flushed as it is
// written. After a write error the remaining results are drained and
// discarded so that producers never block.
func OutputResultsWriterFunc(w io.Writer, flush bool) OutputResultsFunc {
	return func(results <-chan []byte) error {
		out := bufio.NewWriter(w)
		var err error
		for result := range results {
			if err != nil {
				continue
			}
			if _, err = out.Write(result); err != nil {
				continue
			}
			if err = out.WriteByte('\n'); err != nil {
				continue
			}
			if flush {
				err = out.Flush()
			}
		}
		if err != nil {
			return err
		}
		return out.Flush()
	}
}

// discardResults drains results.
func discardResults(results <-chan []byte) error {
	for range results {
	}
	return nil
}
