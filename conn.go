package sshkex

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// ReadLimitExceededAction describes how the connection reacts to an attempt to read more data than permitted.
type ReadLimitExceededAction string

const (
	// ReadLimitExceededActionNotSet is a placeholder for the zero value, so that explicitly set values can be
	// distinguished from the empty default.
	ReadLimitExceededActionNotSet = ReadLimitExceededAction("")

	// ReadLimitExceededActionTruncate causes the connection to truncate at BytesReadLimit bytes and return a bogus
	// io.EOF error. The fact that a truncation took place is logged at debug level.
	ReadLimitExceededActionTruncate = ReadLimitExceededAction("truncate")

	// ReadLimitExceededActionError causes the Read call to return n, ErrReadLimitExceeded (in addition to truncating).
	ReadLimitExceededActionError = ReadLimitExceededAction("error")
)

var (
	// DefaultBytesReadLimit is the maximum number of bytes to read per connection when no explicit value is provided.
	DefaultBytesReadLimit = 512 * 1024

	// DefaultReadLimitExceededAction is the action used when no explicit action is set.
	DefaultReadLimitExceededAction = ReadLimitExceededActionError

	// DefaultSessionTimeout is the default maximum time a connection may be used when no explicit value is provided.
	DefaultSessionTimeout = 30 * time.Second
)

// TimeoutConnection wraps an accepted net.Conn, overriding the Read/Write
// methods to use the configured timeouts and read limit.
type TimeoutConnection struct {
	net.Conn
	ctx                     context.Context
	Cancel                  context.CancelFunc
	ReadTimeout             time.Duration // used to set the read deadline, set fresh for each read
	WriteTimeout            time.Duration // used to set the write deadline, set fresh for each write
	BytesRead               int
	BytesWritten            int
	BytesReadLimit          int
	ReadLimitExceededAction ReadLimitExceededAction
}

// NewTimeoutConnection returns a new TimeoutConnection whose context ends
// after sessionTimeout, or with ctx. A zero sessionTimeout uses
// DefaultSessionTimeout and a zero bytesReadLimit uses DefaultBytesReadLimit.
func NewTimeoutConnection(ctx context.Context, conn net.Conn, sessionTimeout, readTimeout, writeTimeout time.Duration, bytesReadLimit int) *TimeoutConnection {
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}
	if bytesReadLimit <= 0 {
		bytesReadLimit = DefaultBytesReadLimit
	}
	ret := &TimeoutConnection{
		Conn:                    conn,
		ReadTimeout:             readTimeout,
		WriteTimeout:            writeTimeout,
		BytesReadLimit:          bytesReadLimit,
		ReadLimitExceededAction: DefaultReadLimitExceededAction,
	}
	ret.ctx, ret.Cancel = context.WithTimeout(ctx, sessionTimeout)
	return ret
}

// Context is cancelled when the session timeout expires or the connection
// is closed.
func (c *TimeoutConnection) Context() context.Context {
	return c.ctx
}

// deadline is the earlier of now+timeout and the session deadline.
func (c *TimeoutConnection) deadline(timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := c.ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

// Read calls Read() on the underlying connection, using any configured deadlines.
func (c *TimeoutConnection) Read(b []byte) (n int, err error) {
	if err = c.checkContext(); err != nil {
		return 0, err
	}
	origSize := len(b)
	remaining := c.BytesReadLimit - c.BytesRead
	if remaining <= 0 {
		return 0, c.readLimitExceeded(origSize, 0)
	}
	if len(b) > remaining {
		b = b[:remaining]
	}
	if err = c.Conn.SetReadDeadline(c.deadline(c.ReadTimeout)); err != nil {
		return 0, err
	}
	n, err = c.Conn.Read(b)
	c.BytesRead += n
	if err == nil && origSize != len(b) && n == len(b) {
		// we had to shrink the output buffer AND we used up the whole shrunk size
		err = c.readLimitExceeded(origSize, n)
	}
	return n, err
}

func (c *TimeoutConnection) readLimitExceeded(origSize, n int) error {
	switch c.ReadLimitExceededAction {
	case ReadLimitExceededActionTruncate:
		logrus.Debugf("Truncated read from %d bytes to %d bytes (hit limit of %d bytes)", origSize, n, c.BytesReadLimit)
		return io.EOF
	default:
		return ErrReadLimitExceeded
	}
}

// Write calls Write() on the underlying connection, using any configured deadlines.
func (c *TimeoutConnection) Write(b []byte) (n int, err error) {
	if err = c.checkContext(); err != nil {
		return 0, err
	}
	if err = c.Conn.SetWriteDeadline(c.deadline(c.WriteTimeout)); err != nil {
		return 0, err
	}
	n, err = c.Conn.Write(b)
	c.BytesWritten += n
	return n, err
}

// Close cancels the connection's context and closes the underlying connection.
func (c *TimeoutConnection) Close() error {
	c.Cancel()
	return c.Conn.Close()
}

// Check if the context has been cancelled, and if so, return an error
// (ErrTotalTimeout when the session timeout expired, the context error
// otherwise).
func (c *TimeoutConnection) checkContext() error {
	select {
	case <-c.ctx.Done():
		if err := c.ctx.Err(); err != context.DeadlineExceeded {
			return err
		}
		return ErrTotalTimeout
	default:
		return nil
	}
}
