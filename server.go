package sshkex

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zmap/sshkex/lib/ssh"
	"go.uber.org/multierr"
	"golang.org/x/net/netutil"
)

// Server accepts TCP connections and runs the SSH handshake front end on
// each of them. One JSON result line is produced per connection.
type Server struct {
	// Config is shared by every connection and must not change while the
	// server runs.
	Config *ssh.ServerConfig

	// KeyExchanger receives every successful handoff. When nil the session
	// is ended with SSH_MSG_DISCONNECT.
	KeyExchanger ssh.KeyExchanger

	// MaxConnections caps concurrent handshakes; zero means unlimited.
	MaxConnections int

	SessionTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BytesReadLimit int

	// Monitor, when set, counts results by status.
	Monitor *Monitor

	// Output consumes the JSON results. Results are discarded when nil.
	Output OutputResultsFunc

	// OutputBuffer is the capacity of the result queue.
	OutputBuffer int
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", addr)
	}
	log.Infof("listening on %s", l.Addr())
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done, then closes l and
// waits for the connections in flight. Those are not cancelled: each is
// bounded by the session timeout. Serve returns nil after a shutdown
// through ctx.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	if s.Config == nil {
		return errors.Wrap(ErrInvalidArguments, "server has no ssh config")
	}
	if s.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.MaxConnections)
	}
	output := s.Output
	if output == nil {
		output = discardResults
	}
	outputQueue := make(chan []byte, max(s.OutputBuffer, 1))
	outputDone := make(chan error, 1)
	go func() {
		outputDone <- output(outputQueue)
	}()

	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()
	connCtx := context.WithoutCancel(ctx)

	var workers sync.WaitGroup
	var err error
	var backoff time.Duration
	for {
		conn, aerr := l.Accept()
		if aerr != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(aerr, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				log.Warnf("accept error: %v; retrying in %v", aerr, backoff)
				time.Sleep(backoff)
				continue
			}
			err = errors.Wrap(aerr, "accept failed")
			l.Close()
			break
		}
		backoff = 0
		workers.Add(1)
		go func() {
			defer workers.Done()
			if result := s.handle(connCtx, conn); result != nil {
				outputQueue <- result
			}
		}()
	}
	workers.Wait()
	close(outputQueue)
	if oerr := <-outputDone; oerr != nil {
		err = multierr.Append(err, errors.Wrap(oerr, "could not write results"))
	}
	return err
}

// handle runs one connection to completion and returns its JSON result.
func (s *Server) handle(ctx context.Context, conn net.Conn) []byte {
	start := time.Now()
	s.Monitor.connectionOpened()
	defer s.Monitor.connectionClosed()

	tc := NewTimeoutConnection(ctx, conn, s.SessionTimeout, s.ReadTimeout, s.WriteTimeout, s.BytesReadLimit)
	defer tc.Close()
	sc := ssh.NewServerConn(tc, s.Config)
	sc.SetDisconnector(ssh.DisconnectorFunc(sendDisconnect))

	var err error
	func() {
		defer func() {
			if e := recover(); e != nil {
				log.Errorf("panic handling connection from %s: %v\n%s", conn.RemoteAddr(), e, debug.Stack())
				err = NewHandshakeError(HANDSHAKE_UNKNOWN_ERROR, fmt.Errorf("panic: %v", e))
			}
		}()
		err = s.serveConn(tc.Context(), sc)
	}()

	result := makeResult(conn.RemoteAddr(), start, sc.Log(), err)
	result.BytesRead = tc.BytesRead
	result.BytesWritten = tc.BytesWritten
	entry := log.WithFields(log.Fields{
		"remote": conn.RemoteAddr().String(),
		"status": result.Status,
	})
	if err != nil {
		entry.WithField("category", result.ErrorCategory).Debugf("handshake failed: %v", err)
	} else {
		entry.Debug("handshake complete")
	}
	s.Monitor.Record(result)

	b, merr := json.Marshal(result)
	if merr != nil {
		entry.Errorf("unable to marshal result: %v", merr)
		return nil
	}
	return b
}

func (s *Server) serveConn(ctx context.Context, sc *ssh.ServerConn) error {
	h, err := sc.Handshake(ctx)
	if err != nil {
		return err
	}
	kex := s.KeyExchanger
	if kex == nil {
		kex = disconnectingKeyExchanger{}
	}
	if err := kex.KeyExchange(ctx, h); err != nil {
		return NewHandshakeError(HANDSHAKE_KEX_ERROR, err)
	}
	return nil
}
