package ssh

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Disconnector is asked to tell the peer why the connection is closing.
// It is called at most once per connection, only for clean failures, and
// before the connection is closed. c is nil when the identification
// exchange did not complete, since no packet may be sent before then.
type Disconnector interface {
	Disconnect(c PacketConn, reason DisconnectReason, message string) error
}

// DisconnectorFunc adapts a function to Disconnector.
type DisconnectorFunc func(c PacketConn, reason DisconnectReason, message string) error

func (f DisconnectorFunc) Disconnect(c PacketConn, reason DisconnectReason, message string) error {
	return f(c, reason, message)
}

// logDisconnector only records the request. It is the default, so that
// nothing is put on the wire unless the caller asks for it.
type logDisconnector struct {
	logger *log.Entry
}

func (d logDisconnector) Disconnect(_ PacketConn, reason DisconnectReason, message string) error {
	d.logger.WithFields(log.Fields{
		"reason":  reason.String(),
		"message": message,
	}).Debug("disconnect requested")
	return nil
}

// ServerConn runs the server side of the handshake on one accepted
// connection, up to the point where algorithms are negotiated. It is owned
// by a single goroutine.
type ServerConn struct {
	conn         net.Conn
	config       *ServerConfig
	transport    *transport
	hs           *handshakeState
	logger       *log.Entry
	disconnector Disconnector

	clientVersion []byte
	serverVersion []byte

	handshakeLog HandshakeLog
}

// NewServerConn prepares a handshake on conn. config must have been
// through SetDefaults and Validate; it is shared and never modified.
func NewServerConn(conn net.Conn, config *ServerConfig) *ServerConn {
	codec := NewPacketCodec(config.MaxPacket, config.Rand)
	codec.BlockSize = config.BlockSize
	codec.AlignLengthField = config.AlignLengthField
	logger := log.WithField("remote", remoteString(conn))
	return &ServerConn{
		conn:         conn,
		config:       config,
		transport:    newTransport(conn, bufio.NewReader(conn), codec),
		hs:           newHandshakeState(false),
		logger:       logger,
		disconnector: logDisconnector{logger: logger},
	}
}

func remoteString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// SetDisconnector replaces the default Disconnector, which only logs.
func (c *ServerConn) SetDisconnector(d Disconnector) {
	if d == nil {
		d = logDisconnector{logger: c.logger}
	}
	c.disconnector = d
}

// SetLogger replaces the connection's log entry.
func (c *ServerConn) SetLogger(logger *log.Entry) {
	c.logger = logger
	if ld, ok := c.disconnector.(logDisconnector); ok {
		ld.logger = logger
		c.disconnector = ld
	}
}

// State returns the handshake state.
func (c *ServerConn) State() State {
	return c.hs.state
}

// Log returns the handshake record, filled in as far as the handshake got.
func (c *ServerConn) Log() *HandshakeLog {
	c.handshakeLog.State = c.hs.state.String()
	c.handshakeLog.AbortReason = c.hs.reason
	return &c.handshakeLog
}

// Handshake exchanges identification lines and KEXINIT messages and
// negotiates algorithms. On success the connection belongs to the returned
// Handoff. On failure the Disconnector has been asked to notify the peer
// when the failure is clean, and the connection is closed.
//
// Cancelling ctx closes the connection and fails the handshake with an
// IOError wrapping ctx.Err().
func (c *ServerConn) Handshake(ctx context.Context) (*Handoff, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.Close()
	})
	h, err := c.handshake()
	if !stop() {
		// The close raced the handshake; report why it happened.
		err = wrapIO("handshake", ctx.Err())
	}
	if err != nil {
		return nil, c.fail(err)
	}
	c.logger.WithFields(log.Fields{
		"kex":      h.Algorithms.Kex,
		"host_key": h.Algorithms.HostKey,
	}).Debug("algorithms negotiated")
	return h, nil
}

// Serve runs Handshake and passes the result to kex.
func (c *ServerConn) Serve(ctx context.Context, kex KeyExchanger) error {
	h, err := c.Handshake(ctx)
	if err != nil {
		return err
	}
	return kex.KeyExchange(ctx, h)
}

func (c *ServerConn) handshake() (*Handoff, error) {
	c.serverVersion = []byte(c.config.ServerVersion)
	if err := writeVersion(c.conn, c.config.ServerVersion); err != nil {
		return nil, err
	}
	if id, err := ParseEndpointId(c.serverVersion); err == nil {
		c.handshakeLog.ServerID = id
	}

	line, banner, err := readVersion(c.transport.r, c.config.MaxVersionLength, c.config.MaxBannerLines)
	c.handshakeLog.Banner = banner
	if err != nil {
		return nil, err
	}
	id, err := ParseEndpointId(line)
	if err != nil {
		return nil, err
	}
	c.clientVersion = line
	c.handshakeLog.ClientID = id
	c.logger = c.logger.WithField("client", id.SoftwareVersion)
	if err := c.hs.versionExchanged(); err != nil {
		return nil, err
	}

	local, err := NewKexInit(&c.config.Preferences, c.config.Rand)
	if err != nil {
		return nil, err
	}
	if err := c.transport.WritePacket(local.Raw); err != nil {
		return nil, err
	}
	if err := c.hs.localKexSent(local); err != nil {
		return nil, err
	}
	c.handshakeLog.ServerKex = local
	c.handshakeLog.ServerHASSH = local.ServerHASSH()

	if err := c.hs.awaitRemoteKex(); err != nil {
		return nil, err
	}
	remote, err := c.readKexInit()
	if err != nil {
		return nil, err
	}
	if err := c.hs.remoteKexReceived(remote); err != nil {
		return nil, err
	}
	c.handshakeLog.ClientKex = remote
	c.handshakeLog.ClientHASSH = remote.ClientHASSH()
	if remote.Reserved != 0 {
		c.logger.WithField("reserved", remote.Reserved).Debug("peer KEXINIT has non-zero reserved field")
	}

	algs, err := c.hs.negotiate()
	if err != nil {
		return nil, err
	}
	c.handshakeLog.AlgorithmSelection = algs
	return &Handoff{
		Algorithms:    algs,
		LocalKexInit:  local.Raw,
		RemoteKexInit: remote.Raw,
		Magics: HandshakeMagics{
			ClientVersion: c.clientVersion,
			ServerVersion: c.serverVersion,
			ClientKexInit: remote.Raw,
			ServerKexInit: local.Raw,
		},
		Conn: c.transport,
	}, nil
}

// readKexInit reads packets until the peer's KEXINIT. Other message types
// are skipped, up to MaxIgnoredPackets of them. A peer disconnect ends the
// handshake.
func (c *ServerConn) readKexInit() (*KexInitMsg, error) {
	for ignored := 0; ; ignored++ {
		payload, err := c.transport.ReadPacket()
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			return nil, &FramingError{Msg: "empty payload"}
		}
		switch payload[0] {
		case msgKexInit:
			return ParseKexInit(payload)
		case msgDisconnect:
			reason, description := parseDisconnect(payload)
			c.handshakeLog.PeerDisconnect = &PeerDisconnect{Reason: reason, Description: description}
			c.logger.WithFields(log.Fields{
				"reason":      reason.String(),
				"description": description,
			}).Debug("peer disconnected before KEXINIT")
			return nil, ErrPeerDisconnected
		}
		if ignored >= c.config.MaxIgnoredPackets {
			return nil, &ProtocolError{Msg: "too many packets before KEXINIT", Length: len(payload)}
		}
		c.handshakeLog.IgnoredPackets = append(c.handshakeLog.IgnoredPackets, int(payload[0]))
		c.logger.WithField("type", payload[0]).Debug("ignoring message before KEXINIT")
	}
}

// fail records err, asks the Disconnector to notify the peer when err is
// clean, and closes the connection. Errors from both are added to err.
func (c *ServerConn) fail(err error) error {
	c.hs.abort(strings.TrimPrefix(err.Error(), "ssh: "))
	logger := c.logger.WithFields(log.Fields{
		"state":          c.hs.state.String(),
		"error_category": ErrorCategory(err),
	})
	if IsClean(err) {
		var pc PacketConn
		if c.clientVersion != nil {
			pc = c.transport
		}
		reason := disconnectReasonFor(err)
		if derr := c.disconnector.Disconnect(pc, reason, c.hs.reason); derr != nil {
			err = multierr.Append(err, derr)
		}
	}
	if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = multierr.Append(err, wrapIO("close", cerr))
	}
	logger.WithError(err).Debug("handshake failed")
	return err
}

// disconnectReasonFor picks the RFC 4253 reason code for a clean failure.
func disconnectReasonFor(err error) DisconnectReason {
	var ne *NegotiationError
	switch {
	case errors.As(err, &ne):
		return DisconnectKeyExchangeFailed
	case isVersionUnsupported(err):
		return DisconnectProtocolVersionUnsupported
	}
	return DisconnectProtocolError
}

// Close closes the underlying connection.
func (c *ServerConn) Close() error {
	return c.conn.Close()
}
