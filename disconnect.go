package sshkex

import (
	"context"

	"github.com/zmap/sshkex/lib/ssh"
	xssh "golang.org/x/crypto/ssh"
)

// disconnectMsg is SSH_MSG_DISCONNECT, RFC 4253 section 11.1.
type disconnectMsg struct {
	Reason   uint32 `sshtype:"1"`
	Message  string
	Language string
}

// sendDisconnect is the Disconnector the server installs on every
// connection. Before the identification exchange completes there is no
// packet stream yet, and nothing is sent.
func sendDisconnect(c ssh.PacketConn, reason ssh.DisconnectReason, message string) error {
	if c == nil {
		return nil
	}
	return c.WritePacket(xssh.Marshal(&disconnectMsg{
		Reason:  uint32(reason),
		Message: message,
	}))
}

// disconnectingKeyExchanger is used when no key exchange is configured. The
// negotiated algorithms are already in the handshake log; the client is told
// the session ends here.
type disconnectingKeyExchanger struct{}

func (disconnectingKeyExchanger) KeyExchange(ctx context.Context, h *ssh.Handoff) error {
	return sendDisconnect(h.Conn, ssh.DisconnectByApplication, "key exchange not available")
}
