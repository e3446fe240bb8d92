package ssh

import (
	"context"
	"encoding/binary"
	"io"
)

// HandshakeMagics contains data that is always included in the
// session hash.
type HandshakeMagics struct {
	ClientVersion, ServerVersion []byte
	ClientKexInit, ServerKexInit []byte
}

// Write emits the magics as SSH strings in exchange-hash order, RFC 4253
// section 8.
func (m *HandshakeMagics) Write(w io.Writer) error {
	for _, s := range [][]byte{m.ClientVersion, m.ServerVersion, m.ClientKexInit, m.ServerKexInit} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func writeString(w io.Writer, s []byte) error {
	var lengthBytes [4]byte
	binary.BigEndian.PutUint32(lengthBytes[:], uint32(len(s)))
	if _, err := w.Write(lengthBytes[:]); err != nil {
		return err
	}
	_, err := w.Write(s)
	return err
}

// Handoff is everything the key exchange needs once algorithms are agreed.
type Handoff struct {
	Algorithms *Algorithms

	// LocalKexInit and RemoteKexInit are the raw KEXINIT payloads, message
	// type byte included.
	LocalKexInit  []byte
	RemoteKexInit []byte

	Magics HandshakeMagics

	// Conn carries further packets over the same connection. Bytes the peer
	// sent after its KEXINIT are still buffered in it.
	Conn PacketConn
}

// KeyExchanger continues the connection after negotiation. It owns
// h.Conn from the moment it is called.
type KeyExchanger interface {
	KeyExchange(ctx context.Context, h *Handoff) error
}

// KeyExchangerFunc adapts a function to KeyExchanger.
type KeyExchangerFunc func(ctx context.Context, h *Handoff) error

func (f KeyExchangerFunc) KeyExchange(ctx context.Context, h *Handoff) error {
	return f(ctx, h)
}
