package ssh

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultMaxPacket is the largest packet_length accepted unless
	// configured otherwise. RFC 4253 section 6.1 requires at least 35000.
	DefaultMaxPacket = 256 * 1024

	// DefaultBlockSize is the alignment used before encryption is set up.
	DefaultBlockSize = 8

	minPaddingLength = 4
	maxPaddingLength = 255

	// minPacketLength is padding_length byte plus minimum padding.
	minPacketLength = 1 + minPaddingLength
)

// PacketMAC is the hook a key-exchange implementation installs once keys
// are established. The codec only calls it; it computes nothing itself.
type PacketMAC interface {
	// Size is the number of MAC bytes that follow each packet.
	Size() int

	// Append computes the MAC of packet under sequence number seq and
	// appends it to dst.
	Append(dst []byte, seq uint32, packet []byte) []byte

	// Verify checks mac for packet under sequence number seq.
	Verify(seq uint32, packet, mac []byte) error
}

// PacketCodec frames and unframes binary packets, RFC 4253 section 6. A
// codec is owned by one connection; one reader and one writer may use it
// at the same time since the two directions keep separate state.
type PacketCodec struct {
	// BlockSize is the alignment of 1 + len(payload) + padding_length.
	// Values below DefaultBlockSize are raised to it.
	BlockSize int

	// AlignLengthField also counts the 4-byte packet_length field toward
	// the alignment, as RFC 4253 does. Some peers insist on it. It only
	// affects Encode: ReadPacket accepts either convention.
	AlignLengthField bool

	// MaxPacket bounds packet_length in both directions.
	MaxPacket uint32

	// Rand supplies padding bytes.
	Rand io.Reader

	ReadMAC  PacketMAC
	WriteMAC PacketMAC

	readSeq  uint32
	writeSeq uint32
}

// NewPacketCodec returns a codec with the default block size, the given
// maximum packet length and random source. A zero maxPacket selects
// DefaultMaxPacket; a nil rand selects crypto/rand.
func NewPacketCodec(maxPacket uint32, rand io.Reader) *PacketCodec {
	c := &PacketCodec{BlockSize: DefaultBlockSize, MaxPacket: maxPacket, Rand: rand}
	return c.setDefaults()
}

func (c *PacketCodec) setDefaults() *PacketCodec {
	if c.BlockSize < DefaultBlockSize {
		c.BlockSize = DefaultBlockSize
	}
	if c.MaxPacket == 0 {
		c.MaxPacket = DefaultMaxPacket
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	return c
}

func (c *PacketCodec) alignOffset() int {
	if c.AlignLengthField {
		return 4
	}
	return 0
}

// aligned reports whether a received packet_length is block aligned with
// or without the length field counted. OpenSSH, PuTTY and x/crypto/ssh
// count it.
func (c *PacketCodec) aligned(length uint32) bool {
	n := int(length)
	return n%c.BlockSize == 0 || (n+4)%c.BlockSize == 0
}

// paddingLength is the smallest value in [4, 255] that aligns a packet
// carrying n payload bytes.
func (c *PacketCodec) paddingLength(n int) int {
	bs := c.BlockSize
	used := c.alignOffset() + 1 + n
	padding := bs - used%bs
	if padding < minPaddingLength {
		padding += bs
	}
	return padding
}

// Encode frames payload into a complete packet, including the MAC if one
// is installed. It advances the write sequence number.
func (c *PacketCodec) Encode(payload []byte) ([]byte, error) {
	c.setDefaults()
	padding := c.paddingLength(len(payload))
	if padding > maxPaddingLength {
		return nil, &FramingError{Msg: "block size too large for padding", Length: c.BlockSize}
	}
	length := 1 + len(payload) + padding
	if uint64(length) > uint64(c.MaxPacket) {
		return nil, &FramingError{Msg: "payload too large", Length: len(payload)}
	}
	macSize := 0
	if c.WriteMAC != nil {
		macSize = c.WriteMAC.Size()
	}

	packet := make([]byte, 4+length, 4+length+macSize)
	binary.BigEndian.PutUint32(packet, uint32(length))
	packet[4] = byte(padding)
	copy(packet[5:], payload)
	if _, err := io.ReadFull(c.Rand, packet[5+len(payload):]); err != nil {
		return nil, fmt.Errorf("ssh: reading padding: %w", err)
	}
	if c.WriteMAC != nil {
		packet = c.WriteMAC.Append(packet, c.writeSeq, packet)
	}
	c.writeSeq++
	return packet, nil
}

// WritePacket frames payload and writes it to w.
func (c *PacketCodec) WritePacket(w io.Writer, payload []byte) error {
	packet, err := c.Encode(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(packet); err != nil {
		return wrapIO("write packet", err)
	}
	return nil
}

// ReadPacket reads one packet from r and returns its payload. The claimed
// packet_length is checked against MaxPacket before the buffer for the rest
// of the packet is allocated. A clean EOF before the first byte is an
// IOError; EOF anywhere later is a short read and a FramingError.
func (c *PacketCodec) ReadPacket(r io.Reader) ([]byte, error) {
	c.setDefaults()
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Msg: "short read in packet length", Length: len(header), Err: err}
		}
		return nil, wrapIO("read packet", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > c.MaxPacket {
		return nil, &FramingError{Msg: fmt.Sprintf("packet exceeds maximum of %d", c.MaxPacket), Length: int(length)}
	}
	if length < minPacketLength {
		return nil, &FramingError{Msg: "packet too small", Length: int(length)}
	}
	if !c.aligned(length) {
		return nil, &FramingError{Msg: fmt.Sprintf("packet not a multiple of block size %d", c.BlockSize), Length: int(length)}
	}

	macSize := 0
	if c.ReadMAC != nil {
		macSize = c.ReadMAC.Size()
	}
	packet := make([]byte, 4+int(length)+macSize)
	copy(packet, header[:])
	if _, err := io.ReadFull(r, packet[4:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Msg: "short read in packet body", Length: int(length), Err: err}
		}
		return nil, wrapIO("read packet", err)
	}
	if c.ReadMAC != nil {
		body := packet[:4+length]
		if err := c.ReadMAC.Verify(c.readSeq, body, packet[4+length:]); err != nil {
			return nil, &FramingError{Msg: "mac verification failed", Length: int(length), Err: err}
		}
	}
	c.readSeq++

	padding := uint32(packet[4])
	if padding < minPaddingLength {
		return nil, &FramingError{Msg: fmt.Sprintf("padding length %d below minimum", padding), Length: int(length)}
	}
	if padding+1 > length {
		return nil, &FramingError{Msg: fmt.Sprintf("padding length %d exceeds packet", padding), Length: int(length)}
	}
	return packet[5 : 4+length-padding], nil
}

// PacketConn sends and receives whole payloads over a connection. It is
// what the key-exchange component receives at hand-off.
type PacketConn interface {
	WritePacket(payload []byte) error
	ReadPacket() ([]byte, error)

	// Codec exposes the framing state so a key exchange can install a
	// block size and MACs after new keys are taken into use.
	Codec() *PacketCodec

	Close() error
}

// transport is the PacketConn over a single network connection. Reads go
// through the same buffered reader used for the identification line so
// that nothing the peer sent after its line is lost.
type transport struct {
	rw    io.ReadWriteCloser
	r     *bufio.Reader
	codec *PacketCodec
}

func newTransport(rw io.ReadWriteCloser, r *bufio.Reader, codec *PacketCodec) *transport {
	return &transport{rw: rw, r: r, codec: codec}
}

func (t *transport) WritePacket(payload []byte) error {
	return t.codec.WritePacket(t.rw, payload)
}

func (t *transport) ReadPacket() ([]byte, error) {
	return t.codec.ReadPacket(t.r)
}

func (t *transport) Codec() *PacketCodec { return t.codec }

func (t *transport) Close() error {
	return t.rw.Close()
}
