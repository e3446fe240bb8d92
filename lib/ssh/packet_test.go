package ssh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	. "gopkg.in/check.v1"
)

func TestPackets(t *testing.T) { TestingT(t) }

type PacketSuite struct {
	codec *PacketCodec
}

var _ = Suite(&PacketSuite{})

func (s *PacketSuite) SetUpTest(c *C) {
	s.codec = NewPacketCodec(0, zeroReader{})
}

// zeroReader is a deterministic stand-in for crypto/rand.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// countingReader records how many bytes were taken from r.
type countingReader struct {
	r io.Reader
	n int
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += n
	return n, err
}

func header(length uint32, rest ...byte) []byte {
	return append(binary.BigEndian.AppendUint32(nil, length), rest...)
}

func framingError(c *C, err error) *FramingError {
	var fe *FramingError
	c.Assert(errors.As(err, &fe), Equals, true, Commentf("got %v", err))
	return fe
}

func (s *PacketSuite) TestRoundTrip(c *C) {
	var buf bytes.Buffer
	var payloads [][]byte
	for n := 0; n < 600; n += 7 {
		p := bytes.Repeat([]byte{byte(n)}, n)
		payloads = append(payloads, p)
		c.Assert(s.codec.WritePacket(&buf, p), IsNil)
	}
	reader := NewPacketCodec(0, nil)
	for _, p := range payloads {
		got, err := reader.ReadPacket(&buf)
		c.Assert(err, IsNil)
		c.Check(bytes.Equal(got, p), Equals, true)
	}
	c.Check(buf.Len(), Equals, 0)
}

func (s *PacketSuite) TestAlignment(c *C) {
	for _, blockSize := range []int{8, 16, 32} {
		s.codec.BlockSize = blockSize
		for n := 0; n < 100; n++ {
			packet, err := s.codec.Encode(make([]byte, n))
			c.Assert(err, IsNil)
			length := int(binary.BigEndian.Uint32(packet))
			padding := int(packet[4])
			c.Check(len(packet), Equals, 4+length)
			c.Check(length, Equals, 1+n+padding)
			c.Check(length%blockSize, Equals, 0)
			c.Check(padding >= minPaddingLength && padding <= maxPaddingLength, Equals, true)
			c.Check(padding < minPaddingLength+blockSize, Equals, true)
		}
	}
}

func (s *PacketSuite) TestAlignLengthField(c *C) {
	s.codec.AlignLengthField = true
	for n := 0; n < 40; n++ {
		packet, err := s.codec.Encode(make([]byte, n))
		c.Assert(err, IsNil)
		c.Check(len(packet)%DefaultBlockSize, Equals, 0)
	}

	packet, err := s.codec.Encode([]byte{20, 1, 2})
	c.Assert(err, IsNil)
	got, err := s.codec.ReadPacket(bytes.NewReader(packet))
	c.Assert(err, IsNil)
	c.Check(got, DeepEquals, []byte{20, 1, 2})

	// A default codec reads it too.
	reader := NewPacketCodec(0, nil)
	got, err = reader.ReadPacket(bytes.NewReader(packet))
	c.Assert(err, IsNil)
	c.Check(got, DeepEquals, []byte{20, 1, 2})
}

// rfcFrame frames payload the way x/crypto/ssh, OpenSSH and PuTTY do:
// the whole packet, length field included, is a multiple of bs.
func rfcFrame(payload []byte, bs int) []byte {
	padding := bs - (4+1+len(payload))%bs
	if padding < 4 {
		padding += bs
	}
	length := uint32(1 + len(payload) + padding)
	packet := header(length, byte(padding))
	packet = append(packet, payload...)
	return append(packet, make([]byte, padding)...)
}

func (s *PacketSuite) TestRFCAlignedFrame(c *C) {
	for n := 0; n < 64; n++ {
		payload := bytes.Repeat([]byte{20}, n)
		packet := rfcFrame(payload, DefaultBlockSize)
		length := binary.BigEndian.Uint32(packet)
		c.Assert(length%DefaultBlockSize, Equals, uint32(4))

		got, err := s.codec.ReadPacket(bytes.NewReader(packet))
		c.Assert(err, IsNil, Commentf("payload %d bytes", n))
		c.Check(bytes.Equal(got, payload), Equals, true)
	}
}

func (s *PacketSuite) TestOversizeRejectedBeforeBody(c *C) {
	r := &countingReader{r: bytes.NewReader(header(0xfffffff0))}
	_, err := s.codec.ReadPacket(r)
	fe := framingError(c, err)
	c.Check(fe.Length, Equals, 0xfffffff0)
	c.Check(r.n, Equals, 4)

	s.codec.MaxPacket = 35000
	r = &countingReader{r: bytes.NewReader(header(35008, make([]byte, 64)...))}
	_, err = s.codec.ReadPacket(r)
	framingError(c, err)
	c.Check(r.n, Equals, 4)
}

func (s *PacketSuite) TestEncodeRejectsOversizePayload(c *C) {
	s.codec.MaxPacket = 35000
	_, err := s.codec.Encode(make([]byte, 35000))
	framingError(c, err)

	_, err = s.codec.Encode(make([]byte, 34000))
	c.Check(err, IsNil)
}

func (s *PacketSuite) TestUndersizeAndMisaligned(c *C) {
	_, err := s.codec.ReadPacket(bytes.NewReader(header(4, 4, 0, 0, 0)))
	framingError(c, err)

	// 13 is aligned under neither rule.
	_, err = s.codec.ReadPacket(bytes.NewReader(header(13, make([]byte, 13)...)))
	framingError(c, err)

	s.codec.BlockSize = 16
	_, err = s.codec.ReadPacket(bytes.NewReader(header(24, 4, 0, 0, 0)))
	framingError(c, err)

	got, err := s.codec.ReadPacket(bytes.NewReader(header(12, append([]byte{11}, make([]byte, 11)...)...)))
	c.Assert(err, IsNil)
	c.Check(len(got), Equals, 0)
}

func (s *PacketSuite) TestPaddingBounds(c *C) {
	body := func(padding byte) []byte {
		return append([]byte{padding}, make([]byte, 7)...)
	}
	_, err := s.codec.ReadPacket(bytes.NewReader(header(8, body(3)...)))
	framingError(c, err)

	_, err = s.codec.ReadPacket(bytes.NewReader(header(8, body(8)...)))
	framingError(c, err)

	got, err := s.codec.ReadPacket(bytes.NewReader(header(8, body(7)...)))
	c.Assert(err, IsNil)
	c.Check(len(got), Equals, 0)

	got, err = s.codec.ReadPacket(bytes.NewReader(header(8, body(4)...)))
	c.Assert(err, IsNil)
	c.Check(len(got), Equals, 3)
}

func (s *PacketSuite) TestShortReads(c *C) {
	packet, err := s.codec.Encode([]byte("payload"))
	c.Assert(err, IsNil)

	_, err = NewPacketCodec(0, nil).ReadPacket(bytes.NewReader(packet[:len(packet)-3]))
	fe := framingError(c, err)
	c.Check(errors.Is(fe, io.ErrUnexpectedEOF), Equals, true)

	_, err = NewPacketCodec(0, nil).ReadPacket(bytes.NewReader(packet[:4]))
	framingError(c, err)

	_, err = NewPacketCodec(0, nil).ReadPacket(bytes.NewReader(packet[:2]))
	framingError(c, err)
}

func (s *PacketSuite) TestCleanEOF(c *C) {
	_, err := s.codec.ReadPacket(bytes.NewReader(nil))
	var ie *IOError
	c.Assert(errors.As(err, &ie), Equals, true)
	c.Check(errors.Is(err, io.EOF), Equals, true)
	c.Check(IsClean(err), Equals, false)
}

// sumMAC is a toy MAC over the sequence number and packet bytes.
type sumMAC struct{}

func (sumMAC) Size() int { return 4 }

func (sumMAC) Append(dst []byte, seq uint32, packet []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, sum(seq, packet))
}

func (sumMAC) Verify(seq uint32, packet, mac []byte) error {
	if binary.BigEndian.Uint32(mac) != sum(seq, packet) {
		return errors.New("mismatch")
	}
	return nil
}

func sum(seq uint32, packet []byte) uint32 {
	s := seq
	for _, b := range packet {
		s = s*31 + uint32(b)
	}
	return s
}

func (s *PacketSuite) TestMACHook(c *C) {
	s.codec.WriteMAC = sumMAC{}
	reader := NewPacketCodec(0, nil)
	reader.ReadMAC = sumMAC{}

	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		c.Assert(s.codec.WritePacket(&buf, []byte{byte(i), 1, 2, 3}), IsNil)
	}
	for i := 0; i < 3; i++ {
		got, err := reader.ReadPacket(&buf)
		c.Assert(err, IsNil)
		c.Check(got, DeepEquals, []byte{byte(i), 1, 2, 3})
	}

	packet, err := s.codec.Encode([]byte("tamper"))
	c.Assert(err, IsNil)
	packet[6] ^= 0xff
	_, err = reader.ReadPacket(bytes.NewReader(packet))
	framingError(c, err)
}

func (s *PacketSuite) TestMACSequenceNumbers(c *C) {
	s.codec.WriteMAC = sumMAC{}
	first, err := s.codec.Encode([]byte("x"))
	c.Assert(err, IsNil)

	// A reader that missed the first packet is one sequence number behind.
	reader := NewPacketCodec(0, nil)
	reader.ReadMAC = sumMAC{}
	second, err := s.codec.Encode([]byte("x"))
	c.Assert(err, IsNil)
	_, err = reader.ReadPacket(bytes.NewReader(second))
	framingError(c, err)

	reader = NewPacketCodec(0, nil)
	reader.ReadMAC = sumMAC{}
	_, err = reader.ReadPacket(bytes.NewReader(append(first, second...)))
	c.Assert(err, IsNil)
}
