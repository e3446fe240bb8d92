package ssh

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// NameList is an ordered list of algorithm names, RFC 4251 section 5.
// Order encodes preference and is preserved end to end.
//
//	value                      representation (hex)
//	-----                      --------------------
//	(), the empty name-list    00 00 00 00
//	("zlib")                   00 00 00 04 7a 6c 69 62
//	("zlib,none")              00 00 00 09 7a 6c 69 62 2c 6e 6f 6e 65
type NameList []string

// String returns the comma-joined body of the list.
func (l NameList) String() string {
	return strings.Join(l, ",")
}

// Validate checks that every name is non-empty printable ASCII without a
// comma, and that no name appears twice.
func (l NameList) Validate() error {
	seen := make(map[string]bool, len(l))
	for _, name := range l {
		if err := validateName(name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("ssh: duplicate name %q in name-list", name)
		}
		seen[name] = true
	}
	return nil
}

func validateName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("ssh: empty name in name-list")
	}
	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return fmt.Errorf("ssh: invalid byte 0x%02x in name %q", name[i], name)
		}
	}
	return nil
}

// isNameByte reports whether c may appear inside a name: printable
// US-ASCII other than space and comma.
func isNameByte(c byte) bool {
	return c > ' ' && c < 0x7f && c != ','
}

// Len is the encoded size of the list including its length prefix.
func (l NameList) Len() int {
	n := 4
	for i, name := range l {
		if i > 0 {
			n++
		}
		n += len(name)
	}
	return n
}

// AppendTo appends the wire form of l to b.
func (l NameList) AppendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(l.Len()-4))
	for i, name := range l {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, name...)
	}
	return b
}

// Marshal returns the wire form of l. The empty list encodes to four zero
// bytes.
func (l NameList) Marshal() []byte {
	return l.AppendTo(make([]byte, 0, l.Len()))
}

// ParseNameList decodes one name-list from the front of in and returns the
// remaining bytes. The declared length is checked against the input before
// anything is copied.
func ParseNameList(in []byte) (NameList, []byte, error) {
	if len(in) < 4 {
		return nil, nil, &DecodeError{Msg: "truncated name-list length", Length: len(in)}
	}
	length := binary.BigEndian.Uint32(in)
	rest := in[4:]
	if uint64(length) > uint64(len(rest)) {
		return nil, nil, &DecodeError{
			Msg:    fmt.Sprintf("name-list declares %d bytes", length),
			Length: len(rest),
		}
	}
	body, rest := rest[:length], rest[length:]
	if len(body) == 0 {
		return nil, rest, nil
	}
	var out NameList
	start := 0
	for i := 0; i <= len(body); i++ {
		if i < len(body) && body[i] != ',' {
			if !isNameByte(body[i]) {
				return nil, nil, &DecodeError{
					Msg:    fmt.Sprintf("invalid byte 0x%02x at offset %d", body[i], i),
					Length: len(body),
				}
			}
			continue
		}
		if i == start {
			return nil, nil, &DecodeError{
				Msg:    fmt.Sprintf("empty name at offset %d", i),
				Length: len(body),
			}
		}
		out = append(out, string(body[start:i]))
		start = i + 1
	}
	return out, rest, nil
}
