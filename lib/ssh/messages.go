package ssh

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Category identifies one of the ten name-list slots of a KEXINIT message.
// The constants are in wire order.
type Category int

const (
	CategoryKex Category = iota
	CategoryHostKey
	CategoryCipherClientServer
	CategoryCipherServerClient
	CategoryMACClientServer
	CategoryMACServerClient
	CategoryCompressionClientServer
	CategoryCompressionServerClient
	CategoryLanguageClientServer
	CategoryLanguageServerClient

	numCategories
)

var categoryNames = [numCategories]string{
	"key exchange algorithm",
	"host key algorithm",
	"client to server cipher",
	"server to client cipher",
	"client to server MAC",
	"server to client MAC",
	"client to server compression",
	"server to client compression",
	"client to server language",
	"server to client language",
}

var categoryFields = [numCategories]string{
	"kex_algorithms",
	"server_host_key_algorithms",
	"encryption_algorithms_client_to_server",
	"encryption_algorithms_server_to_client",
	"mac_algorithms_client_to_server",
	"mac_algorithms_server_to_client",
	"compression_algorithms_client_to_server",
	"compression_algorithms_server_to_client",
	"languages_client_to_server",
	"languages_server_to_client",
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Field is the RFC 4253 field name of the category.
func (c Category) Field() string {
	if c < 0 || c >= numCategories {
		return c.String()
	}
	return categoryFields[c]
}

// Mandatory reports whether a failed match in this category aborts the
// handshake. Only the language lists are advisory.
func (c Category) Mandatory() bool {
	return c >= CategoryKex && c < CategoryLanguageClientServer
}

// Categories lists every category in wire order.
func Categories() []Category {
	out := make([]Category, numCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// KexInitMsg is SSH_MSG_KEXINIT, RFC 4253 section 7.1.
//
//	byte         SSH_MSG_KEXINIT
//	byte[16]     cookie (random bytes)
//	name-list    kex_algorithms
//	name-list    server_host_key_algorithms
//	name-list    encryption_algorithms_client_to_server
//	name-list    encryption_algorithms_server_to_client
//	name-list    mac_algorithms_client_to_server
//	name-list    mac_algorithms_server_to_client
//	name-list    compression_algorithms_client_to_server
//	name-list    compression_algorithms_server_to_client
//	name-list    languages_client_to_server
//	name-list    languages_server_to_client
//	boolean      first_kex_packet_follows
//	uint32       0 (reserved for future extension)
type KexInitMsg struct {
	Cookie                  [16]byte `json:"cookie"`
	KexAlgos                NameList `json:"key_exchange_algorithms"`
	ServerHostKeyAlgos      NameList `json:"host_key_algorithms"`
	CiphersClientServer     NameList `json:"client_to_server_ciphers"`
	CiphersServerClient     NameList `json:"server_to_client_ciphers"`
	MACsClientServer        NameList `json:"client_to_server_macs"`
	MACsServerClient        NameList `json:"server_to_client_macs"`
	CompressionClientServer NameList `json:"client_to_server_compression"`
	CompressionServerClient NameList `json:"server_to_client_compression"`
	LanguagesClientServer   NameList `json:"client_to_server_languages,omitempty"`
	LanguagesServerClient   NameList `json:"server_to_client_languages,omitempty"`
	FirstKexFollows         bool     `json:"first_kex_follows"`
	Reserved                uint32   `json:"reserved"`

	// Raw is the payload exactly as sent or received. It is an input to
	// the exchange hash.
	Raw []byte `json:"-"`
}

// lists returns the ten name-list slots in wire order.
func (m *KexInitMsg) lists() [numCategories]*NameList {
	return [numCategories]*NameList{
		&m.KexAlgos,
		&m.ServerHostKeyAlgos,
		&m.CiphersClientServer,
		&m.CiphersServerClient,
		&m.MACsClientServer,
		&m.MACsServerClient,
		&m.CompressionClientServer,
		&m.CompressionServerClient,
		&m.LanguagesClientServer,
		&m.LanguagesServerClient,
	}
}

// List returns the name-list for category c.
func (m *KexInitMsg) List(c Category) NameList {
	if c < 0 || c >= numCategories {
		return nil
	}
	return *m.lists()[c]
}

// NewKexInit builds the local KEXINIT from prefs with a fresh cookie drawn
// from rand. The reserved field is zero and Raw holds the encoded payload.
func NewKexInit(prefs *Preferences, rand io.Reader) (*KexInitMsg, error) {
	m := new(KexInitMsg)
	if _, err := io.ReadFull(rand, m.Cookie[:]); err != nil {
		return nil, fmt.Errorf("ssh: generating cookie: %w", err)
	}
	dst := m.lists()
	src := prefs.lists()
	for i := range dst {
		*dst[i] = append(NameList(nil), (*src[i])...)
	}
	m.FirstKexFollows = prefs.FirstKexFollows
	m.Raw = m.Marshal()
	return m, nil
}

// Marshal encodes m as a KEXINIT payload.
func (m *KexInitMsg) Marshal() []byte {
	n := 1 + len(m.Cookie) + 1 + 4
	for _, l := range m.lists() {
		n += l.Len()
	}
	b := make([]byte, 0, n)
	b = append(b, msgKexInit)
	b = append(b, m.Cookie[:]...)
	for _, l := range m.lists() {
		b = l.AppendTo(b)
	}
	if m.FirstKexFollows {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	return binary.BigEndian.AppendUint32(b, m.Reserved)
}

// ParseKexInit decodes a KEXINIT payload. A non-zero reserved field is
// accepted and kept in Reserved: RFC 4253 only says it is "reserved for
// future extension", and rejecting it would break forward compatibility.
// Trailing bytes after the reserved field are rejected.
func ParseKexInit(payload []byte) (*KexInitMsg, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Msg: "empty payload", Length: 0}
	}
	if payload[0] != msgKexInit {
		return nil, &DecodeError{Msg: fmt.Sprintf("message type %d is not KEXINIT", payload[0]), Length: len(payload)}
	}
	m := new(KexInitMsg)
	if len(payload) < 1+len(m.Cookie) {
		return nil, &DecodeError{Field: "cookie", Msg: "truncated cookie", Length: len(payload)}
	}
	copy(m.Cookie[:], payload[1:])
	rest := payload[1+len(m.Cookie):]

	for i, slot := range m.lists() {
		l, r, err := ParseNameList(rest)
		if err != nil {
			if de, ok := err.(*DecodeError); ok {
				de.Field = Category(i).Field()
			}
			return nil, err
		}
		*slot, rest = l, r
	}

	if len(rest) < 5 {
		return nil, &DecodeError{Field: "first_kex_packet_follows", Msg: "truncated trailer", Length: len(rest)}
	}
	m.FirstKexFollows = rest[0] != 0
	m.Reserved = binary.BigEndian.Uint32(rest[1:5])
	if len(rest) > 5 {
		return nil, &DecodeError{Msg: "trailing data after reserved field", Length: len(rest) - 5}
	}
	m.Raw = append([]byte(nil), payload...)
	return m, nil
}

// DisconnectReason is the reason code of SSH_MSG_DISCONNECT, RFC 4253
// section 11.1.
type DisconnectReason uint32

const (
	DisconnectHostNotAllowedToConnect    DisconnectReason = 1
	DisconnectProtocolError              DisconnectReason = 2
	DisconnectKeyExchangeFailed          DisconnectReason = 3
	DisconnectMACError                   DisconnectReason = 5
	DisconnectServiceNotAvailable        DisconnectReason = 7
	DisconnectProtocolVersionUnsupported DisconnectReason = 8
	DisconnectByApplication              DisconnectReason = 11
	DisconnectTooManyConnections         DisconnectReason = 12
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectHostNotAllowedToConnect:
		return "host not allowed to connect"
	case DisconnectProtocolError:
		return "protocol error"
	case DisconnectKeyExchangeFailed:
		return "key exchange failed"
	case DisconnectMACError:
		return "mac error"
	case DisconnectServiceNotAvailable:
		return "service not available"
	case DisconnectProtocolVersionUnsupported:
		return "protocol version not supported"
	case DisconnectByApplication:
		return "by application"
	case DisconnectTooManyConnections:
		return "too many connections"
	}
	return fmt.Sprintf("reason(%d)", uint32(r))
}

// parseDisconnect extracts the reason code and description of a peer's
// SSH_MSG_DISCONNECT for logging. Malformed messages yield what could be
// read.
func parseDisconnect(payload []byte) (DisconnectReason, string) {
	if len(payload) < 5 {
		return 0, ""
	}
	reason := DisconnectReason(binary.BigEndian.Uint32(payload[1:5]))
	rest := payload[5:]
	if len(rest) < 4 {
		return reason, ""
	}
	n := binary.BigEndian.Uint32(rest)
	rest = rest[4:]
	if uint64(n) > uint64(len(rest)) {
		return reason, ""
	}
	return reason, safeString(string(rest[:n]))
}

// safeString replaces control characters so peer-supplied text can be
// logged, RFC 4251 section 9.2.
func safeString(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c < 0x20 || c == 0x7f {
			out[i] = '?'
		}
	}
	return string(out)
}
