package ssh

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gobwas/glob"
)

const (
	packageVersion = "SSH-2.0-sshkex_1.0"

	// maxVersionStringBytes is the maximum number of bytes that we'll
	// accept as a version string. RFC 4253 section 4.2 limits this at 255
	// chars including CR LF.
	maxVersionStringBytes = 255

	defaultMaxBannerLines    = 32
	defaultMaxIgnoredPackets = 64
)

// Preferences holds the ordered algorithm lists offered in KEXINIT, one
// per category, plus the first_kex_packet_follows flag.
type Preferences struct {
	KexAlgorithms           NameList `yaml:"kex_algorithms"`
	HostKeyAlgorithms       NameList `yaml:"server_host_key_algorithms"`
	CiphersClientServer     NameList `yaml:"encryption_algorithms_client_to_server"`
	CiphersServerClient     NameList `yaml:"encryption_algorithms_server_to_client"`
	MACsClientServer        NameList `yaml:"mac_algorithms_client_to_server"`
	MACsServerClient        NameList `yaml:"mac_algorithms_server_to_client"`
	CompressionClientServer NameList `yaml:"compression_algorithms_client_to_server"`
	CompressionServerClient NameList `yaml:"compression_algorithms_server_to_client"`
	LanguagesClientServer   NameList `yaml:"languages_client_to_server"`
	LanguagesServerClient   NameList `yaml:"languages_server_to_client"`
	FirstKexFollows         bool     `yaml:"first_kex_packet_follows"`
}

func (p *Preferences) lists() [numCategories]*NameList {
	return [numCategories]*NameList{
		&p.KexAlgorithms,
		&p.HostKeyAlgorithms,
		&p.CiphersClientServer,
		&p.CiphersServerClient,
		&p.MACsClientServer,
		&p.MACsServerClient,
		&p.CompressionClientServer,
		&p.CompressionServerClient,
		&p.LanguagesClientServer,
		&p.LanguagesServerClient,
	}
}

// Get returns the list for category c.
func (p *Preferences) Get(c Category) NameList {
	if c < 0 || c >= numCategories {
		return nil
	}
	return *p.lists()[c]
}

// Set replaces the list for category c.
func (p *Preferences) Set(c Category, l NameList) {
	if c < 0 || c >= numCategories {
		return
	}
	*p.lists()[c] = l
}

// DefaultPreferences returns the server's default offer.
func DefaultPreferences() *Preferences {
	return &Preferences{
		KexAlgorithms:           append(NameList(nil), defaultKexAlgos...),
		HostKeyAlgorithms:       append(NameList(nil), defaultHostKeyAlgos...),
		CiphersClientServer:     append(NameList(nil), defaultCiphers...),
		CiphersServerClient:     append(NameList(nil), defaultCiphers...),
		MACsClientServer:        append(NameList(nil), defaultMACs...),
		MACsServerClient:        append(NameList(nil), defaultMACs...),
		CompressionClientServer: NameList{compressionNone},
		CompressionServerClient: NameList{compressionNone},
	}
}

// Validate checks every list and requires the mandatory ones to be
// non-empty, since an empty offer can never be negotiated.
func (p *Preferences) Validate() error {
	for i, l := range p.lists() {
		c := Category(i)
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%s: %w", c.Field(), err)
		}
		if c.Mandatory() && len(*l) == 0 {
			return fmt.Errorf("%s: empty algorithm list", c.Field())
		}
	}
	return nil
}

// SetKexAlgorithms applies value to the key exchange list.
func (p *Preferences) SetKexAlgorithms(value string) error {
	return p.SetAlgorithms(CategoryKex, value, false)
}

// SetHostKeyAlgorithms applies value to the host key list.
func (p *Preferences) SetHostKeyAlgorithms(value string) error {
	return p.SetAlgorithms(CategoryHostKey, value, false)
}

// SetCiphers applies value to the cipher lists of both directions.
func (p *Preferences) SetCiphers(value string, allowUnsupported bool) error {
	if err := p.SetAlgorithms(CategoryCipherClientServer, value, allowUnsupported); err != nil {
		return err
	}
	return p.SetAlgorithms(CategoryCipherServerClient, value, allowUnsupported)
}

// SetMACs applies value to the MAC lists of both directions.
func (p *Preferences) SetMACs(value string, allowUnsupported bool) error {
	if err := p.SetAlgorithms(CategoryMACClientServer, value, allowUnsupported); err != nil {
		return err
	}
	return p.SetAlgorithms(CategoryMACServerClient, value, allowUnsupported)
}

// SetCompressionAlgorithms applies value to the compression lists of both
// directions.
func (p *Preferences) SetCompressionAlgorithms(value string, allowUnsupported bool) error {
	if err := p.SetAlgorithms(CategoryCompressionClientServer, value, allowUnsupported); err != nil {
		return err
	}
	return p.SetAlgorithms(CategoryCompressionServerClient, value, allowUnsupported)
}

// SetAlgorithms edits the list for category c using the OpenSSH syntax:
//
//	a,b      replace the list
//	+a,b     append names not already present
//	-pat,... remove every name matching one of the wildcard patterns
//	^a,b     move or insert the names at the head of the list
//
// An empty value leaves the list unchanged. Unless allowUnsupported is set,
// added names must be known to this server. Language lists accept any
// well-formed name.
func (p *Preferences) SetAlgorithms(c Category, value string, allowUnsupported bool) error {
	if c < 0 || c >= numCategories {
		return fmt.Errorf("ssh: unknown category %d", int(c))
	}
	var supported []string
	if c.Mandatory() && !allowUnsupported {
		supported = SupportedAlgorithms(c)
	}
	edited, err := editAlgorithms(p.Get(c), value, supported)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Field(), err)
	}
	p.Set(c, edited)
	return nil
}

func editAlgorithms(current NameList, value string, supported []string) (NameList, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return current, nil
	}
	switch value[0] {
	case '+':
		algs, err := validateAlgorithms(value[1:], supported)
		if err != nil {
			return nil, err
		}
		out := append(NameList(nil), current...)
		for _, alg := range algs {
			if !contains(out, alg) {
				out = append(out, alg)
			}
		}
		return out, nil
	case '-':
		var patterns []glob.Glob
		for _, pat := range strings.Split(value[1:], ",") {
			g, err := glob.Compile(strings.TrimSpace(pat))
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pat, err)
			}
			patterns = append(patterns, g)
		}
		var out NameList
	names:
		for _, name := range current {
			for _, g := range patterns {
				if g.Match(name) {
					continue names
				}
			}
			out = append(out, name)
		}
		return out, nil
	case '^':
		algs, err := validateAlgorithms(value[1:], supported)
		if err != nil {
			return nil, err
		}
		out := append(NameList(nil), algs...)
		for _, name := range current {
			if !contains(out, name) {
				out = append(out, name)
			}
		}
		return out, nil
	}
	return validateAlgorithms(value, supported)
}

// validateAlgorithms splits a comma-separated value into a list, checking
// each name against supported when it is non-nil.
func validateAlgorithms(value string, supported []string) (NameList, error) {
	var algs NameList
	for _, alg := range strings.Split(value, ",") {
		alg = strings.TrimSpace(alg)
		if err := validateName(alg); err != nil {
			return nil, err
		}
		if supported != nil && !contains(supported, alg) {
			return nil, fmt.Errorf(`algorithm not supported: "%s"`, alg)
		}
		if contains(algs, alg) {
			return nil, fmt.Errorf(`duplicate algorithm: "%s"`, alg)
		}
		algs = append(algs, alg)
	}
	return algs, nil
}

// ServerConfig holds the immutable settings shared by every connection.
type ServerConfig struct {
	Preferences

	// ServerVersion is the identification line sent to clients, without
	// the trailing CR LF.
	ServerVersion string

	// MaxPacket bounds packet_length of incoming and outgoing packets.
	MaxPacket uint32

	// MaxVersionLength bounds each identification or banner line,
	// including the line terminator.
	MaxVersionLength int

	// MaxBannerLines is how many non "SSH-" lines a peer may send before
	// its identification line.
	MaxBannerLines int

	// MaxIgnoredPackets is how many non-KEXINIT packets are skipped while
	// waiting for the peer's KEXINIT.
	MaxIgnoredPackets int

	// BlockSize is the packet alignment before encryption.
	BlockSize int

	// AlignLengthField selects RFC 4253 alignment, see PacketCodec.
	AlignLengthField bool

	// Rand is the source for cookies and padding. It must be safe for
	// concurrent use; crypto/rand is used when nil.
	Rand io.Reader
}

// MakeServerConfig returns a config with the default algorithm offer.
func MakeServerConfig() *ServerConfig {
	ret := &ServerConfig{Preferences: *DefaultPreferences()}
	ret.SetDefaults()
	return ret
}

// SetDefaults fills in zero values.
func (c *ServerConfig) SetDefaults() {
	if c.ServerVersion == "" {
		c.ServerVersion = packageVersion
	}
	if c.MaxPacket == 0 {
		c.MaxPacket = DefaultMaxPacket
	}
	if c.MaxVersionLength <= 0 || c.MaxVersionLength > maxVersionStringBytes {
		c.MaxVersionLength = maxVersionStringBytes
	}
	if c.MaxBannerLines <= 0 {
		c.MaxBannerLines = defaultMaxBannerLines
	}
	if c.MaxIgnoredPackets <= 0 {
		c.MaxIgnoredPackets = defaultMaxIgnoredPackets
	}
	if c.BlockSize < DefaultBlockSize {
		c.BlockSize = DefaultBlockSize
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
}

// Validate checks the config after SetDefaults.
func (c *ServerConfig) Validate() error {
	if !strings.HasPrefix(c.ServerVersion, "SSH-2.0-") {
		return errors.New(`ssh: server version must start with "SSH-2.0-"`)
	}
	if len(c.ServerVersion)+2 > maxVersionStringBytes {
		return fmt.Errorf("ssh: server version longer than %d bytes", maxVersionStringBytes-2)
	}
	for i := 0; i < len(c.ServerVersion); i++ {
		if b := c.ServerVersion[i]; b < 0x20 || b > 0x7e {
			return fmt.Errorf("ssh: junk character 0x%02x in server version", b)
		}
	}
	if c.BlockSize%DefaultBlockSize != 0 || c.BlockSize > 248 {
		return fmt.Errorf("ssh: unusable block size %d", c.BlockSize)
	}
	if c.MaxPacket < 35000 {
		return fmt.Errorf("ssh: max packet %d below the RFC 4253 minimum of 35000", c.MaxPacket)
	}
	return c.Preferences.Validate()
}
