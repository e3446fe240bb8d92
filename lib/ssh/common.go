// Package ssh implements the front end of the SSH transport protocol
// (RFC 4253): identification exchange, binary packet framing and KEXINIT
// algorithm negotiation. The key exchange itself is delegated to a
// KeyExchanger once both sides have agreed on an algorithm set.
package ssh

import (
	xssh "golang.org/x/crypto/ssh"
)

// Message numbers used before key exchange, RFC 4250 section 4.1.
const (
	msgDisconnect    = 1
	msgIgnore        = 2
	msgUnimplemented = 3
	msgDebug         = 4
	msgKexInit       = 20
)

const (
	kexAlgoCurve25519SHA256       = "curve25519-sha256"
	kexAlgoCurve25519SHA256LibSSH = "curve25519-sha256@libssh.org"
	kexAlgoECDH256                = "ecdh-sha2-nistp256"
	kexAlgoECDH384                = "ecdh-sha2-nistp384"
	kexAlgoECDH521                = "ecdh-sha2-nistp521"
	kexAlgoDH14SHA256             = "diffie-hellman-group14-sha256"
	kexAlgoDH14SHA1               = "diffie-hellman-group14-sha1"
	kexAlgoDH1SHA1                = "diffie-hellman-group1-sha1"

	compressionNone = "none"
)

// supportedKexAlgos are the names this server is willing to offer.
var supportedKexAlgos = []string{
	kexAlgoCurve25519SHA256, kexAlgoCurve25519SHA256LibSSH,
	kexAlgoECDH256, kexAlgoECDH384, kexAlgoECDH521,
	kexAlgoDH14SHA256, kexAlgoDH14SHA1, kexAlgoDH1SHA1,
}

// defaultKexAlgos leaves out the 1024-bit group.
var defaultKexAlgos = []string{
	kexAlgoCurve25519SHA256, kexAlgoCurve25519SHA256LibSSH,
	kexAlgoECDH256, kexAlgoECDH384, kexAlgoECDH521,
	kexAlgoDH14SHA256, kexAlgoDH14SHA1,
}

var supportedHostKeyAlgos = []string{
	xssh.KeyAlgoED25519,
	xssh.KeyAlgoECDSA256, xssh.KeyAlgoECDSA384, xssh.KeyAlgoECDSA521,
	xssh.KeyAlgoRSASHA512, xssh.KeyAlgoRSASHA256, xssh.KeyAlgoRSA,
}

var defaultHostKeyAlgos = []string{
	xssh.KeyAlgoED25519, xssh.KeyAlgoECDSA256,
	xssh.KeyAlgoRSASHA512, xssh.KeyAlgoRSASHA256, xssh.KeyAlgoRSA,
}

var supportedCiphers = []string{
	"aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
	"chacha20-poly1305@openssh.com",
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
	"aes128-cbc", "3des-cbc",
}

var defaultCiphers = []string{
	"aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
	"chacha20-poly1305@openssh.com",
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
}

var supportedMACs = []string{
	"hmac-sha2-256-etm@openssh.com", "hmac-sha2-512-etm@openssh.com",
	"hmac-sha2-256", "hmac-sha2-512", "hmac-sha1", "hmac-sha1-96",
}

var defaultMACs = []string{
	"hmac-sha2-256-etm@openssh.com", "hmac-sha2-256", "hmac-sha2-512", "hmac-sha1",
}

var supportedCompressions = []string{compressionNone}

func contains(list []string, e string) bool {
	for _, s := range list {
		if s == e {
			return true
		}
	}
	return false
}

// SupportedAlgorithms returns a copy of every name the server knows for
// the given category, most preferred first.
func SupportedAlgorithms(c Category) []string {
	var src []string
	switch c {
	case CategoryKex:
		src = supportedKexAlgos
	case CategoryHostKey:
		src = supportedHostKeyAlgos
	case CategoryCipherClientServer, CategoryCipherServerClient:
		src = supportedCiphers
	case CategoryMACClientServer, CategoryMACServerClient:
		src = supportedMACs
	case CategoryCompressionClientServer, CategoryCompressionServerClient:
		src = supportedCompressions
	}
	return append([]string(nil), src...)
}
