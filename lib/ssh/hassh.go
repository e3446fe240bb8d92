package ssh

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const hasshVersion = "1.0"

// Fingerprint is a HASSH fingerprint of one KEXINIT: the MD5 of the kex,
// cipher, MAC and compression lists joined by ';'.
type Fingerprint struct {
	Hash       string `json:"hash"`
	Algorithms string `json:"algorithms"`
	Version    string `json:"version"`
}

func newFingerprint(lists ...NameList) *Fingerprint {
	parts := make([]string, len(lists))
	for i, l := range lists {
		parts[i] = l.String()
	}
	algorithms := strings.Join(parts, ";")
	sum := md5.Sum([]byte(algorithms))
	return &Fingerprint{
		Hash:       hex.EncodeToString(sum[:]),
		Algorithms: algorithms,
		Version:    hasshVersion,
	}
}

// ClientHASSH fingerprints m as sent by a client, using the client to
// server lists.
func (m *KexInitMsg) ClientHASSH() *Fingerprint {
	return newFingerprint(m.KexAlgos, m.CiphersClientServer, m.MACsClientServer, m.CompressionClientServer)
}

// ServerHASSH fingerprints m as sent by a server, using the server to
// client lists.
func (m *KexInitMsg) ServerHASSH() *Fingerprint {
	return newFingerprint(m.KexAlgos, m.CiphersServerClient, m.MACsServerClient, m.CompressionServerClient)
}
