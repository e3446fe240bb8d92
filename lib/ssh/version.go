package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// EndpointId is a parsed identification line, RFC 4253 section 4.2:
//
//	SSH-protoversion-softwareversion SP comments CR LF
type EndpointId struct {
	Raw             string `json:"raw,omitempty"`
	ProtoVersion    string `json:"version,omitempty"`
	SoftwareVersion string `json:"software,omitempty"`
	Comment         string `json:"comment,omitempty"`
}

// ParseEndpointId parses an identification line with the line terminator
// already removed. Only protocol versions 2.0 and 1.99 are accepted.
func ParseEndpointId(line []byte) (*EndpointId, error) {
	if !bytes.HasPrefix(line, []byte("SSH-")) {
		return nil, &ProtocolError{Msg: "identification does not start with SSH-", Length: len(line)}
	}
	for _, c := range line {
		// RFC 4253 disallows non US-ASCII chars, and
		// specifically forbids null chars.
		if c < 0x20 || c > 0x7e {
			return nil, &ProtocolError{Msg: fmt.Sprintf("junk character 0x%02x in identification", c), Length: len(line)}
		}
	}
	id := &EndpointId{Raw: string(line)}
	rest := line[4:]
	p := bytes.IndexByte(rest, '-')
	if p < 1 {
		return nil, &ProtocolError{Msg: "missing protocol version", Length: len(line)}
	}
	id.ProtoVersion = string(rest[:p])
	rest = rest[p+1:]
	if sp := bytes.IndexByte(rest, ' '); sp >= 0 {
		id.SoftwareVersion = string(rest[:sp])
		id.Comment = string(rest[sp+1:])
	} else {
		id.SoftwareVersion = string(rest)
	}
	if id.SoftwareVersion == "" {
		return nil, &ProtocolError{Msg: "missing software version", Length: len(line)}
	}
	if id.ProtoVersion != "2.0" && id.ProtoVersion != "1.99" {
		return nil, &ProtocolError{Msg: fmt.Sprintf("unsupported protocol version %q", id.ProtoVersion), Length: len(line), Err: ErrUnsupportedVersion}
	}
	return id, nil
}

// isVersionUnsupported reports whether err should be answered with
// DisconnectProtocolVersionUnsupported rather than a generic protocol error.
func isVersionUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedVersion)
}

// writeVersion sends the local identification line followed by CR LF.
func writeVersion(w io.Writer, versionLine string) error {
	buf := make([]byte, 0, len(versionLine)+2)
	buf = append(buf, versionLine...)
	buf = append(buf, '\r', '\n')
	if _, err := w.Write(buf); err != nil {
		return wrapIO("write version", err)
	}
	return nil
}

// readVersion reads lines from r until one starts with "SSH-". Each line,
// terminator included, may be at most maxLen bytes; at most maxBanner
// other lines are skipped and returned as banner text. No more than maxLen
// bytes are ever buffered for a line.
func readVersion(r io.ByteReader, maxLen, maxBanner int) (line []byte, banner []string, err error) {
	buf := make([]byte, 0, 64)
	for {
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return nil, banner, &ProtocolError{Msg: "connection closed inside identification line", Length: len(buf)}
			}
			return nil, banner, wrapIO("read version", err)
		}
		if len(buf)+1 > maxLen {
			return nil, banner, &ProtocolError{Msg: fmt.Sprintf("identification line exceeds %d bytes", maxLen), Length: len(buf) + 1}
		}
		// The RFC says that the version should be terminated with \r\n
		// but several implementations only send a \n.
		if c != '\n' {
			buf = append(buf, c)
			continue
		}
		if len(buf) > 0 && buf[len(buf)-1] == '\r' {
			buf = buf[:len(buf)-1]
		}
		if bytes.HasPrefix(buf, []byte("SSH-")) {
			return buf, banner, nil
		}
		if len(banner) >= maxBanner {
			return nil, banner, &ProtocolError{Msg: fmt.Sprintf("no identification line within %d lines", maxBanner+1), Length: len(buf)}
		}
		banner = append(banner, safeString(string(buf)))
		buf = buf[:0]
	}
}
