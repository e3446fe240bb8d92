package sshkex

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zmap/sshkex/lib/ssh"
	"gopkg.in/yaml.v2"
)

type GeneralOptions struct {
	GOMAXPROCS int    `long:"gomaxprocs" default:"0" description:"Set GOMAXPROCS" validate:"gte=0"`
	Prometheus string `long:"prometheus" description:"Address to use for Prometheus server (e.g. localhost:8080). If empty, Prometheus is disabled." validate:"omitempty,hostname_port"`
	LogLevel   string `long:"log-level" default:"info" description:"Minimum level to log" validate:"oneof=panic fatal error warn warning info debug trace"`
}

type InputOutputOptions struct {
	LogFileName    string `short:"l" long:"log-file" default:"-" description:"Log filename, use - for stderr"`
	MetaFileName   string `short:"m" long:"metadata-file" default:"-" description:"Metadata filename, use - for stderr."`
	OutputFileName string `short:"o" long:"output-file" default:"-" description:"Output filename, use - for stdout"`
	Flush          bool   `long:"flush" description:"Flush after each line of output."`
}

type NetworkingOptions struct {
	ListenAddress  string        `long:"listen-address" default:"" description:"Local address to listen on. Listens on all addresses if empty." validate:"omitempty,ip"`
	Port           uint          `short:"p" long:"port" default:"2222" description:"Port to listen on" validate:"gte=1,lte=65535"`
	MaxConnections int           `long:"max-connections" default:"1000" description:"Maximum number of concurrent handshakes, 0 for no limit" validate:"gte=0"`
	SessionTimeout time.Duration `long:"session-timeout" default:"30s" description:"Maximum lifetime of a connection"`
	ReadTimeout    time.Duration `long:"read-timeout" default:"10s" description:"Timeout for each read from a client, 0 for none"`
	WriteTimeout   time.Duration `long:"write-timeout" default:"10s" description:"Timeout for each write to a client, 0 for none"`
	ReadLimit      int           `long:"read-limit" default:"512" description:"Maximum total kilobytes to read from a single client" validate:"gte=1"`
}

type ProtocolOptions struct {
	ServerVersion     string `long:"server-version" default:"SSH-2.0-sshkex_1.0" description:"Identification line sent to clients" validate:"startswith=SSH-2.0-,max=253,printascii"`
	KexAlgorithms     string `long:"kex-algorithms" description:"Key exchange algorithms. A leading +, - or ^ appends, removes (wildcards allowed) or prepends."`
	HostKeyAlgorithms string `long:"host-key-algorithms" description:"Host key algorithms, same syntax as --kex-algorithms"`
	Ciphers           string `long:"ciphers" description:"Ciphers for both directions, same syntax as --kex-algorithms"`
	MACs              string `long:"macs" description:"MACs for both directions, same syntax as --kex-algorithms"`
	Compression       string `long:"compression" description:"Compression algorithms for both directions, same syntax as --kex-algorithms"`
	AllowUnsupported  bool   `long:"allow-unsupported-algorithms" description:"Accept cipher, MAC and compression names this server does not know"`
	AlgorithmsFile    string `long:"algorithms-file" description:"YAML file with one list per KEXINIT field. Applied before the algorithm flags."`
	FirstKexFollows   bool   `long:"first-kex-follows" description:"Set first_kex_packet_follows in the server KEXINIT"`
	MaxPacket         uint32 `long:"max-packet" default:"262144" description:"Maximum packet_length accepted and sent" validate:"gte=35000"`
	MaxIdentLength    int    `long:"max-ident-length" default:"255" description:"Maximum length of each identification or banner line" validate:"gte=8,lte=255"`
	MaxBannerLines    int    `long:"max-banner-lines" default:"32" description:"Lines a client may send before its identification line" validate:"gte=1"`
	MaxIgnored        int    `long:"max-ignored-packets" default:"64" description:"Packets skipped while waiting for the client KEXINIT" validate:"gte=1"`
	RFCAlignment      bool   `long:"rfc-alignment" description:"Count the packet_length field toward block alignment, as RFC 4253 specifies"`
}

// Config is the high level framework options that will be parsed
// from the command line
type Config struct {
	GeneralOptions     // CLI Options related to general framework configuration
	InputOutputOptions // CLI Options related to I/O
	NetworkingOptions  // CLI Options related to the listener and per-connection limits
	ProtocolOptions    // CLI Options related to the SSH handshake
	outputFile         *os.File
	metaFile           *os.File
	logFile            *os.File
	outputResults      OutputResultsFunc
	serverConfig       *ssh.ServerConfig
}

var config Config

var validate = validator.New()

// validateFrameworkConfiguration checks the parsed options and opens the
// configured files.
func validateFrameworkConfiguration() error {
	if err := validate.Struct(&config); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if config.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, given %v", config.SessionTimeout)
	}
	if config.ReadTimeout < 0 || config.WriteTimeout < 0 {
		return errors.New("read and write timeouts must not be negative")
	}

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)

	// validate files
	if config.LogFileName == "-" {
		config.logFile = os.Stderr
	} else {
		if config.logFile, err = os.Create(config.LogFileName); err != nil {
			return errors.Wrap(err, "error creating log file")
		}
		log.SetOutput(config.logFile)
	}

	if config.OutputFileName == "-" {
		config.outputFile = os.Stdout
	} else {
		if config.outputFile, err = os.Create(config.OutputFileName); err != nil {
			return errors.Wrap(err, "error creating output file")
		}
	}
	config.outputResults = OutputResultsWriterFunc(config.outputFile, config.Flush)

	if config.MetaFileName == "-" {
		config.metaFile = os.Stderr
	} else if len(config.MetaFileName) > 0 {
		if config.metaFile, err = os.Create(config.MetaFileName); err != nil {
			return errors.Wrap(err, "error creating meta file")
		}
	}

	runtime.GOMAXPROCS(config.GOMAXPROCS)

	config.serverConfig, err = config.ProtocolOptions.serverConfig()
	return err
}

// serverConfig builds the handshake configuration: defaults, then the
// algorithms file, then the per-category flags.
func (o *ProtocolOptions) serverConfig() (*ssh.ServerConfig, error) {
	sc := ssh.MakeServerConfig()
	sc.ServerVersion = o.ServerVersion
	sc.MaxPacket = o.MaxPacket
	sc.MaxVersionLength = o.MaxIdentLength
	sc.MaxBannerLines = o.MaxBannerLines
	sc.MaxIgnoredPackets = o.MaxIgnored
	sc.AlignLengthField = o.RFCAlignment
	sc.FirstKexFollows = o.FirstKexFollows

	if o.AlgorithmsFile != "" {
		prefs, err := loadAlgorithmsFile(o.AlgorithmsFile, sc.Preferences)
		if err != nil {
			return nil, err
		}
		sc.Preferences = *prefs
	}
	if err := sc.SetKexAlgorithms(o.KexAlgorithms); err != nil {
		return nil, errors.Wrap(err, "invalid --kex-algorithms")
	}
	if err := sc.SetHostKeyAlgorithms(o.HostKeyAlgorithms); err != nil {
		return nil, errors.Wrap(err, "invalid --host-key-algorithms")
	}
	if err := sc.SetCiphers(o.Ciphers, o.AllowUnsupported); err != nil {
		return nil, errors.Wrap(err, "invalid --ciphers")
	}
	if err := sc.SetMACs(o.MACs, o.AllowUnsupported); err != nil {
		return nil, errors.Wrap(err, "invalid --macs")
	}
	if err := sc.SetCompressionAlgorithms(o.Compression, o.AllowUnsupported); err != nil {
		return nil, errors.Wrap(err, "invalid --compression")
	}
	sc.SetDefaults()
	if err := sc.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid ssh configuration")
	}
	return sc, nil
}

// loadAlgorithmsFile reads a YAML document of ssh.Preferences. Lists the
// file omits keep their value from base.
func loadAlgorithmsFile(path string, base ssh.Preferences) (*ssh.Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read algorithms file %s", path)
	}
	prefs := base
	if err := yaml.UnmarshalStrict(data, &prefs); err != nil {
		return nil, errors.Wrapf(err, "could not parse algorithms file %s", path)
	}
	if err := prefs.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid algorithms file %s", path)
	}
	return &prefs, nil
}

// ListenAddr is the host:port the server listens on.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(int(c.Port)))
}

// NewServer returns a Server configured from the parsed command line.
func NewServer(monitor *Monitor) *Server {
	return &Server{
		Config:         config.serverConfig,
		MaxConnections: config.MaxConnections,
		SessionTimeout: config.SessionTimeout,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		BytesReadLimit: config.ReadLimit * 1024,
		Monitor:        monitor,
		Output:         config.outputResults,
		OutputBuffer:   config.MaxConnections,
	}
}

// GetConfig returns the parsed framework configuration.
func GetConfig() *Config {
	return &config
}

// GetMetaFile returns the file to which metadata should be output
func GetMetaFile() *os.File {
	return config.metaFile
}
