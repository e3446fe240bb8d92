package sshkex

import (
	"strings"

	log "github.com/sirupsen/logrus"
	flags "github.com/zmap/zflags"
)

var parser *flags.Parser // parser for the sshkex command line

func init() {
	parser = flags.NewParser(nil, flags.Default)
	desc := []string{
		"sshkex accepts SSH connections and runs the transport handshake up to algorithm negotiation: " +
			"identification exchange, KEXINIT exchange and negotiation. Every connection produces one " +
			"JSON line on stdout or --output-file describing both identification lines, both KEXINIT " +
			"messages, the negotiated algorithms and how the connection ended.",
		"",
		"Example usages:",
		"sshkex --port 2222                                  # Listen on all addresses, port 2222",
		"sshkex --kex-algorithms=-diffie-hellman-group*      # Do not offer any finite field DH",
	}
	parser.LongDescription = strings.Join(desc, "\n")
	_, err := parser.AddGroup("General Options", "General options for controlling the behavior of sshkex", &config.GeneralOptions)
	if err != nil {
		log.Fatalf("could not add general options group: %v", err)
	}
	_, err = parser.AddGroup("Input/Output Options", "Options for controlling the input/output behavior of sshkex", &config.InputOutputOptions)
	if err != nil {
		log.Fatalf("could not add I/O options group: %v", err)
	}
	_, err = parser.AddGroup("Network Options", "Options for controlling the network behavior of sshkex", &config.NetworkingOptions)
	if err != nil {
		log.Fatalf("could not add networking options group: %v", err)
	}
	_, err = parser.AddGroup("Protocol Options", "Options for controlling the SSH handshake", &config.ProtocolOptions)
	if err != nil {
		log.Fatalf("could not add protocol options group: %v", err)
	}
}

// ParseCommandLine parses the commands given on the command line
// and validates the framework configuration (global options)
// immediately after parsing
func ParseCommandLine(args []string) ([]string, error) {
	posArgs, _, _, err := parser.ParseCommandLine(args)
	if err != nil {
		return nil, err
	}
	return posArgs, validateFrameworkConfiguration()
}
