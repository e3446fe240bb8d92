package bin

import "github.com/zmap/sshkex"

// Summary holds the results of a run of the sshkex binary.
type Summary struct {
	Statuses  map[sshkex.HandshakeStatus]*sshkex.State `json:"statuses"`
	StartTime string                                   `json:"start"`
	EndTime   string                                   `json:"end"`
	Duration  string                                   `json:"duration"`
}
