package ssh

// HandshakeLog contains detailed information about each step of the
// SSH handshake, and can be encoded to JSON.
type HandshakeLog struct {
	Banner             []string        `json:"banner,omitempty"`
	ServerID           *EndpointId     `json:"server_id,omitempty"`
	ClientID           *EndpointId     `json:"client_id,omitempty"`
	ServerKex          *KexInitMsg     `json:"server_key_exchange,omitempty"`
	ClientKex          *KexInitMsg     `json:"client_key_exchange,omitempty"`
	ClientHASSH        *Fingerprint    `json:"hassh,omitempty"`
	ServerHASSH        *Fingerprint    `json:"hassh_server,omitempty"`
	AlgorithmSelection *Algorithms     `json:"algorithm_selection,omitempty"`
	IgnoredPackets     []int           `json:"ignored_message_types,omitempty"`
	PeerDisconnect     *PeerDisconnect `json:"peer_disconnect,omitempty"`
	State              string          `json:"state"`
	AbortReason        string          `json:"abort_reason,omitempty"`
}

// PeerDisconnect is an SSH_MSG_DISCONNECT received from the peer.
type PeerDisconnect struct {
	Reason      DisconnectReason `json:"reason_code"`
	Description string           `json:"description,omitempty"`
}
