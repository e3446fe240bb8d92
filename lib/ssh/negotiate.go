package ssh

// DirectionAlgorithms are the algorithms chosen for one direction of the
// connection.
type DirectionAlgorithms struct {
	Cipher      string `json:"cipher"`
	MAC         string `json:"mac"`
	Compression string `json:"compression"`
	Language    string `json:"language,omitempty"`
}

// Algorithms is the negotiated algorithm set handed to the key exchange.
// It is built once and never modified.
type Algorithms struct {
	Kex          string              `json:"key_exchange_algorithm"`
	HostKey      string              `json:"host_key_algorithm"`
	ClientServer DirectionAlgorithms `json:"client_to_server_alg_group"`
	ServerClient DirectionAlgorithms `json:"server_to_client_alg_group"`

	// The first_kex_packet_follows flags as sent. They are recorded only:
	// guessed key exchange packets are the key exchange's business.
	ClientFirstKexFollows bool `json:"client_first_kex_follows"`
	ServerFirstKexFollows bool `json:"server_first_kex_follows"`
}

// findCommonAlgorithm returns the first name in the client's list that the
// server also lists, in any position.
func findCommonAlgorithm(clientAlgos, serverAlgos NameList) (string, bool) {
	for _, clientAlgo := range clientAlgos {
		for _, serverAlgo := range serverAlgos {
			if clientAlgo == serverAlgo {
				return clientAlgo, true
			}
		}
	}
	return "", false
}

// findAgreedAlgorithms negotiates every category independently. A failure
// in a mandatory category is a NegotiationError naming it; the language
// categories are advisory and stay empty when nothing matches.
func findAgreedAlgorithms(clientKexInit, serverKexInit *KexInitMsg) (*Algorithms, error) {
	var chosen [numCategories]string
	for _, c := range Categories() {
		client, server := clientKexInit.List(c), serverKexInit.List(c)
		algo, ok := findCommonAlgorithm(client, server)
		if !ok && c.Mandatory() {
			return nil, &NegotiationError{Category: c, Client: client, Server: server}
		}
		chosen[c] = algo
	}
	return &Algorithms{
		Kex:     chosen[CategoryKex],
		HostKey: chosen[CategoryHostKey],
		ClientServer: DirectionAlgorithms{
			Cipher:      chosen[CategoryCipherClientServer],
			MAC:         chosen[CategoryMACClientServer],
			Compression: chosen[CategoryCompressionClientServer],
			Language:    chosen[CategoryLanguageClientServer],
		},
		ServerClient: DirectionAlgorithms{
			Cipher:      chosen[CategoryCipherServerClient],
			MAC:         chosen[CategoryMACServerClient],
			Compression: chosen[CategoryCompressionServerClient],
			Language:    chosen[CategoryLanguageServerClient],
		},
		ClientFirstKexFollows: clientKexInit.FirstKexFollows,
		ServerFirstKexFollows: serverKexInit.FirstKexFollows,
	}, nil
}
