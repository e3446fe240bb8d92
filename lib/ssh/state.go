package ssh

import (
	"fmt"
)

// State is the position of a connection in the handshake.
type State int

const (
	StateInit State = iota
	StateVersionExchanged
	StateLocalKexSent
	StateAwaitingRemoteKex
	StateRemoteKexReceived
	StateAlgorithmsNegotiated
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateVersionExchanged:
		return "version-exchanged"
	case StateLocalKexSent:
		return "local-kex-sent"
	case StateAwaitingRemoteKex:
		return "awaiting-remote-kex"
	case StateRemoteKexReceived:
		return "remote-kex-received"
	case StateAlgorithmsNegotiated:
		return "algorithms-negotiated"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// handshakeState tracks one connection's negotiation. It is owned by the
// connection's goroutine and needs no locking. The local and remote
// KEXINIT and the negotiated algorithms are each set at most once.
type handshakeState struct {
	isClient bool

	state  State
	reason string

	local  *KexInitMsg
	remote *KexInitMsg
	algs   *Algorithms
}

func newHandshakeState(isClient bool) *handshakeState {
	return &handshakeState{isClient: isClient, state: StateInit}
}

func (h *handshakeState) transition(from, to State) error {
	if h.state != from {
		return fmt.Errorf("ssh: invalid handshake transition %s -> %s from state %s", from, to, h.state)
	}
	h.state = to
	return nil
}

func (h *handshakeState) versionExchanged() error {
	return h.transition(StateInit, StateVersionExchanged)
}

func (h *handshakeState) localKexSent(m *KexInitMsg) error {
	if h.local != nil {
		return fmt.Errorf("ssh: local KEXINIT already sent")
	}
	if err := h.transition(StateVersionExchanged, StateLocalKexSent); err != nil {
		return err
	}
	h.local = m
	return nil
}

func (h *handshakeState) awaitRemoteKex() error {
	return h.transition(StateLocalKexSent, StateAwaitingRemoteKex)
}

func (h *handshakeState) remoteKexReceived(m *KexInitMsg) error {
	if h.remote != nil {
		return fmt.Errorf("ssh: remote KEXINIT already received")
	}
	if err := h.transition(StateAwaitingRemoteKex, StateRemoteKexReceived); err != nil {
		return err
	}
	h.remote = m
	return nil
}

// negotiate combines both KEXINITs. The client's preference order decides.
// On failure the state becomes Aborted with a "no matching <category>"
// reason.
func (h *handshakeState) negotiate() (*Algorithms, error) {
	if h.state != StateRemoteKexReceived {
		return nil, fmt.Errorf("ssh: cannot negotiate in state %s", h.state)
	}
	client, server := h.remote, h.local
	if h.isClient {
		client, server = h.local, h.remote
	}
	algs, err := findAgreedAlgorithms(client, server)
	if err != nil {
		if ne, ok := err.(*NegotiationError); ok {
			h.abort("no matching " + ne.Category.String())
		} else {
			h.abort(err.Error())
		}
		return nil, err
	}
	h.algs = algs
	h.state = StateAlgorithmsNegotiated
	return algs, nil
}

// abort moves to the terminal failure state. The first reason wins.
func (h *handshakeState) abort(reason string) {
	if h.state == StateAborted || h.state == StateAlgorithmsNegotiated {
		return
	}
	h.state = StateAborted
	h.reason = reason
}
