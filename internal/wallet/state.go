package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the connection lifecycle phase
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "Disconnected"
	case PhaseConnecting:
		return "Connecting"
	case PhaseConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// State is a snapshot of the wallet connection. Zero Account and ChainID
// mean absent. PhaseConnected implies a non-zero Account.
type State struct {
	Account   common.Address
	ChainID   uint64
	Phase     Phase
	Supported bool
	LastError error
}

// Connected reports PhaseConnected
func (s State) Connected() bool {
	return s.Phase == PhaseConnected
}

// HasAccount reports whether an account is recorded
func (s State) HasAccount() bool {
	return s.Account != (common.Address{})
}

// Label renders the phase with its support qualifier, e.g. "Connected{Unsupported}"
func (s State) Label() string {
	if s.Phase != PhaseConnected {
		return s.Phase.String()
	}
	if s.Supported {
		return "Connected{Supported}"
	}
	return "Connected{Unsupported}"
}

func (s State) String() string {
	if s.Phase != PhaseConnected {
		return s.Label()
	}
	return fmt.Sprintf("%s account=%s chainId=%d", s.Label(), FormatAddress(s.Account), s.ChainID)
}

// FormatAddress shortens an address to 0x1234...abcd
func FormatAddress(a common.Address) string {
	hex := a.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
