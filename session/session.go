// Package session implements the MT4 Web Terminal login handshake and the
// per-command gating described in spec §4.4: which commands are valid to
// send, and how inbound commands advance (or terminate) the session.
package session

import (
	"unicode/utf16"

	"github.com/coachpo/mt4gw/errs"
)

// State is one of the session's login-handshake phases.
type State int

const (
	Idle State = iota
	Connecting
	AwaitingToken
	AwaitingPassword
	AwaitingAccountInfo
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case AwaitingToken:
		return "AwaitingToken"
	case AwaitingPassword:
		return "AwaitingPassword"
	case AwaitingAccountInfo:
		return "AwaitingAccountInfo"
	case Authenticated:
		return "Authenticated"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Command numbers relevant to the session state machine. Business commands
// (buy/sell/close/ping/history) are gated the same way (anything is valid
// once Authenticated) and are not enumerated here individually.
const (
	CmdToken         = 0
	CmdPassword      = 1
	CmdAccountInfo   = 3
	CmdCurrentOrders = 4
	CmdHistory       = 5
	CmdOrderUpdate   = 10
	CmdTrade         = 12
	CmdPing          = 51
)

const passwordFieldSize = 64
const tokenFieldSize = 64

// PasswordPayload encodes password as UTF-16LE, right-padded with zero bytes
// (or truncated) to exactly 64 bytes, per spec §4.4.
func PasswordPayload(password string) []byte {
	buf := make([]byte, passwordFieldSize)
	units := utf16.Encode([]rune(password))
	for i, unit := range units {
		offset := i * 2
		if offset+2 > passwordFieldSize {
			break
		}
		buf[offset] = byte(unit)
		buf[offset+1] = byte(unit >> 8)
	}
	return buf
}

// TokenPayload returns the 64 ASCII token bytes exactly as received from the
// HTTP bootstrap. It fails if token is not exactly 64 bytes.
func TokenPayload(token string) ([]byte, error) {
	if len(token) != tokenFieldSize {
		return nil, errs.Bootstrap(errs.ReasonMalformedResponse,
			errs.WithMessage("token must be exactly 64 bytes"))
	}
	return []byte(token), nil
}

// Machine drives the login handshake. It is not safe for concurrent use;
// callers confine it to a single task (the reader, per spec §5).
type Machine struct {
	state State
}

// New returns a Machine in the Idle state.
func New() *Machine {
	return &Machine{state: Idle}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// BeginConnect transitions Idle -> AwaitingToken, the state a caller should
// be in immediately after sending command 0.
func (m *Machine) BeginConnect() error {
	if m.state != Idle {
		return errs.Client(errs.ReasonUnexpectedCommand,
			errs.WithMessage("connect called outside the Idle state"))
	}
	m.state = AwaitingToken
	return nil
}

// transitionResult is what the caller (the client facade) must do in
// response to processing one inbound command.
type Action int

const (
	ActionNone Action = iota
	// ActionSendPassword tells the caller to send command 1 with the
	// session key now available.
	ActionSendPassword
	// ActionSendCurrentPositions tells the caller to auto-send an empty
	// command-4 frame (spec §4.4's mandatory follow-up).
	ActionSendCurrentPositions
	// ActionClose tells the caller to close the transport.
	ActionClose
)

// HandleCommand advances the state machine for one inbound (command,
// errorCode) pair and returns the action the caller must take next. It
// returns an error when the command is not valid for the current state;
// per spec §7, unknown/unexpected commands never terminate the session on
// their own (they become RawMessage events further up the stack) — only the
// caller decides whether to call Close after an error here.
func (m *Machine) HandleCommand(command uint16, errorCode byte) (Action, error) {
	switch m.state {
	case AwaitingToken:
		if command != CmdToken {
			return ActionNone, nil // surfaced as RawMessage by the caller
		}
		if errorCode != 0 {
			m.state = Closed
			return ActionClose, errs.Auth(int(errorCode))
		}
		m.state = AwaitingPassword
		return ActionSendPassword, nil

	case AwaitingPassword:
		if command != CmdPassword {
			return ActionNone, nil
		}
		if errorCode != 0 {
			m.state = Closed
			return ActionClose, errs.Auth(int(errorCode))
		}
		m.state = AwaitingAccountInfo
		return ActionNone, nil

	case AwaitingAccountInfo:
		if command == CmdAccountInfo {
			m.state = Authenticated
			return ActionSendCurrentPositions, nil
		}
		return ActionNone, nil

	case Authenticated:
		return ActionNone, nil

	case Closed:
		return ActionNone, errs.Client(errs.ReasonDisconnected)

	default:
		return ActionNone, errs.Client(errs.ReasonUnexpectedCommand,
			errs.WithMessage("no inbound command is valid before connect()"))
	}
}

// CanSendBusinessCommand reports whether a non-handshake command (buy,
// sell, close, ping, history, account-info, current-positions) may be sent
// in the current state.
func (m *Machine) CanSendBusinessCommand() bool {
	return m.state == Authenticated
}

// Disconnect absorbs the state machine into Closed from any state (spec §3:
// "Monotonic except for Closed, which absorbs from any state").
func (m *Machine) Disconnect() {
	m.state = Closed
}
