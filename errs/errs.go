// Package errs provides the structured error taxonomy for the mt4gw protocol engine.
package errs

import (
	"strconv"
	"strings"
)

// Kind identifies which layer of the protocol engine raised the error.
type Kind string

const (
	// KindBootstrap covers the HTTP login/server bootstrap exchange.
	KindBootstrap Kind = "bootstrap"
	// KindTransport covers WebSocket open/read/write failures.
	KindTransport Kind = "transport"
	// KindCrypto covers AES-256-CBC/PKCS7 failures.
	KindCrypto Kind = "crypto"
	// KindProtocol covers framing and session-level violations.
	KindProtocol Kind = "protocol"
	// KindAuth covers non-zero error codes returned during the login handshake.
	KindAuth Kind = "auth"
	// KindTrade covers non-zero error codes returned on a trade response.
	KindTrade Kind = "trade"
	// KindClient covers facade-level misuse (not connected, disconnected mid-request, ...).
	KindClient Kind = "client"
)

// Reason refines a Kind with the specific condition observed. Not every Kind
// uses every reason; see the constructors below for the valid combinations.
type Reason string

const (
	ReasonBadPadding          Reason = "bad_padding"
	ReasonBadLength           Reason = "bad_length"
	ReasonFrameLengthMismatch Reason = "frame_length_mismatch"
	ReasonDecryptFailed       Reason = "decrypt_failed"
	ReasonUnexpectedCommand   Reason = "unexpected_command"
	ReasonTruncatedRecord     Reason = "truncated_record"
	ReasonWebTerminalDisabled Reason = "web_terminal_disabled"
	ReasonMalformedResponse   Reason = "malformed_response"
	ReasonBadSessionKeyHex    Reason = "bad_session_key_hex"
	ReasonNotConnected        Reason = "not_connected"
	ReasonDisconnected        Reason = "disconnected"
	ReasonUnknownCommand      Reason = "unknown_command"
)

// E captures structured error information produced across the mt4gw stack.
type E struct {
	Kind        Kind
	Reason      Reason
	Code        int
	Message     string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope of the given kind.
func New(kind Kind, opts ...Option) *E {
	e := &E{
		Kind:        kind,
		Reason:      "",
		Code:        0,
		Message:     "",
		Remediation: "",
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithReason attaches the specific failure reason.
func WithReason(reason Reason) Option {
	return func(e *E) { e.Reason = reason }
}

// WithCode attaches the raw server error code (auth error codes, trade error codes).
func WithCode(code int) Option {
	return func(e *E) { e.Code = code }
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithRemediation attaches remediation guidance.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) { e.Remediation = trimmed }
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 6)
	parts = append(parts, "kind="+string(e.Kind))
	if e.Reason != "" {
		parts = append(parts, "reason="+string(e.Reason))
	}
	if e.Code != 0 {
		parts = append(parts, "code="+strconv.Itoa(e.Code))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether err (or anything it wraps) is an *E with the given kind.
func Is(err error, kind Kind) bool {
	var e *E
	for err != nil {
		if asE, ok := err.(*E); ok {
			e = asE
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// Bootstrap constructs a BootstrapError.
func Bootstrap(reason Reason, opts ...Option) *E {
	return New(KindBootstrap, append([]Option{WithReason(reason)}, opts...)...)
}

// Transport constructs a TransportError.
func Transport(opts ...Option) *E {
	return New(KindTransport, opts...)
}

// Crypto constructs a CryptoError.
func Crypto(reason Reason, opts ...Option) *E {
	return New(KindCrypto, append([]Option{WithReason(reason)}, opts...)...)
}

// Protocol constructs a ProtocolError.
func Protocol(reason Reason, opts ...Option) *E {
	return New(KindProtocol, append([]Option{WithReason(reason)}, opts...)...)
}

// Auth constructs an AuthError carrying the server's non-zero error code.
func Auth(code int, opts ...Option) *E {
	return New(KindAuth, append([]Option{WithCode(code)}, opts...)...)
}

// Trade constructs a TradeError carrying the server's non-zero error code.
func Trade(code int, opts ...Option) *E {
	return New(KindTrade, append([]Option{WithCode(code)}, opts...)...)
}

// Client constructs a ClientError.
func Client(reason Reason, opts ...Option) *E {
	return New(KindClient, append([]Option{WithReason(reason)}, opts...)...)
}
