// Package wire implements the MT4 Web Terminal outer length/type frame and
// inner random/command/(error)/data frame, selecting between AuthKey and
// SessionKey per the protocol's key-selection rule. Encode and Decode are
// pure functions; they perform no I/O.
package wire

import (
	"encoding/binary"
	"math/rand"

	"github.com/coachpo/mt4gw/crypto"
	"github.com/coachpo/mt4gw/errs"
)

// TokenCommand is the command number whose frames are always encrypted with
// AuthKey, in both directions. Every other command uses the session key.
const TokenCommand = 0

const (
	outerHeaderSize  = 8 // length:u32 + type:u32
	outerFrameType   = 1
	outboundInnerMin = 4 // random:u16 + command:u16
	inboundInnerMin  = 5 // random:u16 + command:u16 + error_code:u8
)

// KeySelector returns the key to use for a given outbound/inbound command.
// Frames carrying command 0 use AuthKey; everything else uses sessionKey.
func KeySelector(sessionKey [32]byte) func(command uint16) [32]byte {
	return func(command uint16) [32]byte {
		if command == TokenCommand {
			return crypto.AuthKey
		}
		return sessionKey
	}
}

// Encode composes the inner frame (random || command || data), encrypts it
// with the key selected for command, and prepends the 8-byte outer header.
func Encode(key [32]byte, command uint16, data []byte) ([]byte, error) {
	inner := make([]byte, outboundInnerMin+len(data))
	binary.LittleEndian.PutUint16(inner[0:2], randomNonce())
	binary.LittleEndian.PutUint16(inner[2:4], command)
	copy(inner[4:], data)

	ciphertext, err := crypto.Encrypt(key, inner)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, outerHeaderSize+len(ciphertext))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(4+len(ciphertext)))
	binary.LittleEndian.PutUint32(frame[4:8], outerFrameType)
	copy(frame[outerHeaderSize:], ciphertext)
	return frame, nil
}

// Decoded is the result of decoding one inbound frame.
type Decoded struct {
	Command   uint16
	ErrorCode byte
	Data      []byte
}

// Decode splits the outer header, decrypts the ciphertext with the key
// selected for the frame's declared type, and splits the inner header. The
// caller must already know which key applies for the expected command, or
// pass sessionKey and inspect the returned Command against TokenCommand to
// detect a key mismatch after the fact via DecodeWithCommandHint.
func Decode(key [32]byte, frame []byte) (Decoded, error) {
	if len(frame) < outerHeaderSize {
		return Decoded{}, errs.Protocol(errs.ReasonFrameLengthMismatch,
			errs.WithMessage("frame shorter than outer header"))
	}
	length := binary.LittleEndian.Uint32(frame[0:4])
	ciphertext := frame[outerHeaderSize:]
	if int(length) != 4+len(ciphertext) {
		return Decoded{}, errs.Protocol(errs.ReasonFrameLengthMismatch)
	}

	plaintext, err := crypto.Decrypt(key, ciphertext)
	if err != nil {
		return Decoded{}, errs.Protocol(errs.ReasonDecryptFailed, errs.WithCause(err))
	}
	if len(plaintext) < inboundInnerMin {
		return Decoded{}, errs.Protocol(errs.ReasonTruncatedRecord,
			errs.WithMessage("inner frame shorter than header"))
	}

	return Decoded{
		Command:   binary.LittleEndian.Uint16(plaintext[2:4]),
		ErrorCode: plaintext[4],
		Data:      plaintext[5:],
	}, nil
}

// DecodeAny decodes a frame whose command is not known in advance by trying
// AuthKey first only when the caller indicates the session has not yet seen
// command 0 complete; in normal operation the session state machine always
// knows which key currently applies and calls Decode directly. This helper
// exists for the reader task's first frame, immediately after sending
// command 0, where AuthKey is the only valid key.
func DecodeAny(sessionKey [32]byte, expectToken bool, frame []byte) (Decoded, error) {
	if expectToken {
		return Decode(crypto.AuthKey, frame)
	}
	return Decode(sessionKey, frame)
}

func randomNonce() uint16 {
	return uint16(rand.Intn(1 << 16))
}
