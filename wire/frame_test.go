package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/coachpo/mt4gw/crypto"
)

func TestEncodeOuterLengthMatchesCiphertext(t *testing.T) {
	frame, err := Encode(crypto.AuthKey, TokenCommand, []byte("abc"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	length := binary.LittleEndian.Uint32(frame[0:4])
	ciphertextLen := len(frame) - 8
	if int(length) != 4+ciphertextLen {
		t.Fatalf("outer length %d, want %d", length, 4+ciphertextLen)
	}
	if ciphertextLen%16 != 0 || ciphertextLen == 0 {
		t.Fatalf("ciphertext length %d not a positive multiple of 16", ciphertextLen)
	}
	frameType := binary.LittleEndian.Uint32(frame[4:8])
	if frameType != outerFrameType {
		t.Fatalf("frame type %d, want %d", frameType, outerFrameType)
	}
}

func TestRoundTripNonTokenCommand(t *testing.T) {
	var sessionKey [32]byte
	for i := range sessionKey {
		sessionKey[i] = byte(i + 1)
	}
	data := []byte("payload-bytes")
	frame, err := Encode(sessionKey, 12, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(sessionKey, frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Command != 12 {
		t.Fatalf("command = %d, want 12", decoded.Command)
	}
	if decoded.ErrorCode != 0 {
		t.Fatalf("error_code = %d, want 0", decoded.ErrorCode)
	}
	if !bytes.Equal(decoded.Data, data) {
		t.Fatalf("data = %q, want %q", decoded.Data, data)
	}
}

func TestRoundTripTokenCommandUsesAuthKey(t *testing.T) {
	frame, err := Encode(crypto.AuthKey, TokenCommand, []byte("token-bytes"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(crypto.AuthKey, frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Command != TokenCommand {
		t.Fatalf("command = %d, want %d", decoded.Command, TokenCommand)
	}
}

func TestDecodeWrongKeyFailsAsDecryptError(t *testing.T) {
	var sessionKey [32]byte
	for i := range sessionKey {
		sessionKey[i] = byte(i + 1)
	}
	frame, err := Encode(sessionKey, 4, []byte("positions"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(crypto.AuthKey, frame); err == nil {
		t.Fatal("expected decrypt failure when using the wrong key for the frame's phase")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	frame, err := Encode(crypto.AuthKey, TokenCommand, []byte("abc"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	binary.LittleEndian.PutUint32(frame[0:4], 999)
	if _, err := Decode(crypto.AuthKey, frame); err == nil {
		t.Fatal("expected frame length mismatch error")
	}
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	if _, err := Decode(crypto.AuthKey, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for a frame shorter than the outer header")
	}
}

func TestKeySelectorPicksAuthKeyForCommandZero(t *testing.T) {
	var sessionKey [32]byte
	sessionKey[0] = 0xAB
	selector := KeySelector(sessionKey)
	if selector(TokenCommand) != crypto.AuthKey {
		t.Fatal("expected AuthKey for command 0")
	}
	if selector(12) != sessionKey {
		t.Fatal("expected SessionKey for non-zero commands")
	}
}

func TestRandomNonceVariesPerFrame(t *testing.T) {
	seen := make(map[uint16]bool)
	for i := 0; i < 32; i++ {
		seen[randomNonce()] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected random nonce to vary across frames")
	}
}
