// Package crypto implements the two fixed-IV AES-256-CBC + PKCS7 ciphers used
// by the MT4 Web Terminal protocol: one keyed with the hard-coded AuthKey for
// the login token exchange, one keyed with the per-session SessionKey for
// every frame after it. Both operations are pure: no I/O, no shared state.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"strings"

	"github.com/coachpo/mt4gw/errs"
)

const (
	keySize   = 32
	blockSize = aes.BlockSize

	// obfuscatedAuthKey is the fixed string from which AuthKey is derived by
	// mapping each character to char-1, then hex-decoding the result.
	obfuscatedAuthKey = "13ef13b2b76dd8:5795gdcfb2fdc1ge85bf768f54773d22fff996e3ge75g5:75"
)

var zeroIV = make([]byte, blockSize)

// AuthKey is the hard-coded 32-byte key used exclusively to encrypt and
// decrypt command 0 (the token exchange). It is derived once at package
// initialization from obfuscatedAuthKey.
var AuthKey = mustDecodeAuthKey()

func mustDecodeAuthKey() [keySize]byte {
	shifted := make([]byte, len(obfuscatedAuthKey))
	for i := 0; i < len(obfuscatedAuthKey); i++ {
		shifted[i] = obfuscatedAuthKey[i] - 1
	}
	decoded, err := hex.DecodeString(string(shifted))
	if err != nil {
		panic("crypto: AuthKey derivation failed: " + err.Error())
	}
	if len(decoded) != keySize {
		panic("crypto: AuthKey derivation produced wrong length")
	}
	var key [keySize]byte
	copy(key[:], decoded)
	return key
}

// DecodeSessionKey decodes the 64-character hex SessionKey sent by the HTTP
// bootstrap endpoint. It fails if the decoded length is not exactly 32 bytes.
func DecodeSessionKey(hexKey string) ([keySize]byte, error) {
	var key [keySize]byte
	trimmed := strings.TrimSpace(hexKey)
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return key, errs.Bootstrap(errs.ReasonBadSessionKeyHex, errs.WithCause(err))
	}
	if len(decoded) != keySize {
		return key, errs.Bootstrap(errs.ReasonBadSessionKeyHex,
			errs.WithMessage("session key must decode to 32 bytes"))
	}
	copy(key[:], decoded)
	return key, nil
}

// Encrypt pads plaintext with PKCS7 and encrypts it with AES-256-CBC under
// the given key, using the protocol's fixed all-zero IV.
func Encrypt(key [keySize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Crypto(errs.ReasonBadLength, errs.WithCause(err))
	}
	padded := pkcs7Pad(plaintext, blockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, zeroIV)
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt reverses Encrypt: it decrypts with AES-256-CBC under the given key
// and strips the PKCS7 padding. It fails if the ciphertext length is not a
// positive multiple of the block size, or the padding is malformed.
func Decrypt(key [keySize]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, errs.Crypto(errs.ReasonBadLength,
			errs.WithMessage("ciphertext length must be a positive multiple of the block size"))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Crypto(errs.ReasonBadLength, errs.WithCause(err))
	}
	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, zeroIV)
	mode.CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, errs.Crypto(errs.ReasonBadPadding, errs.WithMessage("empty plaintext"))
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, errs.Crypto(errs.ReasonBadPadding, errs.WithMessage("padding length out of range"))
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, errs.Crypto(errs.ReasonBadPadding, errs.WithMessage("inconsistent padding bytes"))
		}
	}
	return data[:n-padLen], nil
}
