package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 signature of payload under secret and
// returns it as lowercase hex. The signature covers the exact byte
// string; callers must sign the serialized payload they send.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is a valid lowercase-hex HMAC-SHA256
// signature of payload under secret. Comparison is constant-time.
func Verify(payload []byte, secret, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}

// NewSecret generates a random 32-byte webhook secret as hex.
func NewSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(buf)
}
