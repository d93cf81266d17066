package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayload computes the hex HMAC-SHA256 of payload under secret. The
// gateway signs successful payments as "<external_id>|<payment_id>".
func SignPayload(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayload reports whether signature is the valid HMAC of payload.
// Comparison is constant time.
func VerifyPayload(payload, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
