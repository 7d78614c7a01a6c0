// Package signature verifies Shopify webhook signatures. Shopify sends an
// X-Shopify-Hmac-Sha256 header holding a base64-encoded HMAC-SHA256 digest
// of the raw request body, keyed with the shop's webhook secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Verify reports whether signature matches the HMAC-SHA256 of body under
// secret. Comparison is constant time. Malformed or empty signatures
// return false; Verify never fails in any other way.
func Verify(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
