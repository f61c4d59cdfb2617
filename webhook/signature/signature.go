package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// hexPrefix is accepted in front of hex signatures, as some provisioning paths send it
const hexPrefix = "sha256="

// Compute returns the HMAC-SHA256 of body keyed with secret
func Compute(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// EncodeBase64 returns the base64 form of the body signature
func EncodeBase64(body []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(Compute(body, secret))
}

// EncodeHex returns the hex form of the body signature
func EncodeHex(body []byte, secret string) string {
	return hex.EncodeToString(Compute(body, secret))
}

/* Verify authenticates a raw request body against the signature header
 * body must be the exact bytes received: re-encoding a parsed document breaks the digest
 * The header is accepted either base64 or hex encoded. Any problem yields false.
 */
func Verify(body []byte, header, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}

	expected := Compute(body, secret)

	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil && len(decoded) == sha256.Size {
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return true
		}
	}

	decoded, err := hex.DecodeString(strings.TrimPrefix(header, hexPrefix))
	if err != nil || len(decoded) != sha256.Size {
		return false
	}
	return subtle.ConstantTimeCompare(decoded, expected) == 1
}
