package dispatch

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcelsud/commerce-webhooks/webhook/signature"
)

/* Forwarded requests are signed the Standard Webhooks way
 * (https://www.standardwebhooks.com): HMAC-SHA256 over "{webhook-id}.{webhook-timestamp}.{body}",
 * sent as "v1,<base64>" in webhook-signature. The MAC itself is the one
 * inbound deliveries are verified with.
 */

const (
	forwardKeyPrefix   = "whsec_"
	forwardSigVersion  = "v1"
	minForwardKeyBytes = 24
	maxForwardKeyBytes = 64
	newForwardKeyBytes = 32
)

// ForwardKey is a decoded FORWARD_SECRET
type ForwardKey []byte

// ParseForwardKey decodes a FORWARD_SECRET in its whsec_<base64> form
func ParseForwardKey(encoded string) (ForwardKey, error) {
	rest, ok := strings.CutPrefix(encoded, forwardKeyPrefix)
	if !ok {
		return nil, fmt.Errorf("forward secret must start with %s", forwardKeyPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("decoding forward secret: %w", err)
	}
	if len(raw) < minForwardKeyBytes || len(raw) > maxForwardKeyBytes {
		return nil, fmt.Errorf("forward secret must decode to %d-%d bytes, got %d", minForwardKeyBytes, maxForwardKeyBytes, len(raw))
	}
	return ForwardKey(raw), nil
}

// NewForwardKey returns a random FORWARD_SECRET value
func NewForwardKey() (string, error) {
	raw := make([]byte, newForwardKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating forward secret: %w", err)
	}
	return ForwardKey(raw).String(), nil
}

// String encodes the key back to its FORWARD_SECRET form
func (k ForwardKey) String() string {
	return forwardKeyPrefix + base64.StdEncoding.EncodeToString(k)
}

// SignatureHeader is the webhook-signature value for one forwarded request
func (k ForwardKey) SignatureHeader(msgID string, sentAt int64, body []byte) string {
	content := make([]byte, 0, len(msgID)+len(body)+24)
	content = append(content, msgID...)
	content = append(content, '.')
	content = strconv.AppendInt(content, sentAt, 10)
	content = append(content, '.')
	content = append(content, body...)
	return forwardSigVersion + "," + signature.EncodeBase64(content, string(k))
}
