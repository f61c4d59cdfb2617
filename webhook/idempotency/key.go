package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
)

// hashPrefixLen is the number of hex characters of the timestamp hash kept in a key
const hashPrefixLen = 8

/* Derive builds the idempotency key of an event
 * The timestamp is hashed in its RFC3339Nano UTC form, so the same instant
 * expressed in different zones yields the same key
 */
func Derive(sourceEventID string, topic webhook.Topic, eventTimestamp time.Time) string {
	sum := sha256.Sum256([]byte(eventTimestamp.UTC().Format(time.RFC3339Nano)))
	return fmt.Sprintf("%s:%s:%s", topic, sourceEventID, hex.EncodeToString(sum[:])[:hashPrefixLen])
}
