package chat

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentHashLength is the number of hex characters kept from the digest
const contentHashLength = 16

// ContentHash fingerprints a message as sha256("{content}-{userId}-{sessionId}"),
// truncated to 16 hex characters
func ContentHash(content, userID, sessionID string) string {
	sum := sha256.Sum256([]byte(content + "-" + userID + "-" + sessionID))
	return hex.EncodeToString(sum[:])[:contentHashLength]
}
