package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTipID computes a deterministic tip_id using SHA256.
// Formula: SHA256(network|tx_id|event_index)
// tx_id must already be normalized for the network. Returns hex-encoded hash (64 characters).
func ComputeTipID(network string, txID string, eventIndex int) string {
	data := fmt.Sprintf("%s|%s|%d", network, txID, eventIndex)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// IsTipID reports whether s has the shape of a ComputeTipID result:
// 64 lower-case hex digits.
func IsTipID(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
