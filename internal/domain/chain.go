package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GenesisHash anchors the first invocation-log entry of every package.
var GenesisHash = strings.Repeat("0", 64)

// ConclusionHash is the SHA-256 of a conclusion string, hex encoded.
func ConclusionHash(conclusion string) string {
	sum := sha256.Sum256([]byte(conclusion))
	return hex.EncodeToString(sum[:])
}

// ChainEventHash commits an invocation-log entry to its predecessor:
// H(packageID || callerID || conclusionHash || prevHash).
func ChainEventHash(packageID, callerID uuid.UUID, conclusionHash, prevHash string) string {
	h := sha256.New()
	h.Write([]byte(packageID.String()))
	h.Write([]byte(callerID.String()))
	h.Write([]byte(conclusionHash))
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain walks entries in sequence order and reports whether every link
// and every event hash is intact.
func VerifyChain(entries []InvocationLogEntry) bool {
	prev := GenesisHash
	for _, e := range entries {
		if e.PrevHash != prev {
			return false
		}
		if e.EventHash != ChainEventHash(e.PackageID, e.CallerID, e.ConclusionHash, e.PrevHash) {
			return false
		}
		prev = e.EventHash
	}
	return true
}
