package journal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for entry digests.
// The version suffix allows a later change of algorithm.
const (
	DomainCommit = "reactor/commit/v1"
	DomainAction = "reactor/action/v1"
)

// Digest computes SHA256(domain + 0x00 + payload) as lowercase hex.
// The null byte keeps the domain/payload boundary unambiguous.
func Digest(domain string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func domainFor(kind string) string {
	if kind == KindAction {
		return DomainAction
	}
	return DomainCommit
}
