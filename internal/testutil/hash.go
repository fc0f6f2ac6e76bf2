package testutil

import (
	"crypto/sha256"

	"repute-go/internal/ledger"
)

// ReviewHashOf returns the SHA-256 digest of review text as a ledger.ReviewHash.
func ReviewHashOf(review string) ledger.ReviewHash {
	return ledger.ReviewHash(sha256.Sum256([]byte(review)))
}

// Account returns a deterministic AccountID whose bytes are all n.
func Account(n byte) ledger.AccountID {
	var id ledger.AccountID
	for i := range id {
		id[i] = n
	}
	return id
}
