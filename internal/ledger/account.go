package ledger

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// AccountIDSize is the length in bytes of an AccountID.
const AccountIDSize = 32

// AccountID identifies an account. It is opaque to the ledger: the host
// environment derives it (typically from a public key) and authenticates it
// before any operation is invoked.
type AccountID [AccountIDSize]byte

// ParseAccountID decodes the base58 text form of an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("decoding account id %q: %w", s, err)
	}
	if len(raw) != AccountIDSize {
		return id, fmt.Errorf("account id %q: expected %d bytes, got %d", s, AccountIDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// AccountIDFromBytes copies b into an AccountID. b must be exactly AccountIDSize bytes.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	var id AccountID
	if len(b) != AccountIDSize {
		return id, fmt.Errorf("account id: expected %d bytes, got %d", AccountIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the base58 form.
func (a AccountID) String() string {
	return base58.Encode(a[:])
}

// Bytes returns a copy of the raw identifier.
func (a AccountID) Bytes() []byte {
	b := make([]byte, AccountIDSize)
	copy(b, a[:])
	return b
}

// Compare orders account IDs byte-wise.
func (a AccountID) Compare(b AccountID) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b.
func (a AccountID) Less(b AccountID) bool {
	return a.Compare(b) < 0
}

// IsZero reports whether a is the all-zero identifier.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// ReviewHashSize is the length of the digest referencing off-ledger review content.
const ReviewHashSize = 32

// ReviewHash is an opaque digest of detailed review content stored elsewhere.
// The ledger never interprets its bytes.
type ReviewHash [ReviewHashSize]byte

// ParseReviewHash decodes the 64-character hex form of a ReviewHash.
func ParseReviewHash(s string) (ReviewHash, error) {
	var h ReviewHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid review hash: %w", err)
	}
	if len(b) != ReviewHashSize {
		return h, fmt.Errorf("invalid review hash: got %d bytes, want %d", len(b), ReviewHashSize)
	}
	copy(h[:], b)
	return h, nil
}

func (h ReviewHash) String() string {
	return hex.EncodeToString(h[:])
}
