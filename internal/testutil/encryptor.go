package testutil

import (
	"repute-go/internal/encryption"
	"repute-go/internal/snapshot"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() snapshot.Encryptor {
	return encryption.NewTestEncryptor()
}
