package snapshot

import "io"

// Encryptor encrypts snapshot streams for storage outside the node.
type Encryptor interface {
	// Setup generates a key pair, protecting the private half with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock returns a DecryptionContext for the private key.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether Setup has been run.
	IsConfigured() bool
}

// DecryptionContext decrypts streams written by an Encryptor.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
