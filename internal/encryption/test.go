package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"repute-go/internal/snapshot"
)

// testHeader marks data "encrypted" by TestEncryptor.
var testHeader = []byte("RPTENC\x00\x00")

// ErrWrongPassphrase is returned by TestEncryptor.Unlock when Setup was given
// a different passphrase.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// TestEncryptor is a deterministic stand-in used by tests and the "test"
// encryption type. Ciphertext is testHeader followed by the bitwise
// complement of the plaintext. Before Setup any passphrase unlocks it.
type TestEncryptor struct {
	passphrase *string
}

var _ snapshot.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = &passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	return complement(r, w)
}

func (e *TestEncryptor) Unlock(passphrase string) (snapshot.DecryptionContext, error) {
	if e.passphrase != nil && *e.passphrase != passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext reverses TestEncryptor.Encrypt.
type TestDecryptionContext struct{}

var _ snapshot.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	return complement(r, w)
}

func complement(r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		for i := range buf[:n] {
			buf[i] = ^buf[i]
		}
		if _, werr := bw.Write(buf[:n]); werr != nil {
			return fmt.Errorf("writing data: %w", werr)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading data: %w", err)
		}
	}
	return bw.Flush()
}
