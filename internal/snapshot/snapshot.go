// Package snapshot serializes the full contents of a ledger store to a
// portable file and restores it into an empty store.
//
// Layout (all integers big-endian):
//
//	magic   "RPTSNAP\n"
//	version uint8
//	created uint64 (unix seconds)
//	sections 'P' profiles, 'R' ratings, 'E' events, each:
//	    tag uint8 | count uint64 | count × (len uint32 | record)
//	trailer sha256 of every preceding byte
//
// Records use the binary encodings of the ledger package.
package snapshot

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"repute-go/internal/ledger"
)

// Version is the format version written by Export.
const Version = 1

var magic = []byte("RPTSNAP\n")

const (
	tagProfiles byte = 'P'
	tagRatings  byte = 'R'
	tagEvents   byte = 'E'

	maxRecordSize = 1 << 16
)

// ErrStoreNotEmpty is returned by Import when the target store already holds data.
var ErrStoreNotEmpty = errors.New("target store is not empty")

// Summary describes the contents of a snapshot.
type Summary struct {
	Version   uint8
	CreatedAt uint64
	Profiles  int
	Ratings   int
	Events    int
}

type contents struct {
	profiles []*ledger.ReputationProfile
	ratings  []*ledger.Rating
	events   []*ledger.EventRecord
}

// Export writes every profile, rating and journal record of store to w.
// Everything is read in one batch, so the snapshot is consistent.
func Export(store ledger.Store, w io.Writer, createdAt uint64) (*Summary, error) {
	c, err := collect(store)
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	bw := bufio.NewWriter(w)
	out := io.MultiWriter(bw, h)

	header := make([]byte, len(magic)+1+8)
	copy(header, magic)
	header[len(magic)] = Version
	binary.BigEndian.PutUint64(header[len(magic)+1:], createdAt)
	if _, err := out.Write(header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	if err := writeSection(out, tagProfiles, c.profiles); err != nil {
		return nil, err
	}
	if err := writeSection(out, tagRatings, c.ratings); err != nil {
		return nil, err
	}
	if err := writeSection(out, tagEvents, c.events); err != nil {
		return nil, err
	}

	if _, err := bw.Write(h.Sum(nil)); err != nil {
		return nil, fmt.Errorf("writing checksum: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flushing snapshot: %w", err)
	}

	return &Summary{
		Version:   Version,
		CreatedAt: createdAt,
		Profiles:  len(c.profiles),
		Ratings:   len(c.ratings),
		Events:    len(c.events),
	}, nil
}

// ExportEncrypted is Export followed by enc.Encrypt.
func ExportEncrypted(store ledger.Store, w io.Writer, createdAt uint64, enc Encryptor) (*Summary, error) {
	var buf bytes.Buffer
	sum, err := Export(store, &buf, createdAt)
	if err != nil {
		return nil, err
	}
	if err := enc.Encrypt(&buf, w); err != nil {
		return nil, fmt.Errorf("encrypting snapshot: %w", err)
	}
	return sum, nil
}

func collect(store ledger.Store) (*contents, error) {
	b, err := store.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("starting read batch: %w", err)
	}
	defer b.Discard()

	c := &contents{}
	err = b.ForEachProfile(func(p *ledger.ReputationProfile) error {
		c.profiles = append(c.profiles, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	for _, p := range c.profiles {
		err := b.ForEachRating(p.Owner, func(r *ledger.Rating) error {
			c.ratings = append(c.ratings, r)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reading ratings of %s: %w", p.Owner, err)
		}
	}

	events, err := b.ListEvents(0)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	// Oldest first, so import replays the journal in order.
	for i := len(events) - 1; i >= 0; i-- {
		c.events = append(c.events, events[i])
	}
	return c, nil
}

func writeSection[T encoding.BinaryMarshaler](w io.Writer, tag byte, records []T) error {
	head := make([]byte, 9)
	head[0] = tag
	binary.BigEndian.PutUint64(head[1:], uint64(len(records)))
	if _, err := w.Write(head); err != nil {
		return fmt.Errorf("writing section %c: %w", tag, err)
	}

	var size [4]byte
	for _, rec := range records {
		data, err := rec.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encoding section %c record: %w", tag, err)
		}
		binary.BigEndian.PutUint32(size[:], uint32(len(data)))
		if _, err := w.Write(size[:]); err != nil {
			return fmt.Errorf("writing section %c: %w", tag, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing section %c: %w", tag, err)
		}
	}
	return nil
}

// Read decodes and verifies a snapshot without touching any store.
func Read(r io.Reader) (*Summary, error) {
	sum, _, err := decode(r)
	return sum, err
}

// ReadEncrypted decrypts r with dec and reads the result.
func ReadEncrypted(r io.Reader, dec DecryptionContext) (*Summary, error) {
	var buf bytes.Buffer
	if err := dec.Decrypt(r, &buf); err != nil {
		return nil, fmt.Errorf("decrypting snapshot: %w", err)
	}
	return Read(&buf)
}

// IsPlaintext reports whether br starts with the snapshot magic. Nothing is
// consumed from br.
func IsPlaintext(br *bufio.Reader) bool {
	head, err := br.Peek(len(magic))
	return err == nil && bytes.Equal(head, magic)
}

// Import restores a snapshot into store, which must hold no profiles and no
// events. Rating counters are rebuilt from the ratings, journal records are
// appended in their original order, and the result is audited before the
// single batch is committed.
func Import(store ledger.Store, r io.Reader) (*Summary, error) {
	sum, c, err := decode(r)
	if err != nil {
		return nil, err
	}

	b, err := store.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("starting batch: %w", err)
	}
	defer b.Discard()

	if err := checkEmpty(b); err != nil {
		return nil, err
	}

	for _, p := range c.profiles {
		exists, err := b.HasProfile(p.Owner)
		if err != nil {
			return nil, fmt.Errorf("checking profile %s: %w", p.Owner, err)
		}
		if exists {
			return nil, fmt.Errorf("duplicate profile %s in snapshot", p.Owner)
		}
		if err := b.PutProfile(p); err != nil {
			return nil, fmt.Errorf("restoring profile %s: %w", p.Owner, err)
		}
	}

	counts := make(map[ledger.AccountID]uint32)
	for _, rt := range c.ratings {
		target, err := b.HasProfile(rt.To)
		if err != nil {
			return nil, fmt.Errorf("checking profile %s: %w", rt.To, err)
		}
		if !target {
			return nil, fmt.Errorf("rating from %s targets %s, which has no profile", rt.From, rt.To)
		}
		dup, err := b.HasRating(rt.To, rt.From)
		if err != nil {
			return nil, fmt.Errorf("checking rating: %w", err)
		}
		if dup {
			return nil, fmt.Errorf("duplicate rating from %s to %s in snapshot", rt.From, rt.To)
		}
		if err := b.PutRating(rt); err != nil {
			return nil, fmt.Errorf("restoring rating from %s to %s: %w", rt.From, rt.To, err)
		}
		counts[rt.To]++
	}
	for account, n := range counts {
		if err := b.PutRatingCount(account, n); err != nil {
			return nil, fmt.Errorf("restoring rating count of %s: %w", account, err)
		}
	}

	for _, rec := range c.events {
		if err := b.AppendEvent(rec); err != nil {
			return nil, fmt.Errorf("restoring event %s: %w", rec.ID, err)
		}
	}

	violations, err := ledger.AuditBatch(b)
	if err != nil {
		return nil, fmt.Errorf("auditing restored state: %w", err)
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("snapshot is inconsistent: %s (and %d more)", violations[0], len(violations)-1)
	}

	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	return sum, nil
}

// ImportEncrypted decrypts r with dec and imports the result.
func ImportEncrypted(store ledger.Store, r io.Reader, dec DecryptionContext) (*Summary, error) {
	var buf bytes.Buffer
	if err := dec.Decrypt(r, &buf); err != nil {
		return nil, fmt.Errorf("decrypting snapshot: %w", err)
	}
	return Import(store, &buf)
}

func checkEmpty(b ledger.Batch) error {
	errFound := errors.New("found")
	err := b.ForEachProfile(func(*ledger.ReputationProfile) error { return errFound })
	switch {
	case errors.Is(err, errFound):
		return ErrStoreNotEmpty
	case err != nil:
		return fmt.Errorf("checking target store: %w", err)
	}

	events, err := b.ListEvents(1)
	if err != nil {
		return fmt.Errorf("checking target store: %w", err)
	}
	if len(events) > 0 {
		return ErrStoreNotEmpty
	}
	return nil
}

// hashingReader feeds every byte it reads into h.
type hashingReader struct {
	r io.Reader
	h hash.Hash
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	hr.h.Write(p[:n])
	return n, err
}

func decode(r io.Reader) (*Summary, *contents, error) {
	br := bufio.NewReader(r)
	hr := &hashingReader{r: br, h: sha256.New()}

	header := make([]byte, len(magic)+1+8)
	if _, err := io.ReadFull(hr, header); err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header[:len(magic)], magic) {
		return nil, nil, fmt.Errorf("not a snapshot file")
	}
	sum := &Summary{
		Version:   header[len(magic)],
		CreatedAt: binary.BigEndian.Uint64(header[len(magic)+1:]),
	}
	if sum.Version != Version {
		return nil, nil, fmt.Errorf("unsupported snapshot version %d", sum.Version)
	}

	c := &contents{}
	var err error
	if c.profiles, err = readSection(hr, tagProfiles, func() *ledger.ReputationProfile { return new(ledger.ReputationProfile) }); err != nil {
		return nil, nil, err
	}
	if c.ratings, err = readSection(hr, tagRatings, func() *ledger.Rating { return new(ledger.Rating) }); err != nil {
		return nil, nil, err
	}
	if c.events, err = readSection(hr, tagEvents, func() *ledger.EventRecord { return new(ledger.EventRecord) }); err != nil {
		return nil, nil, err
	}

	want := hr.h.Sum(nil)
	got := make([]byte, sha256.Size)
	if _, err := io.ReadFull(br, got); err != nil {
		return nil, nil, fmt.Errorf("reading checksum: %w", err)
	}
	if !bytes.Equal(got, want) {
		return nil, nil, fmt.Errorf("snapshot checksum mismatch")
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, nil, fmt.Errorf("trailing data after checksum")
	}

	sum.Profiles = len(c.profiles)
	sum.Ratings = len(c.ratings)
	sum.Events = len(c.events)
	return sum, c, nil
}

func readSection[T encoding.BinaryUnmarshaler](r io.Reader, tag byte, newRecord func() T) ([]T, error) {
	head := make([]byte, 9)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("reading section %c: %w", tag, err)
	}
	if head[0] != tag {
		return nil, fmt.Errorf("expected section %c, found %q", tag, head[0])
	}
	count := binary.BigEndian.Uint64(head[1:])

	var (
		out  []T
		size [4]byte
	)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, size[:]); err != nil {
			return nil, fmt.Errorf("reading section %c record %d: %w", tag, i, err)
		}
		n := binary.BigEndian.Uint32(size[:])
		if n > maxRecordSize {
			return nil, fmt.Errorf("section %c record %d: size %d exceeds limit", tag, i, n)
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading section %c record %d: %w", tag, i, err)
		}
		rec := newRecord()
		if err := rec.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("decoding section %c record %d: %w", tag, i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
