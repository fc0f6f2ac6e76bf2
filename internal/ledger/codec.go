package ledger

import (
	"encoding/binary"
	"fmt"
)

// Fixed-width big-endian encodings used by key-value backends and snapshots.

const (
	categoriesSize = 4 * 8
	profileSize    = AccountIDSize + 8 + 4 + categoriesSize + 1 + 32
	ratingSize     = 2*AccountIDSize + 1 + categoriesSize + 8 + ReviewHashSize
	eventFixedSize = 8 + 8 + 1 + 1 + 3*AccountIDSize + 1 + 32
)

// RatingKey is the composite storage key of a rating: target then rater, so
// all ratings of one target share a prefix.
func RatingKey(target, rater AccountID) []byte {
	k := make([]byte, 0, 2*AccountIDSize)
	k = append(k, target[:]...)
	return append(k, rater[:]...)
}

func putCategories(b []byte, c CategoryScores) {
	binary.BigEndian.PutUint64(b[0:], c.Communication)
	binary.BigEndian.PutUint64(b[8:], c.Reliability)
	binary.BigEndian.PutUint64(b[16:], c.Quality)
	binary.BigEndian.PutUint64(b[24:], c.Professionalism)
}

func getCategories(b []byte) CategoryScores {
	return CategoryScores{
		Communication:   binary.BigEndian.Uint64(b[0:]),
		Reliability:     binary.BigEndian.Uint64(b[8:]),
		Quality:         binary.BigEndian.Uint64(b[16:]),
		Professionalism: binary.BigEndian.Uint64(b[24:]),
	}
}

// MarshalBinary encodes the profile.
func (p *ReputationProfile) MarshalBinary() ([]byte, error) {
	b := make([]byte, profileSize)
	off := copy(b, p.Owner[:])
	binary.BigEndian.PutUint64(b[off:], p.TotalScore)
	off += 8
	binary.BigEndian.PutUint32(b[off:], p.ReviewCount)
	off += 4
	putCategories(b[off:], p.CategoryScores)
	off += categoriesSize
	if p.Active {
		b[off] = 1
	}
	off++
	p.StakedAmount.WriteToSlice(b[off : off+32])
	return b, nil
}

// UnmarshalBinary decodes a profile written by MarshalBinary.
func (p *ReputationProfile) UnmarshalBinary(b []byte) error {
	if len(b) != profileSize {
		return fmt.Errorf("profile record: expected %d bytes, got %d", profileSize, len(b))
	}
	off := copy(p.Owner[:], b)
	p.TotalScore = binary.BigEndian.Uint64(b[off:])
	off += 8
	p.ReviewCount = binary.BigEndian.Uint32(b[off:])
	off += 4
	p.CategoryScores = getCategories(b[off:])
	off += categoriesSize
	switch b[off] {
	case 0:
		p.Active = false
	case 1:
		p.Active = true
	default:
		return fmt.Errorf("profile record: invalid active flag %d", b[off])
	}
	off++
	p.StakedAmount.SetBytes32(b[off : off+32])
	return nil
}

// MarshalBinary encodes the rating.
func (r *Rating) MarshalBinary() ([]byte, error) {
	b := make([]byte, ratingSize)
	off := copy(b, r.From[:])
	off += copy(b[off:], r.To[:])
	b[off] = r.Score
	off++
	putCategories(b[off:], r.CategoryRatings)
	off += categoriesSize
	binary.BigEndian.PutUint64(b[off:], r.Timestamp)
	off += 8
	copy(b[off:], r.ReviewHash[:])
	return b, nil
}

// UnmarshalBinary decodes a rating written by MarshalBinary.
func (r *Rating) UnmarshalBinary(b []byte) error {
	if len(b) != ratingSize {
		return fmt.Errorf("rating record: expected %d bytes, got %d", ratingSize, len(b))
	}
	off := copy(r.From[:], b)
	off += copy(r.To[:], b[off:])
	r.Score = b[off]
	off++
	r.CategoryRatings = getCategories(b[off:])
	off += categoriesSize
	r.Timestamp = binary.BigEndian.Uint64(b[off:])
	off += 8
	copy(r.ReviewHash[:], b[off:])
	return nil
}

// MarshalBinary encodes the journal record.
func (rec *EventRecord) MarshalBinary() ([]byte, error) {
	if len(rec.ID) > 255 {
		return nil, fmt.Errorf("event record: id too long (%d bytes)", len(rec.ID))
	}
	b := make([]byte, eventFixedSize+len(rec.ID))
	binary.BigEndian.PutUint64(b[0:], rec.Seq)
	binary.BigEndian.PutUint64(b[8:], rec.Timestamp)
	b[16] = byte(len(rec.ID))
	off := 17 + copy(b[17:], rec.ID)

	ev := &rec.Event
	b[off] = byte(ev.Kind)
	off++
	off += copy(b[off:], ev.Who[:])
	off += copy(b[off:], ev.From[:])
	off += copy(b[off:], ev.To[:])
	b[off] = ev.Score
	off++
	ev.Amount.WriteToSlice(b[off : off+32])
	return b, nil
}

// UnmarshalBinary decodes a journal record written by MarshalBinary.
func (rec *EventRecord) UnmarshalBinary(b []byte) error {
	if len(b) < eventFixedSize {
		return fmt.Errorf("event record: short buffer (%d bytes)", len(b))
	}
	idLen := int(b[16])
	if len(b) != eventFixedSize+idLen {
		return fmt.Errorf("event record: expected %d bytes, got %d", eventFixedSize+idLen, len(b))
	}
	rec.Seq = binary.BigEndian.Uint64(b[0:])
	rec.Timestamp = binary.BigEndian.Uint64(b[8:])
	rec.ID = string(b[17 : 17+idLen])
	off := 17 + idLen

	ev := &rec.Event
	ev.Kind = EventKind(b[off])
	if !ev.Kind.Valid() {
		return fmt.Errorf("event record: unknown kind %d", b[off])
	}
	off++
	off += copy(ev.Who[:], b[off:])
	off += copy(ev.From[:], b[off:])
	off += copy(ev.To[:], b[off:])
	ev.Score = b[off]
	off++
	ev.Amount.SetBytes32(b[off : off+32])
	return nil
}
