package ledger

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
)

func TestProfileCodec(t *testing.T) {
	p := &ReputationProfile{
		Owner:          AccountID{9, 9},
		TotalScore:     1 << 40,
		ReviewCount:    10000,
		CategoryScores: CategoryScores{Communication: 1, Reliability: 2, Quality: 3, Professionalism: 4},
		Active:         true,
	}
	p.StakedAmount.Lsh(uint256.NewInt(3), 250)

	data, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	var got ReputationProfile
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got != *p {
		t.Errorf("UnmarshalBinary() = %+v, want %+v", got, *p)
	}

	if err := got.UnmarshalBinary(data[:len(data)-1]); err == nil {
		t.Error("UnmarshalBinary(short) expected error")
	}
	bad := bytes.Clone(data)
	bad[AccountIDSize+8+4+categoriesSize] = 2
	if err := got.UnmarshalBinary(bad); err == nil {
		t.Error("UnmarshalBinary(active=2) expected error")
	}
}

func TestRatingKey(t *testing.T) {
	target, rater := AccountID{1}, AccountID{2}
	k := RatingKey(target, rater)
	if len(k) != 2*AccountIDSize {
		t.Fatalf("len(RatingKey) = %d", len(k))
	}
	if !bytes.HasPrefix(k, target[:]) {
		t.Error("RatingKey does not start with the target")
	}
	// All ratings of one target sort together, ordered by rater.
	if bytes.Compare(RatingKey(target, AccountID{0xff}), RatingKey(AccountID{2}, AccountID{0})) >= 0 {
		t.Error("ratings of different targets interleave")
	}
}

func TestEventRecordCodec(t *testing.T) {
	rec := &EventRecord{
		Seq:       42,
		ID:        "6f1c8a52-5a0e-4d7e-9a3b-0c6b1f3f2d11",
		Timestamp: 1705314600,
		Event:     Event{Kind: EventReputationStaked, Who: AccountID{7}, Amount: *uint256.NewInt(1_000_000_000_000)},
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	var got EventRecord
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got != *rec {
		t.Errorf("UnmarshalBinary() = %+v, want %+v", got, *rec)
	}

	t.Run("unknown kind", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[17+len(rec.ID)] = 99
		if err := got.UnmarshalBinary(bad); err == nil {
			t.Error("UnmarshalBinary() expected error for unknown kind")
		}
	})

	t.Run("id too long", func(t *testing.T) {
		long := *rec
		long.ID = string(bytes.Repeat([]byte("x"), 256))
		if _, err := long.MarshalBinary(); err == nil {
			t.Error("MarshalBinary() expected error for 256-byte id")
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if err := got.UnmarshalBinary(append(bytes.Clone(data), 0)); err == nil {
			t.Error("UnmarshalBinary() expected error for trailing byte")
		}
	})
}

func TestParseEventKind(t *testing.T) {
	for k := EventProfileCreated; k <= EventProfileDeactivated; k++ {
		got, err := ParseEventKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseEventKind(%q) = %v, %v; want %v", k.String(), got, err, k)
		}
	}
	if _, err := ParseEventKind("ProfileDeleted"); err == nil {
		t.Error("ParseEventKind(unknown) expected error")
	}
	if EventKind(0).Valid() || EventKind(6).Valid() {
		t.Error("Valid() accepts out-of-range kinds")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0", false},
		{"999", false},
		{"1000000000000", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639936", true},
		{"-1", true},
		{"1e12", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && FormatAmount(v) != tt.in {
				t.Errorf("FormatAmount(ParseAmount(%q)) = %s", tt.in, FormatAmount(v))
			}
		})
	}
}
