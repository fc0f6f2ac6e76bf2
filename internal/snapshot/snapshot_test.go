package snapshot_test

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"repute-go/internal/ledger"
	"repute-go/internal/ledger/ledgertest"
	"repute-go/internal/snapshot"
	"repute-go/internal/testutil"
)

const createdAt = 1705314600

// populate builds a small ledger with ratings, a stake and a deactivation.
func populate(t *testing.T, s ledger.Store) {
	t.Helper()
	l := testutil.NewTestLedger(t, s, ledger.DefaultParams())
	a, b, c := testutil.Account(1), testutil.Account(2), testutil.Account(3)

	for _, id := range []ledger.AccountID{a, b, c} {
		_, err := l.CreateProfile(id)
		require.NoError(t, err)
	}
	for _, r := range []struct {
		from, to ledger.AccountID
		score    uint8
	}{{b, a, 5}, {c, a, 3}, {a, b, 4}} {
		_, err := l.SubmitRating(r.from, ledger.RatingInput{
			Target: r.to, Score: r.score, Communication: r.score, Quality: 2,
			ReviewHash: testutil.ReviewHashOf("review"),
		})
		require.NoError(t, err)
	}
	_, err := l.StakeReputation(a, uint256.NewInt(2_000_000_000_000))
	require.NoError(t, err)
	_, err = l.DeactivateProfile(c)
	require.NoError(t, err)
}

func TestExportImport(t *testing.T) {
	backends := testutil.Backends()
	for from, openFrom := range backends {
		for to, openTo := range backends {
			t.Run(from+" to "+to, func(t *testing.T) {
				src := openFrom(t)
				populate(t, src)

				var buf bytes.Buffer
				sum, err := snapshot.Export(src, &buf, createdAt)
				require.NoError(t, err)
				require.Equal(t, &snapshot.Summary{
					Version: snapshot.Version, CreatedAt: createdAt,
					Profiles: 3, Ratings: 3, Events: 8,
				}, sum)

				dst := openTo(t)
				got, err := snapshot.Import(dst, bytes.NewReader(buf.Bytes()))
				require.NoError(t, err)
				require.Equal(t, sum, got)

				want, err := ledgertest.Dump(src)
				require.NoError(t, err)
				have, err := ledgertest.Dump(dst)
				require.NoError(t, err)
				require.Equal(t, want, have)
			})
		}
	}
}

func TestImport_RebuildsRatingCounts(t *testing.T) {
	src := testutil.NewTestMemoryStore(t)
	populate(t, src)

	var buf bytes.Buffer
	_, err := snapshot.Export(src, &buf, createdAt)
	require.NoError(t, err)

	dst := testutil.NewTestSQLiteStore(t)
	_, err = snapshot.Import(dst, &buf)
	require.NoError(t, err)

	l := testutil.NewTestLedger(t, dst, ledger.DefaultParams())
	n, err := l.RatingCount(testutil.Account(1))
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)

	violations, err := l.Audit()
	require.NoError(t, err)
	require.Empty(t, violations)

	// The restored ledger keeps enforcing its rules.
	_, err = l.SubmitRating(testutil.Account(2), ledger.RatingInput{Target: testutil.Account(1), Score: 4})
	require.ErrorIs(t, err, ledger.ErrAlreadyRated)
}

func TestImport_NonEmptyStore(t *testing.T) {
	src := testutil.NewTestMemoryStore(t)
	populate(t, src)

	var buf bytes.Buffer
	_, err := snapshot.Export(src, &buf, createdAt)
	require.NoError(t, err)

	_, err = snapshot.Import(src, bytes.NewReader(buf.Bytes()))
	require.True(t, errors.Is(err, snapshot.ErrStoreNotEmpty), "Import() error = %v", err)
}

func TestImport_RejectsInconsistentSnapshot(t *testing.T) {
	// Write a profile whose totals disagree with its ratings, bypassing the ledger.
	src := testutil.NewTestMemoryStore(t)
	b, err := src.Begin(true)
	require.NoError(t, err)
	require.NoError(t, b.PutProfile(&ledger.ReputationProfile{Owner: testutil.Account(1), TotalScore: 7, ReviewCount: 1, Active: true}))
	require.NoError(t, b.PutRating(&ledger.Rating{From: testutil.Account(2), To: testutil.Account(1), Score: 5}))
	require.NoError(t, b.Commit())

	var buf bytes.Buffer
	_, err = snapshot.Export(src, &buf, createdAt)
	require.NoError(t, err)

	dst := testutil.NewTestMemoryStore(t)
	_, err = snapshot.Import(dst, &buf)
	require.ErrorContains(t, err, "total score 7")

	st, err := ledgertest.Dump(dst)
	require.NoError(t, err)
	require.Empty(t, st.Profiles)
}

func TestRead_Corruption(t *testing.T) {
	src := testutil.NewTestMemoryStore(t)
	populate(t, src)

	var buf bytes.Buffer
	_, err := snapshot.Export(src, &buf, createdAt)
	require.NoError(t, err)
	data := buf.Bytes()

	sum, err := snapshot.Read(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 3, sum.Profiles)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		errMsg string
	}{
		{"bad magic", func(d []byte) []byte { d[0] = 'X'; return d }, "not a snapshot"},
		{"future version", func(d []byte) []byte { d[8] = 9; return d }, "unsupported snapshot version"},
		{"flipped body byte", func(d []byte) []byte { d[len(d)-40] ^= 0xff; return d }, ""},
		{"truncated", func(d []byte) []byte { return d[:len(d)-10] }, ""},
		{"trailing data", func(d []byte) []byte { return append(d, 0) }, "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := tt.mutate(bytes.Clone(data))
			_, err := snapshot.Read(bytes.NewReader(corrupt))
			require.Error(t, err)
			if tt.errMsg != "" {
				require.ErrorContains(t, err, tt.errMsg)
			}
		})
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	src := testutil.NewTestBoltStore(t)
	populate(t, src)

	enc := testutil.NewTestEncryptor()
	var buf bytes.Buffer
	_, err := snapshot.ExportEncrypted(src, &buf, createdAt, enc)
	require.NoError(t, err)

	_, err = snapshot.Read(bytes.NewReader(buf.Bytes()))
	require.Error(t, err, "encrypted snapshot should not parse as plaintext")

	require.False(t, snapshot.IsPlaintext(bufio.NewReader(bytes.NewReader(buf.Bytes()))))

	dec, err := enc.Unlock("")
	require.NoError(t, err)

	sum, err := snapshot.ReadEncrypted(bytes.NewReader(buf.Bytes()), dec)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Profiles)

	dst := testutil.NewTestMemoryStore(t)
	sum, err = snapshot.ImportEncrypted(dst, &buf, dec)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Ratings)
}

func TestIsPlaintext(t *testing.T) {
	var buf bytes.Buffer
	_, err := snapshot.Export(testutil.NewTestMemoryStore(t), &buf, createdAt)
	require.NoError(t, err)

	br := bufio.NewReader(&buf)
	require.True(t, snapshot.IsPlaintext(br))

	// Peeking must leave the stream readable from the start.
	_, err = snapshot.Read(br)
	require.NoError(t, err)

	require.False(t, snapshot.IsPlaintext(bufio.NewReader(bytes.NewReader([]byte("RPT")))))
}

func TestExport_EmptyStore(t *testing.T) {
	var buf bytes.Buffer
	sum, err := snapshot.Export(testutil.NewTestMemoryStore(t), &buf, createdAt)
	require.NoError(t, err)
	require.Zero(t, sum.Profiles)

	dst := testutil.NewTestSQLiteStore(t)
	_, err = snapshot.Import(dst, &buf)
	require.NoError(t, err)
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"20240115T103000Z.snap", false},
		{"node-1.snap.age", false},
		{"", true},
		{".tmp-123", true},
		{"../escape", true},
		{`dir\file`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := snapshot.ValidateName(tt.name); (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}
