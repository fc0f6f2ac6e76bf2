package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"repute-go/internal/config"
	"repute-go/internal/ledger"
	"repute-go/internal/snapshot"
	"repute-go/internal/testutil"
	"repute-go/internal/vault"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger keeps every entry for inspection.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg, args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

func (l *recordingLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

func testParams() ledger.Params {
	return ledger.Params{MinStakeAmount: *uint256.NewInt(1000), MaxReviewsPerUser: 3}
}

func newTestApp(t *testing.T, s ledger.Store) (*LedgerApp, *recordingLogger) {
	t.Helper()
	log := &recordingLogger{}
	clock := testutil.FixedClock()
	cfg := config.NewConfig("node-1", t.TempDir())
	cfg.Vaults = []config.VaultConfig{{Type: "memory", Name: "scratch"}}
	a, err := newLedgerApp(cfg, s, testParams(), testutil.NewTestEncryptor(), log, clock, testutil.NewStubIDGenerator(), NewOperation("Test", clock.Now()))
	if err != nil {
		t.Fatalf("newLedgerApp() error = %v", err)
	}
	return a, log
}

func acct(n byte) string {
	return testutil.Account(n).String()
}

func TestLedgerApp_Operations(t *testing.T) {
	a, log := newTestApp(t, testutil.NewTestMemoryStore(t))

	for _, n := range []byte{1, 2} {
		if _, err := a.CreateProfile(acct(n)); err != nil {
			t.Fatalf("CreateProfile(%d) error = %v", n, err)
		}
	}

	ev, err := a.SubmitRating(acct(2), RatingRequest{
		Target:     acct(1),
		Score:      4,
		Quality:    5,
		ReviewHash: testutil.ReviewHashOf("great").String(),
	})
	if err != nil {
		t.Fatalf("SubmitRating() error = %v", err)
	}
	if ev.Kind != ledger.EventRatingSubmitted || ev.Score != 4 {
		t.Errorf("SubmitRating() event = %v", ev)
	}

	if _, err := a.StakeReputation(acct(1), "1000"); err != nil {
		t.Fatalf("StakeReputation() error = %v", err)
	}
	if _, err := a.DeactivateProfile(acct(2)); err != nil {
		t.Fatalf("DeactivateProfile() error = %v", err)
	}

	if got := log.count("INFO", "event emitted"); got != 5 {
		t.Errorf("logged %d events, want 5", got)
	}
	if a.Operation().Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", a.Operation().Status, StatusSuccess)
	}
	if a.Operation().Caller != acct(2) {
		t.Errorf("Caller = %q, want %q", a.Operation().Caller, acct(2))
	}

	stats, err := a.Stats(acct(1))
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.AverageScore != 4 || stats.TotalReviews != 1 || stats.StakedAmount.Uint64() != 1000 {
		t.Errorf("Stats() = %+v", stats)
	}

	ratings, err := a.Ratings(acct(1))
	if err != nil {
		t.Fatalf("Ratings() error = %v", err)
	}
	if len(ratings) != 1 || ratings[0].ReviewHash != testutil.ReviewHashOf("great") {
		t.Errorf("Ratings() = %v", ratings)
	}

	top, err := a.TopProfiles(10)
	if err != nil {
		t.Fatalf("TopProfiles() error = %v", err)
	}
	if len(top) != 1 || top[0].Account != testutil.Account(1) {
		t.Errorf("TopProfiles() = %v", top)
	}

	events, err := a.Events(2)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 2 || events[0].Event.Kind != ledger.EventProfileDeactivated {
		t.Errorf("Events(2) = %v", events)
	}

	violations, err := a.Audit()
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("Audit() = %v, want none", violations)
	}
}

func TestLedgerApp_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		run     func(a *LedgerApp) error
		wantErr error
		status  string
		warned  bool
	}{
		{
			name:    "duplicate profile",
			run:     func(a *LedgerApp) error { _, err := a.CreateProfile(acct(1)); return err },
			wantErr: ledger.ErrProfileAlreadyExists,
			status:  StatusRejected,
			warned:  true,
		},
		{
			name: "self rating",
			run: func(a *LedgerApp) error {
				_, err := a.SubmitRating(acct(1), RatingRequest{Target: acct(1), Score: 3})
				return err
			},
			wantErr: ledger.ErrCannotRateSelf,
			status:  StatusRejected,
			warned:  true,
		},
		{
			name:    "stake below minimum",
			run:     func(a *LedgerApp) error { _, err := a.StakeReputation(acct(1), "999"); return err },
			wantErr: ledger.ErrInsufficientStake,
			status:  StatusRejected,
			warned:  true,
		},
		{
			name:   "malformed caller",
			run:    func(a *LedgerApp) error { _, err := a.CreateProfile("not-base58-0OIl"); return err },
			status: StatusError,
		},
		{
			name:    "zero caller",
			run:     func(a *LedgerApp) error { _, err := a.CreateProfile(acct(0)); return err },
			wantErr: ErrZeroCaller,
			status:  StatusError,
		},
		{
			name:   "malformed amount",
			run:    func(a *LedgerApp) error { _, err := a.StakeReputation(acct(1), "12abc"); return err },
			status: StatusError,
		},
		{
			name: "malformed review hash",
			run: func(a *LedgerApp) error {
				_, err := a.SubmitRating(acct(1), RatingRequest{Target: acct(2), Score: 3, ReviewHash: "xyz"})
				return err
			},
			status: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, log := newTestApp(t, testutil.NewTestMemoryStore(t))
			if _, err := a.CreateProfile(acct(1)); err != nil {
				t.Fatalf("CreateProfile() error = %v", err)
			}

			err := tt.run(a)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if a.Operation().Status != tt.status {
				t.Errorf("Status = %q, want %q", a.Operation().Status, tt.status)
			}
			if got := log.count("WARN", "operation rejected") == 1; got != tt.warned {
				t.Errorf("rejection logged = %v, want %v", got, tt.warned)
			}
		})
	}
}

func TestLedgerApp_StorageFault(t *testing.T) {
	s := testutil.NewTestSQLiteStore(t)
	a, log := newTestApp(t, s)
	s.Close()

	if _, err := a.CreateProfile(acct(1)); err == nil {
		t.Fatal("expected error from closed store")
	}
	if a.Operation().Status != StatusError {
		t.Errorf("Status = %q, want %q", a.Operation().Status, StatusError)
	}
	if log.count("ERROR", "operation failed") != 1 {
		t.Error("expected the failure to be logged")
	}
}

func populateApp(t *testing.T, a *LedgerApp) {
	t.Helper()
	for _, n := range []byte{1, 2, 3} {
		if _, err := a.CreateProfile(acct(n)); err != nil {
			t.Fatalf("CreateProfile(%d) error = %v", n, err)
		}
	}
	for _, r := range []struct{ from, to, score byte }{{2, 1, 5}, {3, 1, 2}, {1, 3, 4}} {
		if _, err := a.SubmitRating(acct(r.from), RatingRequest{Target: acct(r.to), Score: r.score}); err != nil {
			t.Fatalf("SubmitRating() error = %v", err)
		}
	}
}

func TestLedgerApp_Snapshot(t *testing.T) {
	tests := []struct {
		name      string
		encrypt   bool
		wantAsked int
	}{
		{name: "plaintext", encrypt: false, wantAsked: 0},
		{name: "encrypted", encrypt: true, wantAsked: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := newTestApp(t, testutil.NewTestBoltStore(t))
			populateApp(t, src)

			path := filepath.Join(t.TempDir(), "ledger.snap")
			sum, err := src.ExportSnapshot(path, tt.encrypt, false)
			if err != nil {
				t.Fatalf("ExportSnapshot() error = %v", err)
			}
			if sum.Profiles != 3 || sum.Ratings != 3 || sum.Events != 6 {
				t.Errorf("export summary = %+v", sum)
			}

			asked := 0
			passphrase := func() (string, error) {
				asked++
				return "secret", nil
			}

			info, err := src.InspectSnapshot(path, passphrase)
			if err != nil {
				t.Fatalf("InspectSnapshot() error = %v", err)
			}
			if *info != *sum {
				t.Errorf("InspectSnapshot() = %+v, want %+v", info, sum)
			}

			dst, log := newTestApp(t, testutil.NewTestSQLiteStore(t))
			if _, err := dst.ImportSnapshot(path, passphrase); err != nil {
				t.Fatalf("ImportSnapshot() error = %v", err)
			}
			if asked != 2*tt.wantAsked {
				t.Errorf("passphrase requested %d times, want %d", asked, 2*tt.wantAsked)
			}
			if log.count("INFO", "snapshot imported") != 1 {
				t.Error("expected import to be logged")
			}

			stats, err := dst.Stats(acct(1))
			if err != nil {
				t.Fatalf("Stats() error = %v", err)
			}
			if stats.TotalReviews != 2 || stats.AverageScore != 3 {
				t.Errorf("imported Stats() = %+v", stats)
			}

			// A second import must not duplicate anything.
			if _, err := dst.ImportSnapshot(path, passphrase); err == nil {
				t.Error("expected import into a non-empty store to fail")
			}
			if dst.Operation().Status != StatusError {
				t.Errorf("Status = %q, want %q", dst.Operation().Status, StatusError)
			}
		})
	}
}

func TestLedgerApp_ExportRefusesExistingFile(t *testing.T) {
	a, _ := newTestApp(t, testutil.NewTestMemoryStore(t))
	path := filepath.Join(t.TempDir(), "ledger.snap")
	if err := os.WriteFile(path, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := a.ExportSnapshot(path, false, false); err == nil {
		t.Fatal("expected error for existing file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "keep me" {
		t.Errorf("existing file was modified: %q", data)
	}
}

func TestLedgerApp_ExportArmorRequiresAge(t *testing.T) {
	a, _ := newTestApp(t, testutil.NewTestMemoryStore(t))
	path := filepath.Join(t.TempDir(), "ledger.snap")

	if _, err := a.ExportSnapshot(path, true, true); err == nil {
		t.Fatal("expected error for armor without age encryption")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("snapshot file should not exist, stat error = %v", err)
	}
}

func TestLedgerApp_Backup(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		a, _ := newTestApp(t, testutil.NewTestSQLiteStore(t))
		populateApp(t, a)

		dest := filepath.Join(t.TempDir(), "backup.db")
		if err := a.Backup(dest); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if _, err := os.Stat(dest); err != nil {
			t.Errorf("backup file missing: %v", err)
		}
	})

	t.Run("memory", func(t *testing.T) {
		a, _ := newTestApp(t, testutil.NewTestMemoryStore(t))
		if err := a.Backup(filepath.Join(t.TempDir(), "backup.db")); err == nil {
			t.Fatal("expected error for a store without backup support")
		}
	})
}

func TestLedgerApp_PushPull(t *testing.T) {
	shared := vault.NewMemoryVault("shared")

	src, _ := newTestApp(t, testutil.NewTestMemoryStore(t))
	src.vaults[""] = shared
	populateApp(t, src)

	name, sum, err := src.PushSnapshot("", true)
	if err != nil {
		t.Fatalf("PushSnapshot() error = %v", err)
	}
	if name != src.Operation().ID+".snap.age" {
		t.Errorf("name = %q, want operation-derived name", name)
	}
	if sum.Events != 6 {
		t.Errorf("pushed %d events, want 6", sum.Events)
	}

	entries, err := src.ListSnapshots("")
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != name {
		t.Errorf("ListSnapshots() = %v", entries)
	}

	dst, log := newTestApp(t, testutil.NewTestBoltStore(t))
	dst.vaults[""] = shared
	asked := 0
	pulled, err := dst.PullSnapshot("", name, func() (string, error) { asked++; return "", nil })
	if err != nil {
		t.Fatalf("PullSnapshot() error = %v", err)
	}
	if asked != 1 {
		t.Errorf("passphrase requested %d times, want 1", asked)
	}
	if pulled.Profiles != 3 || pulled.Ratings != 3 {
		t.Errorf("PullSnapshot() = %+v", pulled)
	}
	if log.count("INFO", "snapshot pulled") != 1 {
		t.Error("expected pull to be logged")
	}

	_, err = dst.PullSnapshot("", "missing.snap", nil)
	if !errors.Is(err, snapshot.ErrNotInVault) {
		t.Errorf("PullSnapshot(missing) error = %v, want ErrNotInVault", err)
	}
}

func TestLedgerApp_VaultFromConfig(t *testing.T) {
	a, _ := newTestApp(t, testutil.NewTestMemoryStore(t))

	if _, _, err := a.PushSnapshot("scratch", false); err != nil {
		t.Fatalf("PushSnapshot(scratch) error = %v", err)
	}
	entries, err := a.ListSnapshots("scratch")
	if err != nil {
		t.Fatalf("ListSnapshots(scratch) error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ListSnapshots(scratch) = %v, want one entry", entries)
	}

	if _, _, err := a.PushSnapshot("offsite", false); err == nil {
		t.Error("expected error for unknown vault")
	}
	if a.Operation().Status != StatusError {
		t.Errorf("Status = %q, want %q", a.Operation().Status, StatusError)
	}
}

func TestNewLedgerApp(t *testing.T) {
	cfg := config.NewConfig("node-1", t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}

	a, err := NewLedgerApp(cfg, "CreateProfile")
	if err != nil {
		t.Fatalf("NewLedgerApp() error = %v", err)
	}
	if _, err := a.CreateProfile(acct(7)); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, logFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	want := fmt.Sprintf("\t%s\tevent emitted\tkind=ProfileCreated", a.Operation().ID)
	if !strings.Contains(string(data), want) {
		t.Errorf("log file = %q, want it to contain %q", data, want)
	}
}

func TestNewLedgerApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "zero review cap", modify: func(c *config.Config) { c.Ledger.MaxReviewsPerUser = 0 }},
		{name: "bad stake amount", modify: func(c *config.Config) { c.Ledger.MinStakeAmount = "lots" }},
		{name: "unknown database", modify: func(c *config.Config) { c.Database.Type = "postgres" }},
		{name: "unknown encryption", modify: func(c *config.Config) { c.Encryption.Type = "rot13" }},
		{name: "empty node id", modify: func(c *config.Config) { c.NodeID = "" }},
		{name: "duplicate vault", modify: func(c *config.Config) { c.Vaults = append(c.Vaults, c.Vaults[0]) }},
		{name: "filesystem vault without root", modify: func(c *config.Config) { c.Vaults[0].FSVaultRoot = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig("node-1", t.TempDir())
			cfg.Database = config.DatabaseConfig{Type: "memory"}
			tt.modify(cfg)

			if _, err := NewLedgerApp(cfg, "Test"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewLedgerApp_RejectsEmptyNodeIDBeforeOpeningStore(t *testing.T) {
	base := t.TempDir()
	cfg := config.NewConfig("", base)

	if _, err := NewLedgerApp(cfg, "CreateProfile"); err == nil {
		t.Fatal("NewLedgerApp() accepted a config without node_id")
	}

	if _, err := os.Stat(cfg.Database.Path("")); !os.IsNotExist(err) {
		t.Errorf("store file %s created for an invalid config (stat error = %v)", cfg.Database.Path(""), err)
	}
	if _, err := os.Stat(cfg.LogDir); !os.IsNotExist(err) {
		t.Errorf("log directory created for an invalid config (stat error = %v)", err)
	}
}
