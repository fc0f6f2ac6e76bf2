package app

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"repute-go/internal/config"
	"repute-go/internal/encryption"
	"repute-go/internal/ledger"
	"repute-go/internal/snapshot"
	"repute-go/internal/store"
	"repute-go/internal/vault"
)

// LedgerApp is the application layer between the CLI and the ledger.
// It constructs all dependencies from config, exposes operations that accept
// the textual forms of accounts, hashes and amounts, and logs the outcome of
// every operation. The caller must call Close when done.
type LedgerApp struct {
	cfg       *config.Config
	store     ledger.Store
	ledger    *ledger.Ledger
	encryptor snapshot.Encryptor
	clock     ledger.Clock
	log       Logger
	op        *Operation
	logFile   *os.File
	vaults    map[string]snapshot.Vault
}

// RatingRequest is the textual form of a SubmitRating call.
type RatingRequest struct {
	Target          string
	Score           uint8
	Communication   uint8
	Reliability     uint8
	Quality         uint8
	Professionalism uint8
	ReviewHash      string // hex; empty means an all-zero digest
}

// ErrZeroCaller is returned when the acting account is the all-zero ID.
var ErrZeroCaller = errors.New("caller is the zero account")

// PassphraseFunc supplies the private key passphrase when one is needed.
type PassphraseFunc func() (string, error)

type backuper interface {
	BackupTo(destPath string) error
}

// NewLedgerApp creates a fully wired LedgerApp from the given config.
// operation identifies the CLI command being run (e.g. "CreateProfile", "Audit").
func NewLedgerApp(cfg *config.Config, operation string) (*LedgerApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	params, err := cfg.Ledger.Params()
	if err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	s, err := store.NewStoreFromConfig(cfg.Database, cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	clock := ledger.RealClock{}
	op := NewOperation(operation, clock.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, os.Stderr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a, err := newLedgerApp(cfg, s, params, enc, &slogAdapter{l: logger}, clock, ledger.UUIDGenerator{}, op)
	if err != nil {
		s.Close()
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

func newLedgerApp(cfg *config.Config, s ledger.Store, params ledger.Params, enc snapshot.Encryptor, log Logger, clock ledger.Clock, idgen ledger.IDGenerator, op *Operation) (*LedgerApp, error) {
	l, err := ledger.New(s, params, clock, idgen)
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}
	log.Debug("operation started", "operation", op.Name, "node", cfg.NodeID)
	return &LedgerApp{
		cfg:       cfg,
		store:     s,
		ledger:    l,
		encryptor: enc,
		clock:     clock,
		log:       log,
		op:        op,
		vaults:    make(map[string]snapshot.Vault),
	}, nil
}

// Operation returns the operation this app was created for.
func (a *LedgerApp) Operation() *Operation {
	return a.op
}

// Params returns the constants the ledger was constructed with.
func (a *LedgerApp) Params() ledger.Params {
	return a.ledger.Params()
}

// Encryptor returns the configured snapshot encryptor.
func (a *LedgerApp) Encryptor() snapshot.Encryptor {
	return a.encryptor
}

// caller parses and records the acting account.
func (a *LedgerApp) caller(raw string) (ledger.AccountID, error) {
	id, err := ledger.ParseAccountID(raw)
	if err == nil && id.IsZero() {
		err = ErrZeroCaller
	}
	if err != nil {
		err = fmt.Errorf("caller: %w", err)
		a.op.Fail(err)
		return id, err
	}
	a.op.Caller = id.String()
	return id, nil
}

// record logs the outcome of a state-changing ledger operation.
func (a *LedgerApp) record(ev *ledger.Event, err error) (*ledger.Event, error) {
	if err != nil {
		a.op.Fail(err)
		if ledger.IsRejection(err) {
			a.log.Warn("operation rejected", "operation", a.op.Name, "caller", a.op.Caller, "reason", err)
		} else {
			a.log.Error("operation failed", "operation", a.op.Name, "caller", a.op.Caller, "error", err)
		}
		return nil, err
	}
	a.log.Info("event emitted", "kind", ev.Kind, "event", ev)
	return ev, nil
}

// CreateProfile creates a profile for caller.
func (a *LedgerApp) CreateProfile(caller string) (*ledger.Event, error) {
	id, err := a.caller(caller)
	if err != nil {
		return nil, err
	}
	return a.record(a.ledger.CreateProfile(id))
}

// SubmitRating records caller's rating of req.Target.
func (a *LedgerApp) SubmitRating(caller string, req RatingRequest) (*ledger.Event, error) {
	id, err := a.caller(caller)
	if err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	return a.record(a.ledger.SubmitRating(id, in))
}

func (req RatingRequest) input() (ledger.RatingInput, error) {
	in := ledger.RatingInput{
		Score:           req.Score,
		Communication:   req.Communication,
		Reliability:     req.Reliability,
		Quality:         req.Quality,
		Professionalism: req.Professionalism,
	}
	target, err := ledger.ParseAccountID(req.Target)
	if err != nil {
		return in, fmt.Errorf("target: %w", err)
	}
	in.Target = target
	if req.ReviewHash != "" {
		h, err := ledger.ParseReviewHash(req.ReviewHash)
		if err != nil {
			return in, err
		}
		in.ReviewHash = h
	}
	return in, nil
}

// StakeReputation records a stake of amount (base-10 integer) by caller.
func (a *LedgerApp) StakeReputation(caller, amount string) (*ledger.Event, error) {
	id, err := a.caller(caller)
	if err != nil {
		return nil, err
	}
	v, err := ledger.ParseAmount(amount)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	return a.record(a.ledger.StakeReputation(id, v))
}

// DeactivateProfile marks caller's profile inactive.
func (a *LedgerApp) DeactivateProfile(caller string) (*ledger.Event, error) {
	id, err := a.caller(caller)
	if err != nil {
		return nil, err
	}
	return a.record(a.ledger.DeactivateProfile(id))
}

// Stats summarizes account.
func (a *LedgerApp) Stats(account string) (*ledger.Stats, error) {
	id, err := ledger.ParseAccountID(account)
	if err != nil {
		return nil, err
	}
	return a.ledger.Stats(id)
}

// Ratings returns every rating account has received.
func (a *LedgerApp) Ratings(account string) ([]*ledger.Rating, error) {
	id, err := ledger.ParseAccountID(account)
	if err != nil {
		return nil, err
	}
	return a.ledger.Ratings(id)
}

// TopProfiles returns the leaderboard.
func (a *LedgerApp) TopProfiles(limit int) ([]*ledger.Stats, error) {
	return a.ledger.TopProfiles(limit)
}

// Events returns up to limit journal records, newest first.
func (a *LedgerApp) Events(limit int) ([]*ledger.EventRecord, error) {
	return a.ledger.Events(limit)
}

// Audit checks every profile against its ratings and logs each violation.
func (a *LedgerApp) Audit() ([]ledger.Violation, error) {
	violations, err := a.ledger.Audit()
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	for _, v := range violations {
		a.log.Warn("audit violation", "account", v.Account, "problem", v.Problem)
	}
	if len(violations) > 0 {
		a.op.Status = StatusError
	}
	a.log.Info("audit finished", "violations", len(violations))
	return violations, nil
}

// ExportSnapshot writes a snapshot of the store to path, which must not exist.
// With encrypt set the snapshot is encrypted to the configured key, as ASCII
// armor when armor is also set.
func (a *LedgerApp) ExportSnapshot(path string, encrypt, armor bool) (*snapshot.Summary, error) {
	sum, err := a.exportSnapshot(path, encrypt, armor)
	if err != nil {
		a.op.Fail(err)
		a.log.Error("snapshot export failed", "path", path, "error", err)
		return nil, err
	}
	a.log.Info("snapshot exported", "path", path, "encrypted", encrypt,
		"profiles", sum.Profiles, "ratings", sum.Ratings, "events", sum.Events)
	return sum, nil
}

func (a *LedgerApp) exportSnapshot(path string, encrypt, armor bool) (*snapshot.Summary, error) {
	enc, err := a.snapshotEncryptor(encrypt, armor)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot file: %w", err)
	}

	w := bufio.NewWriter(f)
	sum, err := a.writeSnapshot(w, enc)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return sum, nil
}

// snapshotEncryptor returns the encryptor for an export, or nil for plaintext.
func (a *LedgerApp) snapshotEncryptor(encrypt, armor bool) (snapshot.Encryptor, error) {
	if !encrypt {
		return nil, nil
	}
	if !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not configured: run 'repute config keys' first")
	}
	if !armor {
		return a.encryptor, nil
	}
	age, ok := a.encryptor.(*encryption.AgeEncryptor)
	if !ok {
		return nil, fmt.Errorf("armor requires age encryption")
	}
	return age.Armored(), nil
}

func (a *LedgerApp) writeSnapshot(w io.Writer, enc snapshot.Encryptor) (*snapshot.Summary, error) {
	createdAt := uint64(a.clock.Now().Unix())
	if enc != nil {
		return snapshot.ExportEncrypted(a.store, w, createdAt, enc)
	}
	return snapshot.Export(a.store, w, createdAt)
}

// ImportSnapshot restores the snapshot at path into the store, which must be
// empty. passphrase is only called when the file is encrypted.
func (a *LedgerApp) ImportSnapshot(path string, passphrase PassphraseFunc) (*snapshot.Summary, error) {
	sum, err := a.readSnapshot(path, passphrase, a.importFn)
	if err != nil {
		a.op.Fail(err)
		a.log.Error("snapshot import failed", "path", path, "error", err)
		return nil, err
	}
	a.log.Info("snapshot imported", "path", path,
		"profiles", sum.Profiles, "ratings", sum.Ratings, "events", sum.Events)
	return sum, nil
}

// InspectSnapshot verifies the snapshot at path and summarizes it.
func (a *LedgerApp) InspectSnapshot(path string, passphrase PassphraseFunc) (*snapshot.Summary, error) {
	return a.readSnapshot(path, passphrase, func(br *bufio.Reader, dec snapshot.DecryptionContext) (*snapshot.Summary, error) {
		if dec != nil {
			return snapshot.ReadEncrypted(br, dec)
		}
		return snapshot.Read(br)
	})
}

func (a *LedgerApp) readSnapshot(path string, passphrase PassphraseFunc, fn func(*bufio.Reader, snapshot.DecryptionContext) (*snapshot.Summary, error)) (*snapshot.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()
	return a.decodeSnapshot(f, passphrase, fn)
}

// decodeSnapshot unlocks the private key when r is encrypted and hands the
// stream to fn.
func (a *LedgerApp) decodeSnapshot(r io.Reader, passphrase PassphraseFunc, fn func(*bufio.Reader, snapshot.DecryptionContext) (*snapshot.Summary, error)) (*snapshot.Summary, error) {
	br := bufio.NewReader(r)
	if snapshot.IsPlaintext(br) {
		return fn(br, nil)
	}

	if !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("snapshot is encrypted but no keys are configured")
	}
	if passphrase == nil {
		return nil, fmt.Errorf("snapshot is encrypted: passphrase required")
	}
	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	dec, err := a.encryptor.Unlock(pass)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	return fn(br, dec)
}

func (a *LedgerApp) importFn(br *bufio.Reader, dec snapshot.DecryptionContext) (*snapshot.Summary, error) {
	if dec != nil {
		return snapshot.ImportEncrypted(a.store, br, dec)
	}
	return snapshot.Import(a.store, br)
}

// openVault returns the configured vault called name, or the first one when
// name is empty.
func (a *LedgerApp) openVault(name string) (snapshot.Vault, error) {
	if v, ok := a.vaults[name]; ok {
		return v, nil
	}
	vc, err := a.cfg.Vault(name)
	if err != nil {
		return nil, err
	}
	v, err := vault.NewVaultFromConfig(vc)
	if err != nil {
		return nil, fmt.Errorf("creating vault %s: %w", vc.Name, err)
	}
	a.vaults[name] = v
	return v, nil
}

// PushSnapshot exports a snapshot straight into a vault under a name derived
// from the operation ID and returns that name.
func (a *LedgerApp) PushSnapshot(vaultName string, encrypt bool) (string, *snapshot.Summary, error) {
	name, sum, err := a.pushSnapshot(vaultName, encrypt)
	if err != nil {
		a.op.Fail(err)
		a.log.Error("snapshot push failed", "vault", vaultName, "error", err)
		return "", nil, err
	}
	a.log.Info("snapshot pushed", "vault", vaultName, "name", name, "encrypted", encrypt,
		"profiles", sum.Profiles, "ratings", sum.Ratings, "events", sum.Events)
	return name, sum, nil
}

func (a *LedgerApp) pushSnapshot(vaultName string, encrypt bool) (string, *snapshot.Summary, error) {
	v, err := a.openVault(vaultName)
	if err != nil {
		return "", nil, err
	}
	enc, err := a.snapshotEncryptor(encrypt, false)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	sum, err := a.writeSnapshot(&buf, enc)
	if err != nil {
		return "", nil, err
	}

	name := a.op.ID + ".snap"
	if encrypt {
		name += ".age"
	}
	if err := v.Put(a.cfg.NodeID, name, &buf, int64(buf.Len())); err != nil {
		return "", nil, fmt.Errorf("storing snapshot: %w", err)
	}
	return name, sum, nil
}

// PullSnapshot restores the named snapshot from a vault into the store,
// which must be empty.
func (a *LedgerApp) PullSnapshot(vaultName, name string, passphrase PassphraseFunc) (*snapshot.Summary, error) {
	sum, err := a.pullSnapshot(vaultName, name, passphrase)
	if err != nil {
		a.op.Fail(err)
		a.log.Error("snapshot pull failed", "vault", vaultName, "name", name, "error", err)
		return nil, err
	}
	a.log.Info("snapshot pulled", "vault", vaultName, "name", name,
		"profiles", sum.Profiles, "ratings", sum.Ratings, "events", sum.Events)
	return sum, nil
}

func (a *LedgerApp) pullSnapshot(vaultName, name string, passphrase PassphraseFunc) (*snapshot.Summary, error) {
	v, err := a.openVault(vaultName)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := v.Get(a.cfg.NodeID, name, &buf); err != nil {
		return nil, err
	}
	return a.decodeSnapshot(&buf, passphrase, a.importFn)
}

// ListSnapshots returns the snapshots this node has stored in a vault.
func (a *LedgerApp) ListSnapshots(vaultName string) ([]snapshot.VaultEntry, error) {
	v, err := a.openVault(vaultName)
	if err != nil {
		return nil, err
	}
	return v.List(a.cfg.NodeID)
}

// Backup copies the database file to destPath. Only sqlite stores support it.
func (a *LedgerApp) Backup(destPath string) error {
	b, ok := a.store.(backuper)
	if !ok {
		err := fmt.Errorf("backup is not supported by the %s store", a.storeType())
		a.op.Fail(err)
		return err
	}
	if err := b.BackupTo(destPath); err != nil {
		a.op.Fail(err)
		a.log.Error("backup failed", "path", destPath, "error", err)
		return err
	}
	a.log.Info("database backed up", "path", destPath)
	return nil
}

func (a *LedgerApp) storeType() string {
	return a.cfg.Database.Type
}

// Close logs the operation status and releases the store and log file.
func (a *LedgerApp) Close() error {
	a.log.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status,
		"duration", a.clock.Now().Sub(a.op.StartedAt).Truncate(time.Millisecond))

	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
