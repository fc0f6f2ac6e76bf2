package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"repute-go/internal/config"
	"repute-go/internal/database"
	"repute-go/internal/database/migrations"
	"repute-go/internal/encryption"
	"repute-go/internal/vault"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassphrase prompts on stderr and reads without echo from a terminal,
// or reads one line when stdin is not a terminal.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func promptPassphrase() (string, error) {
	return readPassphrase("Passphrase: ")
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		show, _ := cmd.Flags().GetBool("show")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		age, isAge := enc.(*encryption.AgeEncryptor)

		if show {
			if !isAge {
				return fmt.Errorf("encryption type %q has no public key", cfg.Encryption.Type)
			}
			r, err := age.Recipient()
			if err != nil {
				return err
			}
			fmt.Println(r)
			return nil
		}

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			if confirm != pass {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Keys written to %s\n", cfg.Encryption.PrivateKeyPath)
		if isAge {
			if r, err := age.Recipient(); err == nil {
				fmt.Printf("Public key: %s\n", r)
			}
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage snapshot vaults",
}

var configVaultValidateCmd = &cobra.Command{
	Use:   "validate [NAME]",
	Short: "Check that a vault is reachable (default: every configured vault)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		vcs := cfg.Vaults
		if len(args) > 0 {
			vc, err := cfg.Vault(args[0])
			if err != nil {
				return err
			}
			vcs = []config.VaultConfig{vc}
		}
		if len(vcs) == 0 {
			fmt.Println("No vaults configured.")
			return nil
		}

		failed := 0
		for _, vc := range vcs {
			v, err := vault.NewVaultFromConfig(vc)
			if err == nil {
				err = v.ValidateSetup()
			}
			if err != nil {
				failed++
				fmt.Printf("%-16s  FAIL  %v\n", vc.Name, err)
				continue
			}
			fmt.Printf("%-16s  ok\n", vc.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d vault(s) failed validation", failed)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the sqlite database",
}

// sqlitePath returns the configured database file, rejecting other store types.
func sqlitePath(cfg *config.Config) (string, error) {
	if cfg.Database.Type != "sqlite" {
		return "", fmt.Errorf("database type is %q, not sqlite", cfg.Database.Type)
	}
	if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return cfg.Database.Path(cfg.NodeID), nil
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := sqlitePath(cfg)
		if err != nil {
			return err
		}

		s, err := database.NewSQLiteStore(path)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Printf("Database at %s is up to date\n", path)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := sqlitePath(cfg)
		if err != nil {
			return err
		}

		db, err := database.OpenConnection(path)
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := migrations.Status(db)
		if err != nil {
			return err
		}

		fmt.Printf("Database: %s\n", path)
		fmt.Printf("Version:  %d of %d\n", st.Version, st.Latest)
		switch {
		case st.Dirty:
			fmt.Println("State:    dirty (a migration failed part way)")
		case st.Version < st.Latest:
			fmt.Println("State:    pending migrations, run 'repute db migrate'")
		case st.Version > st.Latest:
			fmt.Println("State:    newer than this binary")
		default:
			fmt.Println("State:    up to date")
		}
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup [DEST]",
	Short: "Copy the database to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		dest := fmt.Sprintf("repute-%s.db", time.Now().UTC().Format("20060102T150405Z"))
		if len(args) > 0 {
			dest = args[0]
		}

		if err := a.Backup(dest); err != nil {
			return err
		}
		fmt.Printf("Backed up to %s\n", dest)
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export and import the full ledger state",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export PATH",
	Short: "Write a snapshot of the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		armor, _ := cmd.Flags().GetBool("armor")

		a, err := newApp("ExportSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.ExportSnapshot(args[0], encrypt || armor, armor)
		if err != nil {
			return fmt.Errorf("exporting snapshot: %w", err)
		}
		fmt.Printf("Exported %d profile(s), %d rating(s), %d event(s) to %s\n",
			sum.Profiles, sum.Ratings, sum.Events, args[0])
		return nil
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Restore a snapshot into an empty ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ImportSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.ImportSnapshot(args[0], promptPassphrase)
		if err != nil {
			return fmt.Errorf("importing snapshot: %w", err)
		}
		fmt.Printf("Imported %d profile(s), %d rating(s), %d event(s)\n",
			sum.Profiles, sum.Ratings, sum.Events)
		return nil
	},
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect PATH",
	Short: "Verify a snapshot and summarize it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("InspectSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.InspectSnapshot(args[0], promptPassphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Version:  %d\n", sum.Version)
		fmt.Printf("Created:  %s\n", time.Unix(int64(sum.CreatedAt), 0).UTC().Format(time.RFC3339))
		fmt.Printf("Profiles: %d\n", sum.Profiles)
		fmt.Printf("Ratings:  %d\n", sum.Ratings)
		fmt.Printf("Events:   %d\n", sum.Events)
		return nil
	},
}

var snapshotPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Store a snapshot in a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("PushSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		name, sum, err := a.PushSnapshot(vaultName, encrypt)
		if err != nil {
			return fmt.Errorf("pushing snapshot: %w", err)
		}
		fmt.Printf("Stored %s (%d profile(s), %d rating(s), %d event(s))\n",
			name, sum.Profiles, sum.Ratings, sum.Events)
		return nil
	},
}

var snapshotPullCmd = &cobra.Command{
	Use:   "pull NAME",
	Short: "Restore a snapshot from a vault into an empty ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newApp("PullSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.PullSnapshot(vaultName, args[0], promptPassphrase)
		if err != nil {
			return fmt.Errorf("pulling snapshot: %w", err)
		}
		fmt.Printf("Imported %d profile(s), %d rating(s), %d event(s)\n",
			sum.Profiles, sum.Ratings, sum.Events)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots this node has stored in a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newApp("ListSnapshots")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListSnapshots(vaultName)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No snapshots stored.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%-32s  %d\n", e.Name, e.Size)
		}
		return nil
	},
}
